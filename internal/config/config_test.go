package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("JOBS_TABLE_NAME", "jobs-test")
	t.Setenv("ASSET_BUCKET_NAME", "assets-test")
	t.Setenv("JOB_STATUS_TOPIC", "job-status")
	t.Setenv("TEXT_EXTRACTION_QUEUE", "text_extraction")
	t.Setenv("SPEECH_SYNTHESIS_QUEUE", "speech_synthesis")
	t.Setenv("OCR_API_KEY", "test-key")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "jobs-test", cfg.Store.TableName)
	assert.Equal(t, "assets-test", cfg.Storage.BucketName)
	assert.Equal(t, TransportRedis, cfg.Status.Transport)
	assert.Equal(t, 10, cfg.Pipeline.PageSize)
	assert.Equal(t, 3, cfg.Queue.MaxRetry)
	assert.Equal(t, 24*time.Hour, cfg.Queue.Retention)
	assert.Equal(t, "Joanna", cfg.TTS.VoiceID)
	assert.Equal(t, "8000", cfg.TTS.SampleRate)
	assert.Equal(t, "https://vision.googleapis.com", cfg.OCR.BaseURL)
}

func TestLoadMissingRequired(t *testing.T) {
	setRequired(t)
	t.Setenv("JOBS_TABLE_NAME", "")
	t.Setenv("OCR_API_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.table_name")
	assert.Contains(t, err.Error(), "ocr.api_key")
}

func TestLoadNATSTransportNeedsURL(t *testing.T) {
	setRequired(t)
	t.Setenv("JOB_STATUS_TRANSPORT", TransportNATS)
	t.Setenv("NATS_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nats.url")

	t.Setenv("NATS_URL", "nats://localhost:4222")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestReadSecretFromFile(t *testing.T) {
	setRequired(t)
	t.Setenv("OCR_API_KEY", "")

	path := filepath.Join(t.TempDir(), "ocr_key")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
	t.Setenv("OCR_API_KEY_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.OCR.APIKey)
}

func TestLoadRejectsNonPositiveCheckInterval(t *testing.T) {
	for _, v := range []string{"0s", "-1m"} {
		setRequired(t)
		t.Setenv("STUCK_JOB_CHECK_INTERVAL", v)

		_, err := Load()
		require.Error(t, err, v)
		assert.Contains(t, err.Error(), "pipeline.stuck_check_interval")
	}
}

func TestLoadStuckAfterMustOutlastRetries(t *testing.T) {
	setRequired(t)
	t.Setenv("TASK_TIMEOUT", "10m")
	t.Setenv("QUEUE_MAX_RETRY", "3")
	t.Setenv("STUCK_JOB_AFTER", "30m")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline.stuck_after")

	t.Setenv("STUCK_JOB_AFTER", "41m")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 41*time.Minute, cfg.Pipeline.StuckAfter)
}

func TestLoadDefaultPipelineTimings(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.StuckAfter)
	assert.Equal(t, time.Minute, cfg.Pipeline.StuckCheckInterval)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.TaskTimeout)
}
