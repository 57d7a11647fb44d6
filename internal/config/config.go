package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Store     StoreConfig
	Storage   StorageConfig
	Status    StatusConfig
	NATS      NATSConfig
	Queue     QueueConfig
	OCR       OCRConfig
	TTS       TTSConfig
	Pipeline  PipelineConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// StoreConfig names the Redis key namespace of the job table
type StoreConfig struct {
	TableName string
}

type StorageConfig struct {
	BucketName      string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SignedURLExpiry time.Duration
}

// Status transports
const (
	TransportRedis = "redis"
	TransportNATS  = "nats"
)

type StatusConfig struct {
	Topic     string
	Transport string
}

type NATSConfig struct {
	URL string
}

type QueueConfig struct {
	TextExtraction  string
	SpeechSynthesis string
	MaxRetry        int
	Retention       time.Duration
}

type OCRConfig struct {
	APIKey  string
	BaseURL string
}

type TTSConfig struct {
	Region     string
	VoiceID    string
	SampleRate string
}

type PipelineConfig struct {
	PageSize           int
	StuckAfter         time.Duration
	StuckCheckInterval time.Duration
	TaskTimeout        time.Duration
}

type RateLimitConfig struct {
	CreatePerMin int
}

// Load reads the configuration and fails if a required key is missing
func Load() (*Config, error) {
	cfg := Read()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read reads the configuration without validating it. Tools that only
// need a subset of the keys check what they use themselves.
func Read() *Config {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("OCR_API_KEY")
	readSecret("STORAGE_ACCESS_KEY_ID")
	readSecret("STORAGE_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("store.table_name", "JOBS_TABLE_NAME")
	_ = viper.BindEnv("storage.bucket_name", "ASSET_BUCKET_NAME")
	_ = viper.BindEnv("storage.region", "STORAGE_REGION")
	_ = viper.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	_ = viper.BindEnv("storage.access_key_id", "STORAGE_ACCESS_KEY_ID")
	_ = viper.BindEnv("storage.secret_access_key", "STORAGE_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("storage.signed_url_expiry", "SIGNED_URL_EXPIRY")
	_ = viper.BindEnv("status.topic", "JOB_STATUS_TOPIC")
	_ = viper.BindEnv("status.transport", "JOB_STATUS_TRANSPORT")
	_ = viper.BindEnv("nats.url", "NATS_URL")
	_ = viper.BindEnv("queue.text_extraction", "TEXT_EXTRACTION_QUEUE")
	_ = viper.BindEnv("queue.speech_synthesis", "SPEECH_SYNTHESIS_QUEUE")
	_ = viper.BindEnv("queue.max_retry", "QUEUE_MAX_RETRY")
	_ = viper.BindEnv("queue.retention", "QUEUE_RETENTION")
	_ = viper.BindEnv("ocr.api_key", "OCR_API_KEY")
	_ = viper.BindEnv("ocr.base_url", "OCR_BASE_URL")
	_ = viper.BindEnv("tts.region", "TTS_REGION")
	_ = viper.BindEnv("tts.voice_id", "TTS_VOICE_ID")
	_ = viper.BindEnv("tts.sample_rate", "TTS_SAMPLE_RATE")
	_ = viper.BindEnv("pipeline.page_size", "JOBS_PAGE_SIZE")
	_ = viper.BindEnv("pipeline.stuck_after", "STUCK_JOB_AFTER")
	_ = viper.BindEnv("pipeline.stuck_check_interval", "STUCK_JOB_CHECK_INTERVAL")
	_ = viper.BindEnv("pipeline.task_timeout", "TASK_TIMEOUT")
	_ = viper.BindEnv("ratelimit.create_per_min", "RATELIMIT_CREATE_PER_MIN")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.signed_url_expiry", 15*time.Minute)
	viper.SetDefault("status.transport", TransportRedis)
	viper.SetDefault("queue.max_retry", 3)
	viper.SetDefault("queue.retention", 24*time.Hour)
	viper.SetDefault("ratelimit.create_per_min", 30)

	// Provider defaults
	viper.SetDefault("ocr.base_url", "https://vision.googleapis.com")
	viper.SetDefault("tts.region", "us-east-1")
	viper.SetDefault("tts.voice_id", "Joanna")
	viper.SetDefault("tts.sample_rate", "8000")

	// Pipeline defaults
	viper.SetDefault("pipeline.page_size", 10)
	viper.SetDefault("pipeline.stuck_after", 30*time.Minute)
	viper.SetDefault("pipeline.stuck_check_interval", time.Minute)
	viper.SetDefault("pipeline.task_timeout", 5*time.Minute)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	return &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Store: StoreConfig{
			TableName: viper.GetString("store.table_name"),
		},
		Storage: StorageConfig{
			BucketName:      viper.GetString("storage.bucket_name"),
			Region:          viper.GetString("storage.region"),
			Endpoint:        viper.GetString("storage.endpoint"),
			AccessKeyID:     viper.GetString("storage.access_key_id"),
			SecretAccessKey: viper.GetString("storage.secret_access_key"),
			SignedURLExpiry: viper.GetDuration("storage.signed_url_expiry"),
		},
		Status: StatusConfig{
			Topic:     viper.GetString("status.topic"),
			Transport: viper.GetString("status.transport"),
		},
		NATS: NATSConfig{
			URL: viper.GetString("nats.url"),
		},
		Queue: QueueConfig{
			TextExtraction:  viper.GetString("queue.text_extraction"),
			SpeechSynthesis: viper.GetString("queue.speech_synthesis"),
			MaxRetry:        viper.GetInt("queue.max_retry"),
			Retention:       viper.GetDuration("queue.retention"),
		},
		OCR: OCRConfig{
			APIKey:  viper.GetString("ocr.api_key"),
			BaseURL: viper.GetString("ocr.base_url"),
		},
		TTS: TTSConfig{
			Region:     viper.GetString("tts.region"),
			VoiceID:    viper.GetString("tts.voice_id"),
			SampleRate: viper.GetString("tts.sample_rate"),
		},
		Pipeline: PipelineConfig{
			PageSize:           viper.GetInt("pipeline.page_size"),
			StuckAfter:         viper.GetDuration("pipeline.stuck_after"),
			StuckCheckInterval: viper.GetDuration("pipeline.stuck_check_interval"),
			TaskTimeout:        viper.GetDuration("pipeline.task_timeout"),
		},
		RateLimit: RateLimitConfig{
			CreatePerMin: viper.GetInt("ratelimit.create_per_min"),
		},
	}
}

// Validate reports every missing required key at once
func (c *Config) Validate() error {
	var errs []error
	required := []struct {
		key, value string
	}{
		{"store.table_name", c.Store.TableName},
		{"storage.bucket_name", c.Storage.BucketName},
		{"status.topic", c.Status.Topic},
		{"queue.text_extraction", c.Queue.TextExtraction},
		{"queue.speech_synthesis", c.Queue.SpeechSynthesis},
		{"ocr.api_key", c.OCR.APIKey},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("missing required config %q", r.key))
		}
	}

	switch c.Status.Transport {
	case TransportRedis:
	case TransportNATS:
		if c.NATS.URL == "" {
			errs = append(errs, fmt.Errorf("missing required config %q for nats transport", "nats.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown status transport %q", c.Status.Transport))
	}

	if c.Pipeline.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.page_size must be positive, got %d", c.Pipeline.PageSize))
	}
	if c.Pipeline.StuckCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.stuck_check_interval must be positive, got %s", c.Pipeline.StuckCheckInterval))
	}
	if c.Pipeline.TaskTimeout <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.task_timeout must be positive, got %s", c.Pipeline.TaskTimeout))
	}
	if c.Queue.MaxRetry < 0 {
		errs = append(errs, fmt.Errorf("queue.max_retry must not be negative, got %d", c.Queue.MaxRetry))
	}

	// A job may legitimately sit unchanged while every attempt of a stage runs to its timeout.
	if budget := c.Pipeline.TaskTimeout * time.Duration(c.Queue.MaxRetry+1); c.Pipeline.StuckAfter <= budget {
		errs = append(errs, fmt.Errorf("pipeline.stuck_after (%s) must exceed task_timeout x attempts (%s)", c.Pipeline.StuckAfter, budget))
	}

	return errors.Join(errs...)
}
