package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pollinator/api/internal/config"
	"github.com/pollinator/api/internal/handler"
	"github.com/pollinator/api/internal/middleware"
	"github.com/pollinator/api/internal/model"
	"github.com/pollinator/api/internal/queue"
	"github.com/pollinator/api/internal/service"
	"github.com/pollinator/api/internal/store"
)

// testApp holds all components needed for testing
type testApp struct {
	app        *fiber.App
	store      *store.RedisStore
	dispatcher *recordingDispatcher
	signer     *stubSigner
}

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []queue.Stage
	err   error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, stage queue.Stage, payload interface{}) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, stage)
	return nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(ctx context.Context, jobID string, status model.JobStatus) error {
	return nil
}

type stubSigner struct {
	err error
}

func (s *stubSigner) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "https://assets.example/" + key + "?X-Amz-Signature=test", nil
}

// setupApp creates a Fiber app wired like main.go, on an in-process Redis
func setupApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	cfg := &config.Config{
		Storage:  config.StorageConfig{SignedURLExpiry: 15 * time.Minute},
		Pipeline: config.PipelineConfig{PageSize: 10},
	}

	jobStore := store.NewRedisStore(redisClient, "jobs-e2e")
	dispatcher := &recordingDispatcher{}
	signer := &stubSigner{}

	jobService := service.NewJobService(jobStore, nopPublisher{}, dispatcher, signer, validator.New(), cfg)
	jobHandler := handler.NewJobHandler(jobService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	app := fiber.New()
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Use very high rate limits so tests don't get blocked
	jobs := app.Group("/jobs")
	jobs.Post("/", rateLimiter.CreateJobLimit(10000), jobHandler.Create)
	jobs.Get("/", jobHandler.List)
	jobs.Get("/:jobId", jobHandler.Get)

	return &testApp{app: app, store: jobStore, dispatcher: dispatcher, signer: signer}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	return app.Test(req, -1)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	var result map[string]interface{}
	if err := json.Unmarshal(b, &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, string(b))
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
