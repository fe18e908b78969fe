package handlers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/attribution"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/botdetect"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/config"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/ratelimit"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type countingTransformer struct{ calls int }

func (t *countingTransformer) Transform(*models.DeliveryJob) (*models.Payload, error) {
	t.calls++
	return &models.Payload{}, nil
}

type countingEnqueuer struct{ calls int }

func (e *countingEnqueuer) Enqueue(jobs []models.DeliveryJob, batchID uuid.UUID, _ int) ([]models.QueueEntry, error) {
	e.calls++
	entries := make([]models.QueueEntry, len(jobs))
	for i := range entries {
		entries[i] = models.QueueEntry{ID: uuid.New(), BatchID: batchID}
	}
	return entries, nil
}

type noopSessionStore struct{}

func (noopSessionStore) Lookup(string) (*models.Session, error) { return nil, nil }
func (noopSessionStore) Save(*models.Session) error             { return nil }

func newCollectTestApp() (*fiber.App, *countingTransformer, *countingEnqueuer) {
	security := &config.SecurityConfig{
		BotSignalThreshold:   2,
		HeaderAnomalyMin:     2,
		TelemetryAnomalyMin:  2,
		BehaviorAnomalyMin:   2,
		ThreatScoreThreshold: 30,
	}
	transformer := &countingTransformer{}
	store := &countingEnqueuer{}
	h := &EventsHandler{
		Security:    security,
		Limiter:     ratelimit.New(1000),
		Gate:        botdetect.NewGate(security, zap.NewNop()),
		Resolver:    attribution.NewResolver(noopSessionStore{}, 30*time.Minute, nil, zap.NewNop()),
		Transformer: transformer,
		Store:       store,
		BatchSize:   100,
		Logger:      zap.NewNop(),
	}
	app := fiber.New()
	app.Post("/api/v1/events", h.Collect)
	return app, transformer, store
}

func decodeCollect(t *testing.T, body io.Reader) CollectResponse {
	t.Helper()
	var resp CollectResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

// Filtered traffic must short-circuit before any payload is built or
// persisted: the transformer and the queue see zero calls.
func TestCollectFiltersBotTraffic(t *testing.T) {
	t.Parallel()

	app, transformer, store := newCollectTestApp()

	req := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader(`{"name":"page_view","params":{}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "python-requests/2.31.0")
	req.Header.Set("CF-IPCountry", "XX")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeCollect(t, resp.Body)
	if !body.Success || !body.Filtered {
		t.Errorf("response = %+v, want success and filtered", body)
	}
	if body.Reason != "bot_detected" {
		t.Errorf("reason = %q, want bot_detected", body.Reason)
	}
	if body.BotScore < 2 {
		t.Errorf("bot_score = %d, want >= 2", body.BotScore)
	}
	if body.Queued != 0 {
		t.Errorf("queued = %d, want 0", body.Queued)
	}

	if transformer.calls != 0 {
		t.Errorf("transformer called %d times for filtered traffic, want 0", transformer.calls)
	}
	if store.calls != 0 {
		t.Errorf("enqueuer called %d times for filtered traffic, want 0", store.calls)
	}
}

func TestCollectQueuesHumanTraffic(t *testing.T) {
	t.Parallel()

	app, transformer, store := newCollectTestApp()

	payload := `{"name":"page_view","client_id":"c1","params":{
		"js_enabled":true,"screen_resolution":"1920x1080",
		"hardware_concurrency":8,"session_duration":45210,
		"engagement_time_msec":3831}}`
	req := httptest.NewRequest("POST", "/api/v1/events", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", chromeUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "nl-NL,nl;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("CF-IPCountry", "NL")
	req.Header.Set("CF-IPCity", "Amsterdam")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeCollect(t, resp.Body)
	if !body.Success || body.Filtered {
		t.Errorf("response = %+v, want success and not filtered", body)
	}
	if body.Queued != 1 {
		t.Errorf("queued = %d, want 1", body.Queued)
	}
	if _, err := uuid.Parse(body.BatchID); err != nil {
		t.Errorf("batch_id = %q, want a uuid", body.BatchID)
	}

	if transformer.calls != 1 {
		t.Errorf("transformer calls = %d, want 1", transformer.calls)
	}
	if store.calls != 1 {
		t.Errorf("enqueuer calls = %d, want 1", store.calls)
	}
}
