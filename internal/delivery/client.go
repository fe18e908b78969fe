// Package delivery issues the outbound call to the upstream
// Measurement Protocol endpoint. The client is stateless and performs
// exactly one attempt per invocation; retry scheduling belongs to the
// queue subsystem.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/config"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// Outcome classifies one delivery attempt.
type Outcome int

const (
	// OutcomeSuccess: the upstream accepted the payload.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryable: network error, timeout, 429 or 5xx.
	OutcomeRetryable
	// OutcomePermanent: a 4xx indicating a malformed payload; retrying
	// cannot succeed.
	OutcomePermanent
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "permanent"
	}
}

// Result is the classified outcome of a single delivery attempt.
type Result struct {
	Outcome    Outcome
	HTTPStatus *int
	LatencyMs  int
	RetryAfter time.Duration
	Err        error
}

const maxResponseBodySize = 4 << 10

type Client struct {
	cfg    *config.UpstreamConfig
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg *config.UpstreamConfig, logger *zap.Logger) *Client {
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Send posts the payload to the collection endpoint and classifies the
// response. Every call is bounded by the configured timeout.
func (c *Client) Send(ctx context.Context, payload *models.Payload) *Result {
	body, err := json.Marshal(payload)
	if err != nil {
		// Unserializable payloads cannot become serializable by waiting.
		return &Result{Outcome: OutcomePermanent, Err: fmt.Errorf("marshal payload: %w", err)}
	}

	endpoint := fmt.Sprintf("%s?%s", c.cfg.Endpoint, url.Values{
		"measurement_id": {c.cfg.MeasurementID},
		"api_secret":     {c.cfg.APISecret},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return &Result{Outcome: OutcomePermanent, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := int(time.Since(start).Milliseconds())
	if err != nil {
		c.logger.Warn("upstream delivery failed",
			zap.Error(err),
			zap.Int("latency_ms", latency),
		)
		return &Result{Outcome: OutcomeRetryable, LatencyMs: latency, Err: fmt.Errorf("upstream request: %w", err)}
	}
	defer resp.Body.Close()

	// Drain a bounded amount so the connection can be reused.
	_, _ = io.CopyN(io.Discard, resp.Body, maxResponseBodySize)

	result := &Result{HTTPStatus: &resp.StatusCode, LatencyMs: latency}
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Outcome = OutcomeSuccess
	case resp.StatusCode == http.StatusTooManyRequests:
		result.Outcome = OutcomeRetryable
		result.Err = fmt.Errorf("upstream rate limited (429)")
		if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After")); ok {
			result.RetryAfter = d
		}
	case resp.StatusCode >= 500:
		result.Outcome = OutcomeRetryable
		result.Err = fmt.Errorf("upstream error: HTTP %d", resp.StatusCode)
	default:
		result.Outcome = OutcomePermanent
		result.Err = fmt.Errorf("upstream rejected payload: HTTP %d", resp.StatusCode)
	}

	return result
}

// ParseRetryAfter parses a Retry-After header value given as delay
// seconds. HTTP-date values are not handled; the caller falls back to
// its own backoff.
func ParseRetryAfter(value string) (time.Duration, bool) {
	if value == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
