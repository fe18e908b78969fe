package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/attribution"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/botdetect"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/config"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/intake"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/metrics"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/ratelimit"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/secure"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/transform"
)

// Publisher pushes entry ids to the fast-path delivery queue. Nil when
// the broker is disabled; the scheduler sweep then drives delivery.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Transformer validates and builds the upstream payload for one job.
type Transformer interface {
	Transform(job *models.DeliveryJob) (*models.Payload, error)
}

// Enqueuer persists a batch of delivery jobs as queue entries.
type Enqueuer interface {
	Enqueue(jobs []models.DeliveryJob, batchID uuid.UUID, batchSize int) ([]models.QueueEntry, error)
}

// EventsHandler is the intake endpoint: normalize, gate, resolve
// attribution, validate, enqueue.
type EventsHandler struct {
	Security    *config.SecurityConfig
	RabbitMQ    *config.RabbitMQConfig
	Envelope    *secure.Envelope
	Limiter     *ratelimit.Limiter
	Gate        *botdetect.Gate
	Resolver    *attribution.Resolver
	Transformer Transformer
	Store       Enqueuer
	Publisher   Publisher
	BatchSize   int
	Logger      *zap.Logger
}

// encryptedBody is the wrapper shape of an encrypted intake request.
// Older clients send the token under time_jwt.
type encryptedBody struct {
	JWT     string `json:"jwt"`
	TimeJWT string `json:"time_jwt"`
}

// CollectResponse is the intake endpoint's success shape. Filtered
// requests still report success so bot operators see nothing unusual.
type CollectResponse struct {
	Success  bool   `json:"success"`
	Queued   int    `json:"queued,omitempty"`
	BatchID  string `json:"batch_id,omitempty"`
	Filtered bool   `json:"filtered,omitempty"`
	Reason   string `json:"reason,omitempty"`
	BotScore int    `json:"bot_score,omitempty"`
}

// Collect handles POST /api/v1/events.
func (h *EventsHandler) Collect(c *fiber.Ctx) error {
	now := time.Now()

	if !h.originAllowed(c.Get("Origin")) {
		metrics.EventsRejected.WithLabelValues("origin").Inc()
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "origin not allowed",
		})
	}

	if !h.Limiter.Allow(c.IP(), now) {
		metrics.EventsRejected.WithLabelValues("rate_limit").Inc()
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error": "rate limit exceeded",
		})
	}

	body := c.Body()
	if isEncrypted(c.Get("X-Encrypted")) {
		plaintext, err := h.openEnvelope(body, now)
		if err != nil {
			// No plaintext fallback: a request that claims encryption
			// and fails verification is rejected outright.
			h.Logger.Warn("envelope rejected", zap.Error(err), zap.String("ip", c.IP()))
			metrics.EventsRejected.WithLabelValues("envelope").Inc()
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid encrypted request",
			})
		}
		body = plaintext
	}

	req, err := intake.Normalize(body, now)
	if err != nil {
		metrics.EventsRejected.WithLabelValues("malformed").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if len(req.Events) == 0 {
		metrics.EventsRejected.WithLabelValues("malformed").Inc()
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "request contains no events",
		})
	}

	// One verdict per request: batch events share transport context, so
	// the first event represents them all.
	verdict := h.Gate.Evaluate(requestInfoOf(c), &req.Events[0])
	if verdict.IsBot {
		metrics.EventsFiltered.Add(float64(len(req.Events)))
		return c.JSON(CollectResponse{
			Success:  true,
			Filtered: true,
			Reason:   "bot_detected",
			BotScore: verdict.Score,
		})
	}

	metrics.ConsentDecisions.WithLabelValues(
		string(req.Consent.AdUserData), string(req.Consent.AdPersonalization)).Inc()

	jobs := make([]models.DeliveryJob, 0, len(req.Events))
	for i := range req.Events {
		event := &req.Events[i]

		attrib, err := h.Resolver.Resolve(event, now)
		if err != nil {
			h.Logger.Error("attribution resolution failed",
				zap.String("event_name", event.Name),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to resolve attribution",
			})
		}

		job := models.DeliveryJob{
			Event:       *event,
			Consent:     req.Consent,
			Attribution: attrib,
			UserAgent:   c.Get("User-Agent"),
			ClientIP:    c.IP(),
		}

		// Validate the transform now so oversized events fail
		// synchronously instead of dying in the queue.
		if _, err := h.Transformer.Transform(&job); err != nil {
			var tooMany *transform.TooManyParamsError
			if errors.As(err, &tooMany) {
				metrics.EventsRejected.WithLabelValues("too_many_params").Inc()
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": tooMany.Error(),
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to build payload",
			})
		}

		jobs = append(jobs, job)
	}

	batchID := uuid.New()
	entries, err := h.Store.Enqueue(jobs, batchID, h.BatchSize)
	if err != nil {
		h.Logger.Error("failed to enqueue events", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to queue events",
		})
	}
	metrics.EventsAccepted.Add(float64(len(entries)))

	h.publishFastPath(entries)

	h.Logger.Info("events accepted",
		zap.String("batch_id", batchID.String()),
		zap.Int("count", len(entries)),
		zap.String("shape", req.Shape.String()),
	)

	return c.JSON(CollectResponse{
		Success: true,
		Queued:  len(entries),
		BatchID: batchID.String(),
	})
}

func (h *EventsHandler) originAllowed(origin string) bool {
	// Server-to-server requests carry no Origin header.
	if origin == "" || len(h.Security.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.Security.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func (h *EventsHandler) openEnvelope(body []byte, now time.Time) ([]byte, error) {
	if h.Envelope == nil {
		return nil, secure.ErrNoSecret
	}
	var wrapper encryptedBody
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, secure.ErrMalformedToken
	}
	token := wrapper.JWT
	if token == "" {
		token = wrapper.TimeJWT
	}
	if token == "" {
		return nil, secure.ErrMalformedToken
	}
	return h.Envelope.Open(token, now)
}

func isEncrypted(header string) bool {
	return header == "true" || header == "1"
}

// requestInfoOf extracts the transport context the bot gate scores:
// user agent, all headers lower-cased, and the edge network's geo and
// threat annotations when fronted by one.
func requestInfoOf(c *fiber.Ctx) *botdetect.RequestInfo {
	headers := make(map[string]string)
	for key, values := range c.GetReqHeaders() {
		if len(values) > 0 {
			headers[strings.ToLower(key)] = values[0]
		}
	}

	threatScore := 0
	if raw := c.Get("X-Threat-Score"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			threatScore = n
		}
	}

	return &botdetect.RequestInfo{
		UserAgent:   c.Get("User-Agent"),
		Headers:     headers,
		Country:     c.Get("CF-IPCountry"),
		City:        c.Get("CF-IPCity"),
		ASN:         c.Get("CF-ASN"),
		ThreatScore: threatScore,
	}
}

// publishFastPath hands entry ids to the broker for immediate delivery.
// Failures are logged and absorbed; the sweep delivers whatever the
// fast path misses.
func (h *EventsHandler) publishFastPath(entries []models.QueueEntry) {
	if h.Publisher == nil {
		return
	}
	for i := range entries {
		msg, err := json.Marshal(models.DeliveryMessage{EntryID: entries[i].ID.String()})
		if err != nil {
			continue
		}
		if err := h.Publisher.Publish(h.RabbitMQ.DeliveryExchange, h.RabbitMQ.DeliveryRoutingKey, msg); err != nil {
			h.Logger.Warn("fast-path publish failed, sweep will deliver",
				zap.String("entry_id", entries[i].ID.String()),
				zap.Error(err),
			)
		}
	}
}
