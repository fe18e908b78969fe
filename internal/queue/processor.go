package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/consent"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/delivery"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/metrics"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/transform"
)

// EntryStore is the slice of the queue store the processor needs to
// commit per-entry state transitions.
type EntryStore interface {
	MarkCompleted(entryID uuid.UUID) error
	MarkRetry(entryID uuid.UUID, retryCount int, nextAttempt time.Time, errMsg string) error
	MarkFailed(entryID uuid.UUID, retryCount int, errMsg string) error
}

// Sender performs one upstream delivery attempt.
type Sender interface {
	Send(ctx context.Context, payload *models.Payload) *delivery.Result
}

// Processor runs one claimed queue entry through the transform +
// consent + delivery pipeline and commits the resulting state
// transition. Shared by the scheduler sweep and the fast-path worker.
type Processor struct {
	store        EntryStore
	transformer  *transform.Transformer
	sender       Sender
	retryCeiling int
	logger       *zap.Logger
}

func NewProcessor(store EntryStore, transformer *transform.Transformer, sender Sender, retryCeiling int, logger *zap.Logger) *Processor {
	return &Processor{
		store:        store,
		transformer:  transformer,
		sender:       sender,
		retryCeiling: retryCeiling,
		logger:       logger,
	}
}

// Process handles one entry already in processing state. Returns an
// error only when a state transition could not be committed; delivery
// failures are absorbed into the entry's status.
func (p *Processor) Process(ctx context.Context, entry *models.QueueEntry) error {
	var job models.DeliveryJob
	if err := json.Unmarshal([]byte(entry.Payload), &job); err != nil {
		// A payload that never deserializes will never deliver.
		return p.fail(entry, entry.RetryCount, fmt.Sprintf("unreadable payload: %v", err))
	}

	payload, err := p.transformer.Transform(&job)
	if err != nil {
		return p.fail(entry, entry.RetryCount, fmt.Sprintf("transformation failed: %v", err))
	}
	consent.Apply(payload, job.Consent)

	result := p.sender.Send(ctx, payload)
	metrics.DeliveryOutcomes.WithLabelValues(result.Outcome.String()).Inc()

	switch result.Outcome {
	case delivery.OutcomeSuccess:
		p.logger.Info("delivery succeeded",
			zap.String("entry_id", entry.ID.String()),
			zap.String("event_name", job.Event.Name),
			zap.Int("retry_count", entry.RetryCount),
			zap.Int("latency_ms", result.LatencyMs),
		)
		return p.store.MarkCompleted(entry.ID)

	case delivery.OutcomePermanent:
		return p.fail(entry, entry.RetryCount, result.Err.Error())

	default:
		retryCount := entry.RetryCount + 1
		if retryCount >= p.retryCeiling {
			return p.fail(entry, retryCount, fmt.Sprintf("retry ceiling reached: %v", result.Err))
		}

		delay := BackoffDelay(retryCount)
		if result.RetryAfter > 0 {
			delay = result.RetryAfter
		}
		nextAttempt := time.Now().Add(delay)

		p.logger.Warn("delivery will be retried",
			zap.String("entry_id", entry.ID.String()),
			zap.Int("retry_count", retryCount),
			zap.Time("next_attempt_at", nextAttempt),
			zap.Error(result.Err),
		)
		return p.store.MarkRetry(entry.ID, retryCount, nextAttempt, result.Err.Error())
	}
}

func (p *Processor) fail(entry *models.QueueEntry, retryCount int, reason string) error {
	p.logger.Error("delivery failed terminally",
		zap.String("entry_id", entry.ID.String()),
		zap.Int("retry_count", retryCount),
		zap.String("reason", reason),
	)
	return p.store.MarkFailed(entry.ID, retryCount, reason)
}
