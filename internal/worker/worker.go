// Package worker consumes the fast-path delivery queue: entry ids
// published at intake are processed immediately instead of waiting for
// the next scheduler sweep.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/config"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/consumer"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/queue"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/rabbitmq"
)

// EntryClaimer locks a pending entry for processing.
type EntryClaimer interface {
	Claim(entryID uuid.UUID) (*models.QueueEntry, error)
}

// Worker consumes delivery messages and runs claimed entries through
// the shared queue processor.
type Worker struct {
	cfg         *config.RabbitMQConfig
	conn        *rabbitmq.Connection
	store       EntryClaimer
	processor   queue.EntryProcessor
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	consumerTag string
	started     atomic.Bool
}

func NewWorker(cfg *config.RabbitMQConfig, conn *rabbitmq.Connection, store EntryClaimer, processor queue.EntryProcessor, logger *zap.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:         cfg,
		conn:        conn,
		store:       store,
		processor:   processor,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		consumerTag: fmt.Sprintf("ga4-delivery-worker-%d", time.Now().Unix()),
	}
}

// Start begins consuming from the delivery queue.
func (w *Worker) Start() error {
	if w.cfg.DeliveryQueue == "" {
		return fmt.Errorf("delivery queue is required")
	}

	// Set before the consumer goroutine spawns; the reconnect loop
	// reads it.
	w.started.Store(true)
	if err := w.startConsuming(); err != nil {
		w.started.Store(false)
		return err
	}

	w.logger.Info("delivery worker started",
		zap.String("delivery_queue", w.cfg.DeliveryQueue),
		zap.String("consumer_tag", w.consumerTag),
	)
	return nil
}

func (w *Worker) startConsuming() error {
	if err := w.conn.SetQoS(w.cfg.PrefetchCount); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	messages, err := w.conn.Consume(w.cfg.DeliveryQueue, w.consumerTag)
	if err != nil {
		return fmt.Errorf("consume from %s: %w", w.cfg.DeliveryQueue, err)
	}

	go w.processMessages(messages)
	return nil
}

// Stop cancels the consumer and the processing loop. Safe to call
// again after a stop or a failed start.
func (w *Worker) Stop() error {
	if !w.started.Swap(false) {
		return nil
	}
	w.cancel()
	if err := w.conn.CancelConsumer(w.consumerTag); err != nil {
		w.logger.Error("failed to cancel consumer",
			zap.String("consumer_tag", w.consumerTag),
			zap.Error(err),
		)
	}
	w.logger.Info("delivery worker stopped")
	return nil
}

func (w *Worker) processMessages(messages <-chan amqp.Delivery) {
	for {
		select {
		case <-w.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				// Channel closed mid-reconnect; keep retrying until the
				// connection is healthy again or we are stopped.
				for w.started.Load() {
					select {
					case <-w.ctx.Done():
						return
					default:
					}

					time.Sleep(2 * time.Second)
					if !w.conn.IsHealthy() {
						continue
					}
					if err := w.startConsuming(); err != nil {
						w.logger.Error("failed to restart consumer", zap.Error(err))
						time.Sleep(5 * time.Second)
						continue
					}
					return
				}
				return
			}
			consumer.ProcessMessage(w.logger, w.cfg.DeliveryQueue, msg, w)
		}
	}
}

// HandleMessage implements consumer.MessageHandler: claim the entry and
// run it through the shared pipeline. Entries already claimed by the
// scheduler are acked without work.
func (w *Worker) HandleMessage(body []byte) error {
	var msg models.DeliveryMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		w.logger.Error("unreadable delivery message", zap.Error(err))
		// Nothing to retry; ack it away.
		return nil
	}

	entryID, err := uuid.Parse(msg.EntryID)
	if err != nil {
		w.logger.Error("invalid entry id in delivery message",
			zap.String("entry_id", msg.EntryID),
		)
		return nil
	}

	entry, err := w.store.Claim(entryID)
	if err != nil {
		return fmt.Errorf("claim entry %s: %w", entryID, err)
	}
	if entry == nil {
		w.logger.Debug("entry not claimable, skipping",
			zap.String("entry_id", entryID.String()),
		)
		return nil
	}

	return w.processor.Process(w.ctx, entry)
}
