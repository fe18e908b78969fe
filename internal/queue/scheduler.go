package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/config"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// SweepStore is the slice of the queue store the scheduler needs.
type SweepStore interface {
	DequeueDue(limit int, now time.Time) ([]models.QueueEntry, error)
	ReleaseStuck(cutoff time.Time) (int64, error)
	PurgeOld(cutoff time.Time) (int64, error)
}

// EntryProcessor runs one claimed entry through the delivery pipeline.
type EntryProcessor interface {
	Process(ctx context.Context, entry *models.QueueEntry) error
}

// SessionPurger removes expired attribution sessions; wired into the
// same retention sweep.
type SessionPurger interface {
	DeleteExpired(cutoff time.Time) (int64, error)
}

// Scheduler is the origin-side reliability loop: a fixed-interval sweep
// over due pending entries, plus a slower retention sweep. A CAS flag
// guarantees a single in-flight run; overlapping sweeps would
// double-process the same batch window.
type Scheduler struct {
	store     SweepStore
	processor EntryProcessor
	sessions  SessionPurger
	cfg       *config.QueueConfig
	logger    *zap.Logger

	inFlight atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// How long an entry may sit in processing before it is presumed
// orphaned by a crashed run and released back to pending.
const stuckEntryAge = 10 * time.Minute

func NewScheduler(store SweepStore, processor EntryProcessor, sessions SessionPurger, cfg *config.QueueConfig, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:     store,
		processor: processor,
		sessions:  sessions,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start launches the sweep and retention loops.
func (s *Scheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(2)
	go s.sweepLoop(ctx)
	go s.retentionLoop(ctx)

	s.logger.Info("queue scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Int("retry_ceiling", s.cfg.RetryCeiling),
	)
}

// Stop cancels the loops and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("queue scheduler stopped")
}

func (s *Scheduler) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep. Returns the number of entries
// processed; a run skipped because another is in flight reports -1.
func (s *Scheduler) RunOnce(ctx context.Context) int {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("queue sweep skipped, previous run still in flight")
		return -1
	}
	defer s.inFlight.Store(false)

	if released, err := s.store.ReleaseStuck(time.Now().Add(-stuckEntryAge)); err != nil {
		s.logger.Error("failed to release stuck entries", zap.Error(err))
	} else if released > 0 {
		s.logger.Warn("released stuck processing entries", zap.Int64("count", released))
	}

	entries, err := s.store.DequeueDue(s.cfg.BatchSize, time.Now())
	if err != nil {
		s.logger.Error("failed to dequeue pending entries", zap.Error(err))
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	s.logger.Info("queue sweep started", zap.Int("batch", len(entries)))

	// Bounded worker pool; each entry's state transition is committed
	// by the processor independently.
	workers := s.cfg.WorkerCount
	if workers < 1 {
		workers = 1
	}
	work := make(chan *models.QueueEntry)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for entry := range work {
				if err := s.processor.Process(ctx, entry); err != nil {
					s.logger.Error("failed to commit entry transition",
						zap.String("entry_id", entry.ID.String()),
						zap.Error(err),
					)
				}
			}
		}()
	}

feed:
	for i := range entries {
		select {
		case <-ctx.Done():
			break feed
		case work <- &entries[i]:
		}
	}
	close(work)
	wg.Wait()

	return len(entries)
}

func (s *Scheduler) retentionLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-s.cfg.RetentionWindow)
			if purged, err := s.store.PurgeOld(cutoff); err != nil {
				s.logger.Error("queue retention sweep failed", zap.Error(err))
			} else if purged > 0 {
				s.logger.Info("purged terminal queue entries", zap.Int64("count", purged))
			}
			if s.sessions != nil {
				if purged, err := s.sessions.DeleteExpired(cutoff); err != nil {
					s.logger.Error("session retention sweep failed", zap.Error(err))
				} else if purged > 0 {
					s.logger.Info("purged expired sessions", zap.Int64("count", purged))
				}
			}
		}
	}
}
