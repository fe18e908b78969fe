package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/delivery"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/transform"
)

// fakeEntryStore records the single transition the processor commits.
type fakeEntryStore struct {
	completed   []uuid.UUID
	retried     []retryCall
	failed      []failCall
}

type retryCall struct {
	entryID     uuid.UUID
	retryCount  int
	nextAttempt time.Time
	errMsg      string
}

type failCall struct {
	entryID    uuid.UUID
	retryCount int
	errMsg     string
}

func (s *fakeEntryStore) MarkCompleted(entryID uuid.UUID) error {
	s.completed = append(s.completed, entryID)
	return nil
}

func (s *fakeEntryStore) MarkRetry(entryID uuid.UUID, retryCount int, nextAttempt time.Time, errMsg string) error {
	s.retried = append(s.retried, retryCall{entryID, retryCount, nextAttempt, errMsg})
	return nil
}

func (s *fakeEntryStore) MarkFailed(entryID uuid.UUID, retryCount int, errMsg string) error {
	s.failed = append(s.failed, failCall{entryID, retryCount, errMsg})
	return nil
}

// fakeSender returns a canned result for every attempt.
type fakeSender struct {
	result *delivery.Result
	sent   int
}

func (s *fakeSender) Send(_ context.Context, _ *models.Payload) *delivery.Result {
	s.sent++
	return s.result
}

func testEntry(t *testing.T, retryCount int) *models.QueueEntry {
	t.Helper()
	job := models.DeliveryJob{
		Event: models.NormalizedEvent{
			Name:     "page_view",
			ClientID: "c1",
			Params:   map[string]any{"page_path": "/home"},
		},
		Consent: models.ConsentDecision{
			AdUserData:        models.ConsentDenied,
			AdPersonalization: models.ConsentDenied,
		},
	}
	payload, err := json.Marshal(&job)
	if err != nil {
		t.Fatalf("marshal job: %v", err)
	}
	return &models.QueueEntry{
		ID:         uuid.New(),
		Payload:    string(payload),
		Status:     models.StatusProcessing,
		RetryCount: retryCount,
	}
}

func newTestProcessor(store EntryStore, sender Sender) *Processor {
	return NewProcessor(store, transform.New(zap.NewNop()), sender, 5, zap.NewNop())
}

func TestProcessSuccess(t *testing.T) {
	t.Parallel()

	store := &fakeEntryStore{}
	sender := &fakeSender{result: &delivery.Result{Outcome: delivery.OutcomeSuccess}}
	entry := testEntry(t, 0)

	if err := newTestProcessor(store, sender).Process(context.Background(), entry); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(store.completed) != 1 || store.completed[0] != entry.ID {
		t.Errorf("completed = %v, want [%v]", store.completed, entry.ID)
	}
	if sender.sent != 1 {
		t.Errorf("sent = %d, want 1", sender.sent)
	}
}

func TestProcessRetryableSchedulesBackoff(t *testing.T) {
	t.Parallel()

	store := &fakeEntryStore{}
	sender := &fakeSender{result: &delivery.Result{
		Outcome: delivery.OutcomeRetryable,
		Err:     context.DeadlineExceeded,
	}}
	entry := testEntry(t, 1)

	before := time.Now()
	if err := newTestProcessor(store, sender).Process(context.Background(), entry); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(store.retried) != 1 {
		t.Fatalf("retried = %v, want one call", store.retried)
	}
	call := store.retried[0]
	if call.retryCount != 2 {
		t.Errorf("retryCount = %d, want 2", call.retryCount)
	}
	wantDelay := BackoffDelay(2)
	if got := call.nextAttempt.Sub(before); got < wantDelay || got > wantDelay+time.Minute {
		t.Errorf("next attempt delay = %v, want about %v", got, wantDelay)
	}
}

func TestProcessRetryAfterOverridesBackoff(t *testing.T) {
	t.Parallel()

	store := &fakeEntryStore{}
	sender := &fakeSender{result: &delivery.Result{
		Outcome:    delivery.OutcomeRetryable,
		RetryAfter: 42 * time.Second,
		Err:        context.DeadlineExceeded,
	}}
	entry := testEntry(t, 0)

	before := time.Now()
	if err := newTestProcessor(store, sender).Process(context.Background(), entry); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	call := store.retried[0]
	if got := call.nextAttempt.Sub(before); got < 42*time.Second || got > 43*time.Second {
		t.Errorf("next attempt delay = %v, want about 42s", got)
	}
}

func TestProcessRetryCeilingIsTerminal(t *testing.T) {
	t.Parallel()

	store := &fakeEntryStore{}
	sender := &fakeSender{result: &delivery.Result{
		Outcome: delivery.OutcomeRetryable,
		Err:     context.DeadlineExceeded,
	}}
	// Four failures so far; this attempt is the fifth and final one.
	entry := testEntry(t, 4)

	if err := newTestProcessor(store, sender).Process(context.Background(), entry); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(store.retried) != 0 {
		t.Errorf("retried = %v, want none at the ceiling", store.retried)
	}
	if len(store.failed) != 1 {
		t.Fatalf("failed = %v, want one call", store.failed)
	}
	if store.failed[0].retryCount != 5 {
		t.Errorf("terminal retryCount = %d, want 5", store.failed[0].retryCount)
	}
}

func TestProcessPermanentFailsImmediately(t *testing.T) {
	t.Parallel()

	store := &fakeEntryStore{}
	sender := &fakeSender{result: &delivery.Result{
		Outcome: delivery.OutcomePermanent,
		Err:     context.Canceled,
	}}
	entry := testEntry(t, 0)

	if err := newTestProcessor(store, sender).Process(context.Background(), entry); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(store.failed) != 1 {
		t.Fatalf("failed = %v, want one call", store.failed)
	}
	if len(store.retried) != 0 {
		t.Errorf("permanent outcome was retried: %v", store.retried)
	}
}

func TestProcessUnreadablePayload(t *testing.T) {
	t.Parallel()

	store := &fakeEntryStore{}
	sender := &fakeSender{result: &delivery.Result{Outcome: delivery.OutcomeSuccess}}
	entry := &models.QueueEntry{ID: uuid.New(), Payload: "{not json"}

	if err := newTestProcessor(store, sender).Process(context.Background(), entry); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if len(store.failed) != 1 {
		t.Fatalf("failed = %v, want one call", store.failed)
	}
	if sender.sent != 0 {
		t.Errorf("sent = %d, want 0 for unreadable payload", sender.sent)
	}
}
