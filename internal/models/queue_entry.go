package models

import (
	"time"

	"github.com/google/uuid"
)

// Queue entry statuses. Transitions: pending -> processing ->
// {completed|failed}; failed entries under the retry ceiling are
// returned to pending by the scheduler.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// QueueEntry is a persisted unit of delivery work. Payload holds the
// serialized DeliveryJob; BatchID groups entries accepted in the same
// intake request.
type QueueEntry struct {
	ID            uuid.UUID  `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Payload       string     `gorm:"type:jsonb;not null" json:"payload"`
	Status        string     `gorm:"not null;default:'pending';index:idx_queue_status_due" json:"status"`
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	BatchID       uuid.UUID  `gorm:"type:uuid;index" json:"batch_id"`
	ErrorMessage  *string    `json:"error_message"`
	NextAttemptAt time.Time  `gorm:"not null;default:now();index:idx_queue_status_due" json:"next_attempt_at"`
	ProcessedAt   *time.Time `json:"processed_at"`
	CreatedAt     time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null;default:now()" json:"updated_at"`
}

func (QueueEntry) TableName() string {
	return "queue_entries"
}

// DeliveryMessage is published to the delivery queue for the fast-path
// worker; it references a queue entry by id.
type DeliveryMessage struct {
	EntryID string `json:"entry_id"`
}
