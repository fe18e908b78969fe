package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/metrics"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// Store persists queue entries in Postgres.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Enqueue persists one pending entry per job under a shared batch id.
func (s *Store) Enqueue(jobs []models.DeliveryJob, batchID uuid.UUID, batchSize int) ([]models.QueueEntry, error) {
	if len(jobs) == 0 {
		return nil, nil
	}

	now := time.Now()
	entries := make([]models.QueueEntry, 0, len(jobs))
	for i := range jobs {
		payload, err := json.Marshal(&jobs[i])
		if err != nil {
			return nil, fmt.Errorf("marshal delivery job: %w", err)
		}
		entries = append(entries, models.QueueEntry{
			ID:            uuid.New(),
			Payload:       string(payload),
			Status:        models.StatusPending,
			BatchID:       batchID,
			NextAttemptAt: now,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}

	if err := s.db.CreateInBatches(entries, batchSize).Error; err != nil {
		return nil, err
	}
	metrics.QueueTransitions.WithLabelValues(models.StatusPending).Add(float64(len(entries)))
	return entries, nil
}

// DequeueDue atomically claims up to limit due pending entries and
// marks them processing. SKIP LOCKED keeps a concurrent claimer (the
// fast-path worker) from double-claiming the same rows.
func (s *Store) DequeueDue(limit int, now time.Time) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Raw(`
			SELECT *
			FROM queue_entries
			WHERE status = ? AND next_attempt_at <= ?
			ORDER BY next_attempt_at
			LIMIT ?
			FOR UPDATE SKIP LOCKED
		`, models.StatusPending, now, limit).Scan(&entries).Error
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(entries))
		for i := range entries {
			ids[i] = entries[i].ID
		}
		return tx.Model(&models.QueueEntry{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     models.StatusProcessing,
				"updated_at": now,
			}).Error
	})

	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		metrics.QueueTransitions.WithLabelValues(models.StatusProcessing).Add(float64(len(entries)))
	}
	for i := range entries {
		entries[i].Status = models.StatusProcessing
	}
	return entries, nil
}

// Claim locks a single pending entry by id and marks it processing.
// Returns nil when the entry does not exist or was already claimed;
// the fast-path worker treats that as handled elsewhere.
func (s *Store) Claim(entryID uuid.UUID) (*models.QueueEntry, error) {
	var entry models.QueueEntry

	err := s.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Raw(`
			SELECT *
			FROM queue_entries
			WHERE id = ? AND status = ?
			FOR UPDATE SKIP LOCKED
		`, entryID, models.StatusPending).Scan(&entry).Error
		if err != nil {
			return err
		}
		if entry.ID == uuid.Nil {
			return nil
		}
		return tx.Model(&models.QueueEntry{}).
			Where("id = ?", entryID).
			Updates(map[string]interface{}{
				"status":     models.StatusProcessing,
				"updated_at": time.Now(),
			}).Error
	})

	if err != nil {
		return nil, err
	}
	if entry.ID == uuid.Nil {
		return nil, nil
	}
	entry.Status = models.StatusProcessing
	metrics.QueueTransitions.WithLabelValues(models.StatusProcessing).Inc()
	return &entry, nil
}

// MarkCompleted records a successful delivery.
func (s *Store) MarkCompleted(entryID uuid.UUID) error {
	now := time.Now()
	err := s.db.Model(&models.QueueEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"status":        models.StatusCompleted,
			"processed_at":  now,
			"error_message": nil,
			"updated_at":    now,
		}).Error
	if err == nil {
		metrics.QueueTransitions.WithLabelValues(models.StatusCompleted).Inc()
	}
	return err
}

// MarkRetry returns an entry to pending for a later attempt.
func (s *Store) MarkRetry(entryID uuid.UUID, retryCount int, nextAttempt time.Time, errMsg string) error {
	err := s.db.Model(&models.QueueEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"status":          models.StatusPending,
			"retry_count":     retryCount,
			"next_attempt_at": nextAttempt,
			"error_message":   errMsg,
			"updated_at":      time.Now(),
		}).Error
	if err == nil {
		metrics.QueueTransitions.WithLabelValues(models.StatusPending).Inc()
	}
	return err
}

// MarkFailed records a terminal failure. The row is retained for
// operator inspection until the retention sweep purges it.
func (s *Store) MarkFailed(entryID uuid.UUID, retryCount int, errMsg string) error {
	now := time.Now()
	err := s.db.Model(&models.QueueEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"status":        models.StatusFailed,
			"retry_count":   retryCount,
			"error_message": errMsg,
			"processed_at":  now,
			"updated_at":    now,
		}).Error
	if err == nil {
		metrics.QueueTransitions.WithLabelValues(models.StatusFailed).Inc()
	}
	return err
}

// ReleaseStuck returns entries stuck in processing (a crashed run)
// to pending once they are older than the cutoff.
func (s *Store) ReleaseStuck(cutoff time.Time) (int64, error) {
	result := s.db.Model(&models.QueueEntry{}).
		Where("status = ? AND updated_at < ?", models.StatusProcessing, cutoff).
		Updates(map[string]interface{}{
			"status":     models.StatusPending,
			"updated_at": time.Now(),
		})
	return result.RowsAffected, result.Error
}

// PurgeOld removes terminal entries past the retention window.
func (s *Store) PurgeOld(cutoff time.Time) (int64, error) {
	result := s.db.
		Where("status IN ? AND processed_at < ?",
			[]string{models.StatusCompleted, models.StatusFailed}, cutoff).
		Delete(&models.QueueEntry{})
	return result.RowsAffected, result.Error
}

// List returns entries for the operator inspection endpoint, newest
// first, with one extra row fetched to signal paging.
func (s *Store) List(status string, limit, offset int) ([]models.QueueEntry, bool, error) {
	var entries []models.QueueEntry

	query := s.db.Model(&models.QueueEntry{}).
		Order("created_at DESC").
		Limit(limit + 1).
		Offset(offset)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, false, err
	}

	hasMore := len(entries) > limit
	if hasMore {
		entries = entries[:limit]
	}
	return entries, hasMore, nil
}
