package attribution

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// GormStore persists session records in Postgres.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Lookup(sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.db.Where("session_id = ?", sessionID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *GormStore) Save(session *models.Session) error {
	session.UpdatedAt = time.Now()
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"client_id",
			"original_source", "original_medium", "original_campaign",
			"original_content", "original_term", "original_gclid",
			"original_traffic",
			"last_seen_at", "updated_at",
		}),
	}).Create(session).Error
}

// DeleteExpired removes session rows idle past the cutoff. Called from
// the queue retention sweep.
func (s *GormStore) DeleteExpired(cutoff time.Time) (int64, error) {
	result := s.db.Where("last_seen_at < ?", cutoff).Delete(&models.Session{})
	return result.RowsAffected, result.Error
}
