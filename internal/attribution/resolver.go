// Package attribution resolves which marketing channel is credited for
// a visit or conversion, keyed by a session-scoped record with a fixed
// inactivity expiry.
package attribution

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// Store persists session attribution records.
type Store interface {
	// Lookup returns the session record, or nil when none exists.
	Lookup(sessionID string) (*models.Session, error)
	// Save inserts or updates a session record.
	Save(session *models.Session) error
}

// conversionEvents always credit the channel that originally brought
// the visitor, never the current page context.
var conversionEvents = map[string]bool{
	"purchase":            true,
	"generate_lead":       true,
	"submit_lead_form":    true,
	"form_conversion":     true,
	"form_submit_success": true,
	"request_quote":       true,
}

// IsConversion reports whether an event name is a business-outcome
// event.
func IsConversion(name string) bool {
	return conversionEvents[name]
}

// Resolver is the attribution state machine. Transitions are keyed by
// session boundary detection (active vs expired) and event
// classification (conversion vs not).
type Resolver struct {
	store           Store
	window          time.Duration
	internalDomains []string
	logger          *zap.Logger
}

func NewResolver(store Store, window time.Duration, internalDomains []string, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:           store,
		window:          window,
		internalDomains: internalDomains,
		logger:          logger,
	}
}

// Resolve returns the attribution credited to this event.
//
// New or expired session: first-touch attribution from the current
// navigation (or the original* donor parameters when the batch carried
// them), snapshotted on the session record.
//
// Continuing session, non-conversion: internal navigation, so repeated
// page views cannot re-attribute to the referrer and inflate channel
// counts.
//
// Conversion event: rehydrated from the original snapshot regardless of
// the current page context.
func (r *Resolver) Resolve(event *models.NormalizedEvent, now time.Time) (models.AttributionContext, error) {
	if event.SessionID == "" {
		// No session continuity possible; classify the page directly.
		return r.firstTouch(event), nil
	}

	session, err := r.store.Lookup(event.SessionID)
	if err != nil {
		return models.AttributionContext{}, fmt.Errorf("session lookup: %w", err)
	}

	if session == nil || now.Sub(session.LastSeenAt) > r.window {
		original := r.firstTouch(event)
		record := &models.Session{
			SessionID:  event.SessionID,
			ClientID:   event.ClientID,
			LastSeenAt: now,
		}
		if session != nil {
			// Expired record for the same id: reuse the row, new touch.
			record.ID = session.ID
			record.CreatedAt = session.CreatedAt
		}
		record.SetOriginal(original)
		if err := r.store.Save(record); err != nil {
			return models.AttributionContext{}, fmt.Errorf("session save: %w", err)
		}
		r.logger.Debug("session started",
			zap.String("session_id", event.SessionID),
			zap.String("source", original.Source),
			zap.String("medium", original.Medium),
			zap.String("traffic_type", original.TrafficType),
		)
		return original, nil
	}

	session.LastSeenAt = now
	if err := r.store.Save(session); err != nil {
		return models.AttributionContext{}, fmt.Errorf("session touch: %w", err)
	}

	if IsConversion(event.Name) {
		return session.Original(), nil
	}

	return models.AttributionContext{
		Source:      "(internal)",
		Medium:      "internal",
		TrafficType: models.TrafficInternal,
	}, nil
}

// firstTouch prefers the original* parameters carried by a batch donor
// (they survive session-storage loss), falling back to classifying the
// current navigation.
func (r *Resolver) firstTouch(event *models.NormalizedEvent) models.AttributionContext {
	if original := originalFromParams(event); !original.IsZero() {
		if original.TrafficType == "" {
			original.TrafficType = ClassifyTraffic(original.Source, original.Medium)
		}
		return original
	}
	return classifyPage(pageContextOf(event), r.internalDomains)
}

func originalFromParams(event *models.NormalizedEvent) models.AttributionContext {
	return models.AttributionContext{
		Source:      event.Param("originalSource"),
		Medium:      event.Param("originalMedium"),
		Campaign:    event.Param("originalCampaign"),
		Content:     event.Param("originalContent"),
		Term:        event.Param("originalTerm"),
		GCLID:       event.Param("originalGclid"),
		TrafficType: event.Param("originalTrafficType"),
	}
}
