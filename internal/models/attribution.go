package models

import (
	"time"

	"github.com/google/uuid"
)

// Traffic type values produced by the attribution classifier, in
// precedence order (first match wins).
const (
	TrafficInternal        = "internal"
	TrafficDirect          = "direct"
	TrafficOrganic         = "organic_search"
	TrafficPaidSearch      = "paid_search"
	TrafficSocial          = "organic_social"
	TrafficEmail           = "email"
	TrafficAffiliate       = "affiliate"
	TrafficReferral        = "referral"
	TrafficPaymentReferral = "payment_referral"
	TrafficDisplay         = "display"
	TrafficOther           = "other"
)

// AttributionContext is the marketing channel credited for a visit or
// conversion.
type AttributionContext struct {
	Source      string `json:"source,omitempty"`
	Medium      string `json:"medium,omitempty"`
	Campaign    string `json:"campaign,omitempty"`
	Content     string `json:"content,omitempty"`
	Term        string `json:"term,omitempty"`
	GCLID       string `json:"gclid,omitempty"`
	TrafficType string `json:"traffic_type,omitempty"`
}

// IsZero reports whether no attribution field is set.
func (a AttributionContext) IsZero() bool {
	return a == AttributionContext{}
}

// Session is the persisted session-scoped attribution record. Original*
// columns hold the first-touch snapshot taken when the session was
// created; conversion events always rehydrate from that snapshot.
type Session struct {
	ID               uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	SessionID        string    `gorm:"uniqueIndex;not null" json:"session_id"`
	ClientID         string    `gorm:"index;not null" json:"client_id"`
	OriginalSource   string    `json:"original_source"`
	OriginalMedium   string    `json:"original_medium"`
	OriginalCampaign string    `json:"original_campaign"`
	OriginalContent  string    `json:"original_content"`
	OriginalTerm     string    `json:"original_term"`
	OriginalGCLID    string    `json:"original_gclid"`
	OriginalTraffic  string    `json:"original_traffic_type"`
	LastSeenAt       time.Time `gorm:"not null;index" json:"last_seen_at"`
	CreatedAt        time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt        time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Session) TableName() string {
	return "tagging_sessions"
}

// Original returns the first-touch attribution snapshot stored on the
// session row.
func (s *Session) Original() AttributionContext {
	return AttributionContext{
		Source:      s.OriginalSource,
		Medium:      s.OriginalMedium,
		Campaign:    s.OriginalCampaign,
		Content:     s.OriginalContent,
		Term:        s.OriginalTerm,
		GCLID:       s.OriginalGCLID,
		TrafficType: s.OriginalTraffic,
	}
}

// SetOriginal stores the first-touch snapshot on the session row.
func (s *Session) SetOriginal(a AttributionContext) {
	s.OriginalSource = a.Source
	s.OriginalMedium = a.Medium
	s.OriginalCampaign = a.Campaign
	s.OriginalContent = a.Content
	s.OriginalTerm = a.Term
	s.OriginalGCLID = a.GCLID
	s.OriginalTraffic = a.TrafficType
}
