package models

import (
	"strings"
)

// ConsentState is one GDPR-style permission flag value.
type ConsentState string

const (
	ConsentGranted ConsentState = "GRANTED"
	ConsentDenied  ConsentState = "DENIED"
)

// ParseConsentState normalizes a client-supplied consent value. Anything
// that is not an explicit grant is treated as denied (fail-closed).
func ParseConsentState(raw string) ConsentState {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "GRANTED", "TRUE", "YES", "1":
		return ConsentGranted
	default:
		return ConsentDenied
	}
}

// ConsentDecision carries the two independent consent dimensions for an
// event. It is computed once at the intake boundary and never mutated
// afterwards.
type ConsentDecision struct {
	AdUserData        ConsentState `json:"ad_user_data"`
	AdPersonalization ConsentState `json:"ad_personalization"`
	Reason            string       `json:"reason,omitempty"`
}

// DefaultConsent is the fail-closed decision used when the request
// carries no consent information at all.
func DefaultConsent() ConsentDecision {
	return ConsentDecision{
		AdUserData:        ConsentDenied,
		AdPersonalization: ConsentDenied,
		Reason:            "no consent signal received",
	}
}

// AuditString renders the decision in the human-readable form embedded
// in event parameters for upstream-side auditing.
func (c ConsentDecision) AuditString() string {
	reason := c.Reason
	if reason == "" {
		reason = "client provided"
	}
	return "ad_personalization: " + string(c.AdPersonalization) +
		". ad_user_data: " + string(c.AdUserData) +
		". reason: " + reason
}

// BotVerdict is the security gate's classification of a request. It is
// produced once per request (batch requests share one verdict) and is
// immutable after creation.
type BotVerdict struct {
	IsBot   bool     `json:"is_bot"`
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}
