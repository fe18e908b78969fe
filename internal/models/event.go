package models

import (
	"time"
)

// NormalizedEvent is the canonical event shape produced by the intake
// normalizer. Every downstream component (bot gate, consent filter,
// attribution resolver, transformer) operates on this shape only; the
// single / legacy-wrapped / batch variance of the raw request never
// leaks past the intake boundary.
type NormalizedEvent struct {
	Name      string         `json:"name"`
	Params    map[string]any `json:"params"`
	ClientID  string         `json:"client_id"`
	SessionID string         `json:"session_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Param returns the string value of a parameter, or "" when absent or
// not a string.
func (e *NormalizedEvent) Param(key string) string {
	if v, ok := e.Params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// DeliveryJob is the unit of work persisted in a queue entry: the
// normalized event plus everything the transformer needs to rebuild the
// upstream payload deterministically at delivery time.
type DeliveryJob struct {
	Event       NormalizedEvent    `json:"event"`
	Consent     ConsentDecision    `json:"consent"`
	Attribution AttributionContext `json:"attribution"`
	UserAgent   string             `json:"user_agent,omitempty"`
	ClientIP    string             `json:"client_ip,omitempty"`
}
