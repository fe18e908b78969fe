package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

var (
	// ErrInvalidJSON is returned when the request body does not parse.
	ErrInvalidJSON = errors.New("request body is not valid JSON")
	// ErrMissingName is returned when an event carries neither a "name"
	// nor an "event_name" field.
	ErrMissingName = errors.New("event has no name or event_name field")
)

// Shape classifies the raw request body. The classification happens
// exactly once, here; downstream components only ever see normalized
// events.
type Shape int

const (
	ShapeSingle Shape = iota
	ShapeWrapped
	ShapeBatch
)

func (s Shape) String() string {
	switch s {
	case ShapeWrapped:
		return "wrapped"
	case ShapeBatch:
		return "batch"
	default:
		return "single"
	}
}

// Request is the normalizer's output: the resolved shape, the
// normalized events, and one shared consent candidate for the whole
// request.
type Request struct {
	Shape      Shape
	Events     []models.NormalizedEvent
	Consent    models.ConsentDecision
	HasConsent bool
}

// Keys recognized at the event's top level rather than as parameters.
var reservedEventKeys = map[string]bool{
	"name":       true,
	"event_name": true,
	"params":     true,
	"client_id":  true,
	"session_id": true,
	"timestamp":  true,
	"consent":    true,
}

// donorKeys are the context fields backfilled from the batch donor onto
// events that lack them. Original attribution fields are included so a
// conversion later in the batch can rehydrate first-touch attribution.
var donorKeys = []string{
	"session_id",
	"client_id",
	"user_agent",
	"language",
	"screen_resolution",
	"device_type",
	"browser_name",
	"operating_system",
	"source",
	"medium",
	"campaign",
	"originalSource",
	"originalMedium",
	"originalCampaign",
	"originalContent",
	"originalTerm",
	"originalGclid",
	"originalTrafficType",
}

// Normalize parses the raw body and resolves it into a flat list of
// normalized events. It rejects only unparseable JSON and nameless
// events; every other shape variance is normalized.
func Normalize(body []byte, now time.Time) (*Request, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	req := &Request{Consent: models.DefaultConsent()}

	switch {
	case root["events"] != nil:
		req.Shape = ShapeBatch
		var rawEvents []map[string]any
		if err := json.Unmarshal(root["events"], &rawEvents); err != nil {
			return nil, fmt.Errorf("%w: events is not an array of objects", ErrInvalidJSON)
		}
		for _, raw := range rawEvents {
			event, err := normalizeEvent(raw, now)
			if err != nil {
				return nil, err
			}
			req.Events = append(req.Events, event)
		}
		backfillFromDonor(req.Events)
	case root["event"] != nil:
		req.Shape = ShapeWrapped
		var raw map[string]any
		if err := json.Unmarshal(root["event"], &raw); err != nil {
			return nil, fmt.Errorf("%w: event is not an object", ErrInvalidJSON)
		}
		event, err := normalizeEvent(raw, now)
		if err != nil {
			return nil, err
		}
		// Legacy wrapped clients nest consent inside the event object
		// rather than at the request root; surface it where
		// extractConsent looks.
		if fields, ok := raw["consent"].(map[string]any); ok {
			event.Params["consent"] = fields
		}
		req.Events = []models.NormalizedEvent{event}
	default:
		req.Shape = ShapeSingle
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
		}
		event, err := normalizeEvent(raw, now)
		if err != nil {
			return nil, err
		}
		req.Events = []models.NormalizedEvent{event}
	}

	if consent, ok := extractConsent(root, req.Events); ok {
		req.Consent = consent
		req.HasConsent = true
	}

	return req, nil
}

func normalizeEvent(raw map[string]any, now time.Time) (models.NormalizedEvent, error) {
	event := models.NormalizedEvent{
		Params:    map[string]any{},
		Timestamp: now,
	}

	name := stringValue(raw["name"])
	if name == "" {
		name = stringValue(raw["event_name"])
	}
	if name == "" {
		return event, ErrMissingName
	}
	event.Name = name

	// An explicit params object wins; any remaining top-level fields
	// are folded in without overwriting it.
	if params, ok := raw["params"].(map[string]any); ok {
		for k, v := range params {
			event.Params[k] = v
		}
	}
	for k, v := range raw {
		if reservedEventKeys[k] {
			continue
		}
		if _, exists := event.Params[k]; !exists {
			event.Params[k] = v
		}
	}

	event.ClientID = stringValue(raw["client_id"])
	if event.ClientID == "" {
		event.ClientID = stringValue(event.Params["client_id"])
	}
	event.SessionID = stringValue(raw["session_id"])
	if event.SessionID == "" {
		event.SessionID = stringValue(event.Params["session_id"])
	}

	if ts, ok := parseTimestamp(raw["timestamp"]); ok {
		event.Timestamp = ts
	} else if ts, ok := parseTimestamp(event.Params["timestamp"]); ok {
		event.Timestamp = ts
	}

	return event, nil
}

// backfillFromDonor locates the first complete event of a batch and
// copies its context onto every other event that lacks it. The donor
// values are captured by value up front, so mutating recipient events
// can never feed back into later backfills.
func backfillFromDonor(events []models.NormalizedEvent) {
	donorIdx := -1
	for i := range events {
		if isCompleteEvent(&events[i]) {
			donorIdx = i
			break
		}
	}
	if donorIdx < 0 {
		return
	}

	donor := events[donorIdx]
	snapshot := make(map[string]any, len(donorKeys))
	for _, key := range donorKeys {
		if v, ok := donor.Params[key]; ok {
			snapshot[key] = v
		}
	}

	for i := range events {
		if i == donorIdx {
			continue
		}
		event := &events[i]
		if event.SessionID == "" {
			event.SessionID = donor.SessionID
		}
		if event.ClientID == "" {
			event.ClientID = donor.ClientID
		}
		for key, value := range snapshot {
			if existing, ok := event.Params[key]; !ok || stringValue(existing) == "" {
				event.Params[key] = value
			}
		}
	}
}

// isCompleteEvent reports whether an event carries enough context to
// serve as the batch donor: identity plus original attribution.
func isCompleteEvent(e *models.NormalizedEvent) bool {
	if e.SessionID == "" && e.Param("session_id") == "" {
		return false
	}
	if e.ClientID == "" && e.Param("client_id") == "" {
		return false
	}
	return e.Param("originalSource") != "" || e.Param("originalMedium") != ""
}

// extractConsent looks for a consent object at the request top level
// first, then inside the first event's parameters.
func extractConsent(root map[string]json.RawMessage, events []models.NormalizedEvent) (models.ConsentDecision, bool) {
	if raw, ok := root["consent"]; ok {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err == nil {
			return consentFromMap(fields), true
		}
	}
	for i := range events {
		if fields, ok := events[i].Params["consent"].(map[string]any); ok {
			return consentFromMap(fields), true
		}
	}
	return models.ConsentDecision{}, false
}

func consentFromMap(fields map[string]any) models.ConsentDecision {
	return models.ConsentDecision{
		AdUserData:        models.ParseConsentState(stringValue(fields["ad_user_data"])),
		AdPersonalization: models.ParseConsentState(stringValue(fields["ad_personalization"])),
		Reason:            stringValue(fields["reason"]),
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// parseTimestamp accepts unix seconds, unix milliseconds, or RFC 3339.
func parseTimestamp(v any) (time.Time, bool) {
	switch ts := v.(type) {
	case float64:
		if ts <= 0 {
			return time.Time{}, false
		}
		// Millisecond timestamps are 13 digits; second timestamps 10.
		if ts > 1e12 {
			return time.UnixMilli(int64(ts)).UTC(), true
		}
		return time.Unix(int64(ts), 0).UTC(), true
	case string:
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
