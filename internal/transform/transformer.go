// Package transform transcodes normalized events into the upstream
// Measurement Protocol wire format under a strict parameter ceiling.
package transform

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// TooManyParamsError reports an event whose parameter count still
// exceeds the upstream ceiling after every top-level extraction. The
// event is rejected rather than truncated: a silent truncation could
// drop a required field and is not recoverable upstream.
type TooManyParamsError struct {
	Event string
	Count int
}

func (e *TooManyParamsError) Error() string {
	return fmt.Sprintf("event %q has too many parameters: %d (limit %d)",
		e.Event, e.Count, models.MaxEventParams)
}

// locationParamKeys are the event parameters folded into user_location,
// in (our key, fallback key) pairs.
var locationParamKeys = []string{
	"geo_city", "city",
	"geo_region", "region",
	"geo_country", "country",
}

// Parameters removed because they are promoted to the payload top level
// or are not representable in the wire format.
var extractedParams = []string{
	"client_id", "user_id", "session_id", "user_agent", "consent",
	"geo_city", "city", "geo_region", "region", "geo_country", "country",
	"geo_latitude", "latitude", "geo_longitude", "longitude",
	"language", "screen_resolution", "device_type", "device_model",
	"browser_name", "browser_version", "operating_system", "os_version",
	"ip_address", "timestamp", "timestamp_ms",
}

type Transformer struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *Transformer {
	return &Transformer{logger: logger}
}

// Transform builds the upstream payload for one delivery job. The
// result is deterministic: the same job always yields byte-identical
// serialized output.
func (t *Transformer) Transform(job *models.DeliveryJob) (*models.Payload, error) {
	event := &job.Event
	params := make(map[string]any, len(event.Params))
	for k, v := range event.Params {
		params[k] = v
	}

	payload := &models.Payload{
		ClientID: event.ClientID,
		Consent: &models.ConsentFields{
			AdUserData:        job.Consent.AdUserData,
			AdPersonalization: job.Consent.AdPersonalization,
		},
	}

	// Promote identity fields; they must not also appear as params.
	if payload.ClientID == "" {
		if cid, ok := params["client_id"].(string); ok {
			payload.ClientID = cid
		}
	}
	if uid, ok := params["user_id"].(string); ok {
		payload.UserID = uid
	}

	payload.UserLocation = extractLocation(params)
	payload.Device = extractDevice(params, job.UserAgent)

	if payload.UserAgent = job.UserAgent; payload.UserAgent == "" {
		if ua, ok := params["user_agent"].(string); ok {
			payload.UserAgent = ua
		}
	}

	// IP is a precise identifier; only forwarded with explicit consent.
	if job.Consent.AdUserData == models.ConsentGranted {
		payload.IPOverride = job.ClientIP
	}

	sessionID := event.SessionID
	if sessionID == "" {
		if sid, ok := params["session_id"].(string); ok {
			sessionID = sid
		}
	}

	for _, key := range extractedParams {
		delete(params, key)
	}

	if sessionID != "" {
		params["ga_session_id"] = sessionID
	}
	writeAttribution(params, job.Attribution)
	params["consent_status"] = job.Consent.AuditString()

	if len(params) > models.MaxEventParams {
		err := &TooManyParamsError{Event: event.Name, Count: len(params)}
		t.logger.Warn("transformation rejected",
			zap.String("event_name", event.Name),
			zap.Int("param_count", len(params)),
		)
		return nil, err
	}

	payload.Events = []models.PayloadEvent{{Name: event.Name, Params: params}}
	return payload, nil
}

// extractLocation removes location parameters and builds the
// structured user_location object. Latitude/longitude have no wire
// representation and are simply dropped.
func extractLocation(params map[string]any) *models.UserLocation {
	loc := &models.UserLocation{}

	for i := 0; i+1 < len(locationParamKeys); i += 2 {
		value, _ := params[locationParamKeys[i]].(string)
		if value == "" {
			value, _ = params[locationParamKeys[i+1]].(string)
		}
		switch locationParamKeys[i] {
		case "geo_city":
			loc.City = value
		case "geo_region":
			loc.RegionID = value
		case "geo_country":
			loc.CountryID = CountryISO(value)
		}
	}

	if loc.CountryID != "" {
		loc.ContinentID, loc.SubcontinentID = RegionOf(loc.CountryID)
	}

	if (*loc == models.UserLocation{}) {
		return nil
	}
	return loc
}

// extractDevice removes device parameters and builds the structured
// device object, parsing the raw user-agent when structured fields are
// absent.
func extractDevice(params map[string]any, userAgent string) *models.Device {
	str := func(key string) string {
		v, _ := params[key].(string)
		return v
	}

	device := models.Device{
		Category:         str("device_type"),
		Language:         str("language"),
		ScreenResolution: str("screen_resolution"),
		OperatingSystem:  str("operating_system"),
		OSVersion:        str("os_version"),
		Model:            str("device_model"),
		Browser:          str("browser_name"),
		BrowserVersion:   str("browser_version"),
	}

	if device.Browser == "" || device.OperatingSystem == "" {
		parsed := ParseUserAgent(userAgent)
		if device.Browser == "" {
			device.Browser = parsed.Browser
			device.BrowserVersion = parsed.BrowserVersion
		}
		if device.OperatingSystem == "" {
			device.OperatingSystem = parsed.OperatingSystem
			device.OSVersion = parsed.OSVersion
		}
		if device.Category == "" {
			device.Category = parsed.Category
		}
		if device.Model == "" {
			device.Model = parsed.Model
		}
	}

	if (device == models.Device{}) {
		return nil
	}
	return &device
}

// writeAttribution records the resolved attribution as event
// parameters. Empty fields are removed so stale donor values cannot
// survive a re-resolution.
func writeAttribution(params map[string]any, attribution models.AttributionContext) {
	set := func(key, value string) {
		if value != "" {
			params[key] = value
		} else {
			delete(params, key)
		}
	}
	set("source", attribution.Source)
	set("medium", attribution.Medium)
	set("campaign", attribution.Campaign)
	set("content", attribution.Content)
	set("term", attribution.Term)
	set("gclid", attribution.GCLID)
	set("traffic_type", attribution.TrafficType)
}
