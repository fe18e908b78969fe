package models

// MaxEventParams is the upstream Measurement Protocol ceiling on the
// number of entries in events[0].params. Events still over the ceiling
// after all top-level extractions are rejected, never truncated.
const MaxEventParams = 25

// Payload is the upstream Measurement Protocol wire object.
type Payload struct {
	ClientID     string         `json:"client_id"`
	UserID       string         `json:"user_id,omitempty"`
	Events       []PayloadEvent `json:"events"`
	Consent      *ConsentFields `json:"consent,omitempty"`
	UserLocation *UserLocation  `json:"user_location,omitempty"`
	Device       *Device        `json:"device,omitempty"`
	UserAgent    string         `json:"user_agent,omitempty"`
	IPOverride   string         `json:"ip_override,omitempty"`
}

// PayloadEvent is one event inside the wire object.
type PayloadEvent struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// ConsentFields is the structured consent object the upstream endpoint
// accepts. Only the two canonical fields; anything else collected at
// intake is dropped here.
type ConsentFields struct {
	AdUserData        ConsentState `json:"ad_user_data"`
	AdPersonalization ConsentState `json:"ad_personalization"`
}

// UserLocation is the structured geographic object extracted from event
// parameters.
type UserLocation struct {
	City         string `json:"city,omitempty"`
	RegionID     string `json:"region_id,omitempty"`
	CountryID    string `json:"country_id,omitempty"`
	SubcontinentID string `json:"subcontinent_id,omitempty"`
	ContinentID  string `json:"continent_id,omitempty"`
}

// Device is the structured device/browser object extracted from event
// parameters or parsed from the raw user-agent string.
type Device struct {
	Category        string `json:"category,omitempty"`
	Language        string `json:"language,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	OperatingSystem string `json:"operating_system,omitempty"`
	OSVersion       string `json:"operating_system_version,omitempty"`
	Model           string `json:"model,omitempty"`
	Browser         string `json:"browser,omitempty"`
	BrowserVersion  string `json:"browser_version,omitempty"`
}
