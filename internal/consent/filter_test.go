package consent

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

func samplePayload() *models.Payload {
	return &models.Payload{
		ClientID:   "1234567890.1111111111",
		UserID:     "user-42",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0.0.0",
		IPOverride: "203.0.113.7",
		UserLocation: &models.UserLocation{
			City:           "Amsterdam",
			RegionID:       "NL-NH",
			CountryID:      "NL",
			SubcontinentID: "155",
			ContinentID:    "150",
		},
		Events: []models.PayloadEvent{{
			Name: "page_view",
			Params: map[string]any{
				"ga_session_id": "s-999",
				"geo_city":      "Amsterdam",
				"source":        "google",
				"medium":        "cpc",
				"campaign":      "summer_sale",
				"gclid":         "abc123",
				"traffic_type":  "paid_search",
				"page_path":     "/home",
			},
		}},
	}
}

func clonePayload(t *testing.T, p *models.Payload) *models.Payload {
	t.Helper()
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var out models.Payload
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return &out
}

var allDenied = models.ConsentDecision{
	AdUserData:        models.ConsentDenied,
	AdPersonalization: models.ConsentDenied,
}

var allGranted = models.ConsentDecision{
	AdUserData:        models.ConsentGranted,
	AdPersonalization: models.ConsentGranted,
}

func TestApplyGrantedIsNoOp(t *testing.T) {
	t.Parallel()

	p := samplePayload()
	want := clonePayload(t, p)
	Apply(p, allGranted)
	if !reflect.DeepEqual(p, want) {
		t.Errorf("Apply() with full consent mutated the payload:\ngot  %+v\nwant %+v", p, want)
	}
}

func TestUserDataPolicy(t *testing.T) {
	t.Parallel()

	p := samplePayload()
	ApplyUserDataPolicy(p, allDenied)

	if p.UserID != "" {
		t.Errorf("UserID = %q, want cleared", p.UserID)
	}
	if p.IPOverride != "" {
		t.Errorf("IPOverride = %q, want cleared", p.IPOverride)
	}
	if !IsSynthetic(p.ClientID) {
		t.Errorf("ClientID = %q, want synthetic", p.ClientID)
	}
	// The pseudonym is seeded by the session so it stays stable within
	// one session.
	if want := SyntheticClientID("s-999"); p.ClientID != want {
		t.Errorf("ClientID = %q, want %q", p.ClientID, want)
	}
	if p.UserLocation.City != "" || p.UserLocation.RegionID != "" || p.UserLocation.CountryID != "" {
		t.Errorf("precise location survived: %+v", p.UserLocation)
	}
	if p.UserLocation.ContinentID != "150" || p.UserLocation.SubcontinentID != "155" {
		t.Errorf("coarse location was removed: %+v", p.UserLocation)
	}
	if _, ok := p.Events[0].Params["geo_city"]; ok {
		t.Error("geo_city param survived")
	}
	if p.UserAgent == samplePayload().UserAgent {
		t.Errorf("UserAgent not anonymized: %q", p.UserAgent)
	}

	// Personalization fields are untouched by this policy.
	if got := p.Events[0].Params["gclid"]; got != "abc123" {
		t.Errorf("gclid = %v, want untouched", got)
	}
}

func TestPersonalizationPolicy(t *testing.T) {
	t.Parallel()

	p := samplePayload()
	ApplyPersonalizationPolicy(p, allDenied)

	params := p.Events[0].Params
	if _, ok := params["gclid"]; ok {
		t.Error("gclid survived a personalization denial")
	}
	if got := params["campaign"]; got != DenialMarker {
		t.Errorf("campaign = %v, want marker", got)
	}
	if got := params["medium"]; got != DenialMarker {
		t.Errorf("medium = %v, want marker", got)
	}
	if got := params["source"]; got != DenialMarker {
		t.Errorf("source = %v, want marker (paid medium)", got)
	}
	if got := params["traffic_type"]; got != DenialMarker {
		t.Errorf("traffic_type = %v, want marker", got)
	}

	// User-data fields are untouched by this policy.
	if p.UserID != "user-42" {
		t.Errorf("UserID = %q, want untouched", p.UserID)
	}
	if p.ClientID != "1234567890.1111111111" {
		t.Errorf("ClientID = %q, want untouched", p.ClientID)
	}
}

func TestPersonalizationPolicyKeepsOrganic(t *testing.T) {
	t.Parallel()

	p := &models.Payload{Events: []models.PayloadEvent{{
		Name: "page_view",
		Params: map[string]any{
			"source":       "google",
			"medium":       "organic",
			"campaign":     "organic",
			"traffic_type": "organic_search",
		},
	}}}
	ApplyPersonalizationPolicy(p, allDenied)

	params := p.Events[0].Params
	for key, want := range map[string]string{
		"source":       "google",
		"medium":       "organic",
		"campaign":     "organic",
		"traffic_type": "organic_search",
	} {
		if got := params[key]; got != want {
			t.Errorf("%s = %v, want %q (organic attribution must survive)", key, got, want)
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	t.Parallel()

	once := samplePayload()
	Apply(once, allDenied)
	twice := clonePayload(t, once)
	Apply(twice, allDenied)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("Apply(Apply(p)) != Apply(p):\nonce  %+v\ntwice %+v", once, twice)
	}
}

func TestPoliciesAreOrderIndependent(t *testing.T) {
	t.Parallel()

	a := samplePayload()
	ApplyUserDataPolicy(a, allDenied)
	ApplyPersonalizationPolicy(a, allDenied)

	b := samplePayload()
	ApplyPersonalizationPolicy(b, allDenied)
	ApplyUserDataPolicy(b, allDenied)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("policy order changed the result:\nuser-first %+v\nperso-first %+v", a, b)
	}
}

func TestAnonymizeUserAgent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ua   string
		want string
	}{
		{"empty", "", ""},
		{
			"versions and parens",
			"Mozilla/5.0 (Windows NT 10.0; Win64) Chrome/120.0.0.0",
			"Mozilla/0 (redacted) Chrome/0",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := AnonymizeUserAgent(tt.ua)
			if got != tt.want {
				t.Errorf("AnonymizeUserAgent(%q) = %q, want %q", tt.ua, got, tt.want)
			}
			// A fixed point: anonymizing twice changes nothing.
			if again := AnonymizeUserAgent(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestSyntheticClientID(t *testing.T) {
	t.Parallel()

	a := SyntheticClientID("seed-1")
	b := SyntheticClientID("seed-1")
	c := SyntheticClientID("seed-2")

	if a != b {
		t.Errorf("same seed produced different ids: %q vs %q", a, b)
	}
	if a == c {
		t.Error("different seeds produced the same id")
	}
	if !IsSynthetic(a) {
		t.Errorf("IsSynthetic(%q) = false", a)
	}
	if IsSynthetic("1234567890.1111111111") {
		t.Error("IsSynthetic() flagged a real client id")
	}
}
