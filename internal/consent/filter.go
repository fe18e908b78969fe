// Package consent applies privacy-law-driven redaction to the upstream
// payload. The two policies are pure over the payload, idempotent, and
// independent of each other's ordering: they touch disjoint field sets.
package consent

import (
	"regexp"
	"strings"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// DenialMarker replaces attribution values that may not be transmitted
// under a denied personalization consent.
const DenialMarker = "(denied consent)"

// preciseGeoParams are event parameters dropped under a denied
// ad_user_data consent. Continent-level values stay.
var preciseGeoParams = []string{
	"geo_city", "geo_region", "geo_country",
	"geo_latitude", "geo_longitude",
	"city", "region", "country", "latitude", "longitude",
}

// adIdentifierParams are event parameters dropped under a denied
// ad_personalization consent.
var adIdentifierParams = []string{"gclid", "content", "term"}

// organicCampaigns are the canonical non-paid campaign sentinels that
// survive a personalization denial.
var organicCampaigns = map[string]bool{
	"organic":   true,
	"direct":    true,
	"(direct)":  true,
	"(not set)": true,
	"not-set":   true,
	"referral":  true,
}

// paidMediums indicate paid channels; source and medium are both
// replaced when one of these is present.
var paidMediums = map[string]bool{
	"cpc":         true,
	"ppc":         true,
	"paid-search": true,
	"paid_search": true,
	"paidsearch":  true,
	"display":     true,
	"banner":      true,
	"cpm":         true,
}

var (
	uaVersionPattern = regexp.MustCompile(`\d+[\d.]*`)
	uaParensPattern  = regexp.MustCompile(`\([^)]*\)`)
)

const maxAnonymizedUALength = 120

// Apply runs both redaction policies against the payload in place.
func Apply(p *models.Payload, decision models.ConsentDecision) {
	ApplyUserDataPolicy(p, decision)
	ApplyPersonalizationPolicy(p, decision)
}

// ApplyUserDataPolicy strips precise identifiers when ad_user_data is
// denied: persistent user id, persistent client id (replaced with a
// session-scoped pseudonym), precise geolocation, the raw user-agent,
// and the IP override.
func ApplyUserDataPolicy(p *models.Payload, decision models.ConsentDecision) {
	if decision.AdUserData != models.ConsentDenied {
		return
	}

	p.UserID = ""
	p.IPOverride = ""

	if !IsSynthetic(p.ClientID) {
		seed := p.ClientID
		if sid := firstParam(p, "ga_session_id", "session_id"); sid != "" {
			seed = sid
		}
		p.ClientID = SyntheticClientID(seed)
	}

	if p.UserLocation != nil {
		p.UserLocation.City = ""
		p.UserLocation.RegionID = ""
		p.UserLocation.CountryID = ""
		// Continent and subcontinent stay: coarse enough to be useless
		// as an identifier, still useful for reporting.
	}

	p.UserAgent = AnonymizeUserAgent(p.UserAgent)

	for i := range p.Events {
		for _, key := range preciseGeoParams {
			delete(p.Events[i].Params, key)
		}
		if ua, ok := p.Events[i].Params["user_agent"].(string); ok {
			p.Events[i].Params["user_agent"] = AnonymizeUserAgent(ua)
		}
	}
}

// ApplyPersonalizationPolicy strips advertising-attribution identifiers
// when ad_personalization is denied. Non-paid attribution (organic,
// direct, referral) passes through untouched.
func ApplyPersonalizationPolicy(p *models.Payload, decision models.ConsentDecision) {
	if decision.AdPersonalization != models.ConsentDenied {
		return
	}

	for i := range p.Events {
		params := p.Events[i].Params
		for _, key := range adIdentifierParams {
			delete(params, key)
		}

		if campaign, ok := params["campaign"].(string); ok {
			if !organicCampaigns[strings.ToLower(campaign)] && campaign != DenialMarker {
				params["campaign"] = DenialMarker
			}
		}

		if medium, ok := params["medium"].(string); ok && paidMediums[strings.ToLower(medium)] {
			params["medium"] = DenialMarker
			if _, ok := params["source"]; ok {
				params["source"] = DenialMarker
			}
		}

		if traffic, ok := params["traffic_type"].(string); ok && isPaidTraffic(traffic) {
			params["traffic_type"] = DenialMarker
		}
	}
}

// AnonymizeUserAgent coarsens a user-agent string: version numbers
// collapse to a placeholder, parenthetical system details are removed,
// and the result is capped.
func AnonymizeUserAgent(ua string) string {
	if ua == "" {
		return ""
	}
	ua = uaParensPattern.ReplaceAllString(ua, "(redacted)")
	ua = uaVersionPattern.ReplaceAllString(ua, "0")
	if len(ua) > maxAnonymizedUALength {
		ua = ua[:maxAnonymizedUALength]
	}
	return ua
}

func isPaidTraffic(traffic string) bool {
	switch strings.ToLower(traffic) {
	case models.TrafficPaidSearch, models.TrafficDisplay, "paid", "paid_social", "video":
		return true
	}
	return false
}

func firstParam(p *models.Payload, keys ...string) string {
	for i := range p.Events {
		for _, key := range keys {
			if v, ok := p.Events[i].Params[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return ""
}
