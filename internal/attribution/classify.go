package attribution

import (
	"net/url"
	"strings"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// Channel matching tables. Adding a source or domain is a data change;
// the precedence lives in ClassifyTraffic.

var searchEngineSources = map[string]bool{
	"google":     true,
	"bing":       true,
	"yahoo":      true,
	"duckduckgo": true,
	"baidu":      true,
	"yandex":     true,
	"ecosia":     true,
	"startpage":  true,
	"qwant":      true,
}

var searchEngineDomains = map[string]string{
	"www.google.com":     "google",
	"www.google.nl":      "google",
	"www.google.de":      "google",
	"www.google.co.uk":   "google",
	"www.bing.com":       "bing",
	"search.yahoo.com":   "yahoo",
	"duckduckgo.com":     "duckduckgo",
	"www.baidu.com":      "baidu",
	"yandex.ru":          "yandex",
	"www.ecosia.org":     "ecosia",
	"www.startpage.com":  "startpage",
	"www.qwant.com":      "qwant",
}

var socialSources = map[string]bool{
	"facebook":  true,
	"instagram": true,
	"twitter":   true,
	"x":         true,
	"linkedin":  true,
	"pinterest": true,
	"tiktok":    true,
	"youtube":   true,
	"reddit":    true,
	"snapchat":  true,
}

var socialDomains = map[string]string{
	"www.facebook.com":  "facebook",
	"m.facebook.com":    "facebook",
	"l.facebook.com":    "facebook",
	"www.instagram.com": "instagram",
	"l.instagram.com":   "instagram",
	"twitter.com":       "twitter",
	"t.co":              "twitter",
	"x.com":             "x",
	"www.linkedin.com":  "linkedin",
	"lnkd.in":           "linkedin",
	"www.pinterest.com": "pinterest",
	"www.tiktok.com":    "tiktok",
	"www.youtube.com":   "youtube",
	"youtu.be":          "youtube",
	"www.reddit.com":    "reddit",
	"out.reddit.com":    "reddit",
}

// paymentProviderDomains classifies checkout-redirect referrals
// distinctly from plain referral traffic, so a visitor bounced through
// a payment screen is not re-attributed to the provider.
var paymentProviderDomains = map[string]bool{
	"www.paypal.com":        true,
	"paypal.com":            true,
	"checkout.stripe.com":   true,
	"pay.google.com":        true,
	"www.mollie.com":        true,
	"checkout.mollie.com":   true,
	"pay.klarna.com":        true,
	"www.klarna.com":        true,
	"checkout.adyen.com":    true,
	"live.adyen.com":        true,
	"ideal.abnamro.nl":      true,
	"betalen.rabobank.nl":   true,
	"ideal.ing.nl":          true,
	"secure.pay.nl":         true,
}

var paidSearchMediums = map[string]bool{
	"cpc":         true,
	"ppc":         true,
	"paid-search": true,
	"paid_search": true,
	"paidsearch":  true,
	"sem":         true,
}

var displayMediums = map[string]bool{
	"display": true,
	"banner":  true,
	"cpm":     true,
	"video":   true,
}

var emailMediums = map[string]bool{
	"email":      true,
	"e-mail":     true,
	"e_mail":     true,
	"newsletter": true,
}

var affiliateMediums = map[string]bool{
	"affiliate":  true,
	"affiliates": true,
	"partner":    true,
}

var socialMediums = map[string]bool{
	"social":        true,
	"social-media":  true,
	"social_media":  true,
	"sm":            true,
}

// ClassifyTraffic maps a (source, medium) pair to a traffic type with a
// fixed precedence order; the first matching rule wins.
func ClassifyTraffic(source, medium string) string {
	source = strings.ToLower(strings.TrimSpace(source))
	medium = strings.ToLower(strings.TrimSpace(medium))

	switch {
	case source == "(internal)" || medium == "internal":
		return models.TrafficInternal
	case (source == "(direct)" || source == "direct" || source == "") &&
		(medium == "(none)" || medium == "none" || medium == ""):
		return models.TrafficDirect
	case medium == "organic" || (searchEngineSources[source] && !paidSearchMediums[medium]):
		return models.TrafficOrganic
	case paidSearchMediums[medium]:
		return models.TrafficPaidSearch
	case socialSources[source] || socialMediums[medium]:
		return models.TrafficSocial
	case emailMediums[medium]:
		return models.TrafficEmail
	case affiliateMediums[medium]:
		return models.TrafficAffiliate
	case medium == "referral" || medium == "payment_referral":
		if medium == "payment_referral" {
			return models.TrafficPaymentReferral
		}
		return models.TrafficReferral
	case displayMediums[medium]:
		return models.TrafficDisplay
	default:
		return models.TrafficOther
	}
}

// PageContext is the navigation context a single event reports:
// explicit campaign parameters plus the document referrer.
type PageContext struct {
	Referrer string
	Source   string
	Medium   string
	Campaign string
	Content  string
	Term     string
	GCLID    string
}

// pageContextOf pulls the navigation context out of event parameters,
// accepting both utm_-prefixed and bare keys.
func pageContextOf(event *models.NormalizedEvent) PageContext {
	pick := func(keys ...string) string {
		for _, k := range keys {
			if v := event.Param(k); v != "" {
				return v
			}
		}
		return ""
	}
	return PageContext{
		Referrer: pick("page_referrer", "referrer"),
		Source:   pick("utm_source", "source"),
		Medium:   pick("utm_medium", "medium"),
		Campaign: pick("utm_campaign", "campaign"),
		Content:  pick("utm_content", "content"),
		Term:     pick("utm_term", "term"),
		GCLID:    pick("gclid"),
	}
}

// classifyPage derives first-touch attribution from the navigation
// context. internalDomains are same-site hosts; navigation from them is
// classified internal rather than referral.
func classifyPage(page PageContext, internalDomains []string) models.AttributionContext {
	// A Google click id marks paid search regardless of anything else.
	if page.GCLID != "" {
		ctx := models.AttributionContext{
			Source:      "google",
			Medium:      "cpc",
			Campaign:    page.Campaign,
			Content:     page.Content,
			Term:        page.Term,
			GCLID:       page.GCLID,
			TrafficType: models.TrafficPaidSearch,
		}
		if page.Source != "" {
			ctx.Source = page.Source
		}
		return ctx
	}

	// Explicit campaign parameters win over the referrer.
	if page.Source != "" || page.Medium != "" {
		return models.AttributionContext{
			Source:      page.Source,
			Medium:      page.Medium,
			Campaign:    page.Campaign,
			Content:     page.Content,
			Term:        page.Term,
			TrafficType: ClassifyTraffic(page.Source, page.Medium),
		}
	}

	host := referrerHost(page.Referrer)
	switch {
	case host == "":
		return models.AttributionContext{
			Source:      "(direct)",
			Medium:      "(none)",
			TrafficType: models.TrafficDirect,
		}
	case matchesDomain(host, internalDomains):
		return models.AttributionContext{
			Source:      "(internal)",
			Medium:      "internal",
			TrafficType: models.TrafficInternal,
		}
	case paymentProviderDomains[host]:
		return models.AttributionContext{
			Source:      host,
			Medium:      "payment_referral",
			TrafficType: models.TrafficPaymentReferral,
		}
	default:
		if engine, ok := searchEngineDomains[host]; ok {
			return models.AttributionContext{
				Source:      engine,
				Medium:      "organic",
				TrafficType: models.TrafficOrganic,
			}
		}
		if network, ok := socialDomains[host]; ok {
			return models.AttributionContext{
				Source:      network,
				Medium:      "social",
				TrafficType: models.TrafficSocial,
			}
		}
		return models.AttributionContext{
			Source:      host,
			Medium:      "referral",
			TrafficType: models.TrafficReferral,
		}
	}
}

func referrerHost(referrer string) string {
	if referrer == "" {
		return ""
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}

func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
