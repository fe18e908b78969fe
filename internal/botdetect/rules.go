package botdetect

import "regexp"

// Signature rules are data, not code: adding a new bot signature is a
// table addition evaluated by the generic matcher in gate.go.
type signatureRule struct {
	pattern *regexp.Regexp
	reason  string
}

func compileRules(pairs [][2]string) []signatureRule {
	rules := make([]signatureRule, 0, len(pairs))
	for _, p := range pairs {
		rules = append(rules, signatureRule{
			pattern: regexp.MustCompile(p[0]),
			reason:  p[1],
		})
	}
	return rules
}

// userAgentRules matches the user-agent header against curated bot,
// crawler and automation signatures. Patterns are case-insensitive.
var userAgentRules = compileRules([][2]string{
	// Search engine crawlers
	{`(?i)googlebot|bingbot|slurp|duckduckbot|baiduspider|yandex(bot|images)|sogou|exabot`, "search_engine_crawler"},
	{`(?i)applebot|petalbot|seznambot|qwantify`, "search_engine_crawler"},
	// Social preview fetchers
	{`(?i)facebookexternalhit|facebot|twitterbot|linkedinbot|pinterest(bot)?|slackbot|telegrambot|whatsapp|discordbot`, "social_preview_bot"},
	// SEO and marketing tools
	{`(?i)ahrefsbot|semrushbot|mj12bot|dotbot|rogerbot|screaming frog|seokicks|serpstatbot|dataforseobot|blexbot`, "seo_tool"},
	// Uptime and monitoring
	{`(?i)pingdom|uptimerobot|statuscake|site24x7|newrelicpinger|datadog|checkly|freshping`, "monitoring_service"},
	// HTTP libraries and automation frameworks
	{`(?i)curl/|wget/|python-requests|python-urllib|go-http-client|okhttp|java/|libwww-perl|apache-httpclient|axios/|node-fetch|got/|guzzlehttp`, "http_library"},
	{`(?i)scrapy|mechanize|phantomjs|selenium|webdriver|puppeteer|playwright|cypress`, "automation_framework"},
	// Headless browsers
	{`(?i)headlesschrome|headless`, "headless_browser"},
	// AI crawlers
	{`(?i)gptbot|chatgpt-user|ccbot|anthropic-ai|claudebot|google-extended|bytespider|perplexitybot|cohere-ai|diffbot`, "ai_crawler"},
	// Generic giveaways
	{`(?i)\b(bot|crawler|spider|scraper|fetcher)\b`, "generic_bot_token"},
})

// contentAutomationRules matches automation tokens inside the
// client-reported user-agent embedded in event parameters.
var contentAutomationRules = compileRules([][2]string{
	{`(?i)headless`, "param_ua_headless"},
	{`(?i)selenium|webdriver`, "param_ua_webdriver"},
	{`(?i)puppeteer|playwright|phantomjs`, "param_ua_automation_framework"},
	{`(?i)\b(bot|crawler|spider)\b`, "param_ua_bot_token"},
})

// placeholderCountries are edge-network country codes that never map to
// real visitor geography.
var placeholderCountries = map[string]bool{
	"XX": true, // unknown
	"ZZ": true, // reserved
	"T1": true, // Tor exit
	"A1": true, // anonymous proxy
	"A2": true, // satellite provider
	"O1": true, // other
}

// genericCities are city values reported for placeholder geography.
var genericCities = map[string]bool{
	"":        true,
	"unknown": true,
	"n/a":     true,
	"none":    true,
	"null":    true,
	"city":    true,
}

// botNetworks are autonomous systems with a dominant share of
// datacenter/bot traffic for this workload. Values are AS numbers as
// reported by the edge network.
var botNetworks = map[string]string{
	"AS15169": "google_cloud",
	"AS16509": "aws",
	"AS14618": "aws",
	"AS8075":  "azure",
	"AS14061": "digitalocean",
	"AS16276": "ovh",
	"AS24940": "hetzner",
	"AS63949": "linode",
	"AS20473": "vultr",
	"AS9009":  "m247",
}

// automationHeaders are request headers only automation tooling sends.
var automationHeaders = []string{
	"x-automation",
	"x-selenium",
	"x-puppeteer",
	"x-headless",
	"x-scrapy",
}

// suspiciousTimezones are client-reported timezone values that real
// browsers in real locales rarely report.
var suspiciousTimezones = map[string]bool{
	"utc":         true,
	"etc/utc":     true,
	"etc/unknown": true,
	"gmt":         true,
}
