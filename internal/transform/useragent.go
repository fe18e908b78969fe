package transform

import (
	"regexp"
	"strings"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// Browser rules are evaluated in order; precedence matters because
// Chromium derivatives keep the Chrome token (Edge and Opera must match
// before generic Chrome, Chrome before Safari).
type browserRule struct {
	name    string
	pattern *regexp.Regexp
}

var browserRules = []browserRule{
	{"Edge", regexp.MustCompile(`Edg(?:e|A|iOS)?/([\d.]+)`)},
	{"Opera", regexp.MustCompile(`OPR/([\d.]+)`)},
	{"Samsung Internet", regexp.MustCompile(`SamsungBrowser/([\d.]+)`)},
	{"Firefox", regexp.MustCompile(`Firefox/([\d.]+)`)},
	{"Chrome", regexp.MustCompile(`Chrome/([\d.]+)`)},
	{"Safari", regexp.MustCompile(`Version/([\d.]+).*Safari/`)},
}

type osRule struct {
	name    string
	pattern *regexp.Regexp
}

var osRules = []osRule{
	{"Windows", regexp.MustCompile(`Windows NT ([\d.]+)`)},
	{"iOS", regexp.MustCompile(`(?:iPhone|iPad).*OS ([\d_]+)`)},
	{"macOS", regexp.MustCompile(`Mac OS X ([\d_.]+)`)},
	{"Android", regexp.MustCompile(`Android ([\d.]+)`)},
	{"Chrome OS", regexp.MustCompile(`CrOS [\w]+ ([\d.]+)`)},
	{"Linux", regexp.MustCompile(`(Linux)`)},
}

var androidModelPattern = regexp.MustCompile(`;\s*([^;)]+?)\s+Build/`)

// ParseUserAgent extracts browser, operating system, model and device
// category from a raw user-agent string. Used when the client did not
// report structured device fields.
func ParseUserAgent(ua string) models.Device {
	var device models.Device
	if ua == "" {
		return device
	}

	for _, rule := range browserRules {
		if m := rule.pattern.FindStringSubmatch(ua); m != nil {
			device.Browser = rule.name
			device.BrowserVersion = m[1]
			break
		}
	}

	for _, rule := range osRules {
		if m := rule.pattern.FindStringSubmatch(ua); m != nil {
			device.OperatingSystem = rule.name
			if rule.name != "Linux" {
				device.OSVersion = strings.ReplaceAll(m[1], "_", ".")
			}
			break
		}
	}

	switch {
	case strings.Contains(ua, "iPad") || strings.Contains(ua, "Tablet"):
		device.Category = "tablet"
	case strings.Contains(ua, "Mobile") || strings.Contains(ua, "iPhone") ||
		strings.Contains(ua, "Android"):
		device.Category = "mobile"
	default:
		device.Category = "desktop"
	}

	switch {
	case strings.Contains(ua, "iPhone"):
		device.Model = "iPhone"
	case strings.Contains(ua, "iPad"):
		device.Model = "iPad"
	case strings.Contains(ua, "Android"):
		if m := androidModelPattern.FindStringSubmatch(ua); m != nil {
			device.Model = strings.TrimSpace(m[1])
		}
	}

	return device
}
