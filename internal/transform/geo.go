package transform

import "strings"

// countryCodes maps free-text country names (lowercased) to ISO 3166-1
// alpha-2 codes. Unknown names fall back to the first two letters
// uppercased.
var countryCodes = map[string]string{
	"netherlands":              "NL",
	"the netherlands":          "NL",
	"holland":                  "NL",
	"belgium":                  "BE",
	"germany":                  "DE",
	"france":                   "FR",
	"spain":                    "ES",
	"portugal":                 "PT",
	"italy":                    "IT",
	"austria":                  "AT",
	"switzerland":              "CH",
	"luxembourg":               "LU",
	"united kingdom":           "GB",
	"great britain":            "GB",
	"england":                  "GB",
	"ireland":                  "IE",
	"denmark":                  "DK",
	"sweden":                   "SE",
	"norway":                   "NO",
	"finland":                  "FI",
	"iceland":                  "IS",
	"poland":                   "PL",
	"czech republic":           "CZ",
	"czechia":                  "CZ",
	"slovakia":                 "SK",
	"hungary":                  "HU",
	"romania":                  "RO",
	"bulgaria":                 "BG",
	"greece":                   "GR",
	"croatia":                  "HR",
	"slovenia":                 "SI",
	"estonia":                  "EE",
	"latvia":                   "LV",
	"lithuania":                "LT",
	"ukraine":                  "UA",
	"russia":                   "RU",
	"turkey":                   "TR",
	"united states":            "US",
	"united states of america": "US",
	"usa":                      "US",
	"canada":                   "CA",
	"mexico":                   "MX",
	"brazil":                   "BR",
	"argentina":                "AR",
	"chile":                    "CL",
	"colombia":                 "CO",
	"china":                    "CN",
	"japan":                    "JP",
	"south korea":              "KR",
	"india":                    "IN",
	"indonesia":                "ID",
	"singapore":                "SG",
	"thailand":                 "TH",
	"vietnam":                  "VN",
	"philippines":              "PH",
	"malaysia":                 "MY",
	"australia":                "AU",
	"new zealand":              "NZ",
	"south africa":             "ZA",
	"nigeria":                  "NG",
	"egypt":                    "EG",
	"morocco":                  "MA",
	"israel":                   "IL",
	"saudi arabia":             "SA",
	"united arab emirates":     "AE",
}

type region struct {
	continent    string
	subcontinent string
}

// countryRegions maps ISO country codes to UN M49 continent and
// subcontinent identifiers, the encoding the upstream user_location
// object expects.
var countryRegions = map[string]region{
	"NL": {"150", "155"}, "BE": {"150", "155"}, "DE": {"150", "155"},
	"FR": {"150", "155"}, "AT": {"150", "155"}, "CH": {"150", "155"},
	"LU": {"150", "155"},
	"GB": {"150", "154"}, "IE": {"150", "154"}, "DK": {"150", "154"},
	"SE": {"150", "154"}, "NO": {"150", "154"}, "FI": {"150", "154"},
	"IS": {"150", "154"}, "EE": {"150", "154"}, "LV": {"150", "154"},
	"LT": {"150", "154"},
	"ES": {"150", "039"}, "PT": {"150", "039"}, "IT": {"150", "039"},
	"GR": {"150", "039"}, "HR": {"150", "039"}, "SI": {"150", "039"},
	"PL": {"150", "151"}, "CZ": {"150", "151"}, "SK": {"150", "151"},
	"HU": {"150", "151"}, "RO": {"150", "151"}, "BG": {"150", "151"},
	"UA": {"150", "151"}, "RU": {"150", "151"},
	"TR": {"142", "145"}, "IL": {"142", "145"}, "SA": {"142", "145"},
	"AE": {"142", "145"},
	"US": {"019", "021"}, "CA": {"019", "021"}, "MX": {"019", "013"},
	"BR": {"019", "005"}, "AR": {"019", "005"}, "CL": {"019", "005"},
	"CO": {"019", "005"},
	"CN": {"142", "030"}, "JP": {"142", "030"}, "KR": {"142", "030"},
	"IN": {"142", "034"},
	"ID": {"142", "035"}, "SG": {"142", "035"}, "TH": {"142", "035"},
	"VN": {"142", "035"}, "PH": {"142", "035"}, "MY": {"142", "035"},
	"AU": {"009", "053"}, "NZ": {"009", "053"},
	"ZA": {"002", "018"}, "NG": {"002", "011"}, "EG": {"002", "015"},
	"MA": {"002", "015"},
}

// CountryISO converts a free-text country value to an ISO 3166-1
// alpha-2 code. Two-letter inputs pass through uppercased; unknown
// names use the first-two-letters heuristic.
func CountryISO(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if len(raw) == 2 {
		return strings.ToUpper(raw)
	}
	if code, ok := countryCodes[strings.ToLower(raw)]; ok {
		return code
	}
	letters := []rune(raw)
	return strings.ToUpper(string(letters[:2]))
}

// RegionOf returns the UN M49 continent and subcontinent identifiers
// for an ISO country code, or empty strings when unmapped.
func RegionOf(countryID string) (continent, subcontinent string) {
	r, ok := countryRegions[strings.ToUpper(countryID)]
	if !ok {
		return "", ""
	}
	return r.continent, r.subcontinent
}
