package transform

import "testing"

func TestParseUserAgent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		ua          string
		wantBrowser string
		wantOS      string
		wantCat     string
	}{
		{
			name:        "chrome on windows",
			ua:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			wantBrowser: "Chrome",
			wantOS:      "Windows",
			wantCat:     "desktop",
		},
		{
			// Edge keeps the Chrome token; it must match before Chrome.
			name:        "edge on windows",
			ua:          "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.2210.91",
			wantBrowser: "Edge",
			wantOS:      "Windows",
			wantCat:     "desktop",
		},
		{
			name:        "safari on iphone",
			ua:          "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			wantBrowser: "Safari",
			wantOS:      "iOS",
			wantCat:     "mobile",
		},
		{
			name:        "firefox on linux",
			ua:          "Mozilla/5.0 (X11; Linux x86_64; rv:126.0) Gecko/20100101 Firefox/126.0",
			wantBrowser: "Firefox",
			wantOS:      "Linux",
			wantCat:     "desktop",
		},
		{
			name:        "chrome on android",
			ua:          "Mozilla/5.0 (Linux; Android 14; Pixel 8 Build/UQ1A.240105.004) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
			wantBrowser: "Chrome",
			wantOS:      "Android",
			wantCat:     "mobile",
		},
		{
			name:        "ipad is tablet",
			ua:          "Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			wantBrowser: "Safari",
			wantOS:      "iOS",
			wantCat:     "tablet",
		},
		{
			name:        "empty",
			ua:          "",
			wantBrowser: "",
			wantOS:      "",
			wantCat:     "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			device := ParseUserAgent(tt.ua)
			if device.Browser != tt.wantBrowser {
				t.Errorf("Browser = %q, want %q", device.Browser, tt.wantBrowser)
			}
			if device.OperatingSystem != tt.wantOS {
				t.Errorf("OperatingSystem = %q, want %q", device.OperatingSystem, tt.wantOS)
			}
			if device.Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", device.Category, tt.wantCat)
			}
		})
	}
}

func TestParseUserAgentAndroidModel(t *testing.T) {
	t.Parallel()

	ua := "Mozilla/5.0 (Linux; Android 14; Pixel 8 Build/UQ1A.240105.004) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36"
	device := ParseUserAgent(ua)
	if device.Model != "Pixel 8" {
		t.Errorf("Model = %q, want Pixel 8", device.Model)
	}
	if device.OSVersion != "14" {
		t.Errorf("OSVersion = %q, want 14", device.OSVersion)
	}
}

func TestCountryISO(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"NL", "NL"},
		{"nl", "NL"},
		{"Netherlands", "NL"},
		{"United States", "US"},
		{"", ""},
	}
	for _, tt := range tests {
		tt := tt
		if got := CountryISO(tt.in); got != tt.want {
			t.Errorf("CountryISO(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegionOf(t *testing.T) {
	t.Parallel()

	continent, subcontinent := RegionOf("NL")
	if continent != "150" || subcontinent != "155" {
		t.Errorf("RegionOf(NL) = (%q, %q), want (150, 155)", continent, subcontinent)
	}
	continent, subcontinent = RegionOf("ZZ")
	if continent != "" || subcontinent != "" {
		t.Errorf("RegionOf(ZZ) = (%q, %q), want empty", continent, subcontinent)
	}
}
