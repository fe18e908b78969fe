package botdetect

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/config"
	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// RequestInfo is the transport-level view of one intake request, as
// seen by the gate. Headers use lower-cased keys. Country, City, ASN
// and ThreatScore come from the edge network when present.
type RequestInfo struct {
	UserAgent   string
	Headers     map[string]string
	Country     string
	City        string
	ASN         string
	ThreatScore int
}

// Gate is the multi-signal bot scorer. Each signal is an independent,
// order-insensitive boolean check with a reason; a request is a bot
// when the number of positive signals reaches the ensemble threshold.
// Individual signals have meaningful false-positive rates (corporate
// VPN exits, legitimate QA automation), so one signal alone never
// condemns a request.
type Gate struct {
	cfg    *config.SecurityConfig
	logger *zap.Logger
}

func NewGate(cfg *config.SecurityConfig, logger *zap.Logger) *Gate {
	return &Gate{cfg: cfg, logger: logger}
}

// Evaluate scores one request plus its representative event. For batch
// requests the caller passes the first event and applies the verdict to
// the whole batch.
func (g *Gate) Evaluate(req *RequestInfo, event *models.NormalizedEvent) models.BotVerdict {
	signals := []func(*RequestInfo, *models.NormalizedEvent) (bool, []string){
		g.checkUserAgent,
		g.checkGeo,
		g.checkEdgeNetwork,
		g.checkHeaders,
		g.checkTelemetry,
		g.checkBehavior,
		g.checkEventContent,
	}

	verdict := models.BotVerdict{Reasons: []string{}}
	for _, signal := range signals {
		positive, reasons := signal(req, event)
		if positive {
			verdict.Score++
			verdict.Reasons = append(verdict.Reasons, reasons...)
		}
	}
	verdict.IsBot = verdict.Score >= g.cfg.BotSignalThreshold

	g.logger.Info("bot verdict",
		zap.Bool("is_bot", verdict.IsBot),
		zap.Int("score", verdict.Score),
		zap.Strings("reasons", verdict.Reasons),
		zap.String("event_name", event.Name),
	)

	return verdict
}

// checkUserAgent matches the transport user-agent against the
// signature table and flags structural anomalies.
func (g *Gate) checkUserAgent(req *RequestInfo, _ *models.NormalizedEvent) (bool, []string) {
	ua := req.UserAgent
	if ua == "" {
		return true, []string{"ua_missing"}
	}

	for _, rule := range userAgentRules {
		if rule.pattern.MatchString(ua) {
			return true, []string{"ua_signature:" + rule.reason}
		}
	}

	var reasons []string
	if len(ua) < 20 {
		reasons = append(reasons, "ua_too_short")
	}
	if len(strings.Fields(ua)) < 3 {
		reasons = append(reasons, "ua_too_few_tokens")
	}
	if !strings.Contains(ua, "Mozilla/") && !strings.Contains(ua, "AppleWebKit") &&
		!strings.Contains(ua, "Gecko") {
		reasons = append(reasons, "ua_missing_browser_tokens")
	}
	return len(reasons) > 0, reasons
}

func (g *Gate) checkGeo(req *RequestInfo, _ *models.NormalizedEvent) (bool, []string) {
	var reasons []string
	if placeholderCountries[strings.ToUpper(req.Country)] {
		reasons = append(reasons, "geo_placeholder_country:"+req.Country)
	}
	// Only score the city when the edge network annotated the request
	// at all; without a country every request would flag on the
	// missing city.
	if req.Country != "" {
		if city := strings.ToLower(strings.TrimSpace(req.City)); genericCities[city] {
			reasons = append(reasons, "geo_generic_city:"+city)
		}
	}
	return len(reasons) > 0, reasons
}

func (g *Gate) checkEdgeNetwork(req *RequestInfo, _ *models.NormalizedEvent) (bool, []string) {
	var reasons []string
	if label, ok := botNetworks[strings.ToUpper(req.ASN)]; ok {
		reasons = append(reasons, "edge_bot_network:"+label)
	}
	if req.ThreatScore >= g.cfg.ThreatScoreThreshold {
		reasons = append(reasons, fmt.Sprintf("edge_threat_score:%d", req.ThreatScore))
	}
	return len(reasons) > 0, reasons
}

// checkHeaders counts header anomalies; the signal is positive only
// when enough anomalies corroborate each other.
func (g *Gate) checkHeaders(req *RequestInfo, _ *models.NormalizedEvent) (bool, []string) {
	var reasons []string
	if req.Headers["accept-language"] == "" {
		reasons = append(reasons, "header_no_accept_language")
	}
	if req.Headers["accept-encoding"] == "" {
		reasons = append(reasons, "header_no_accept_encoding")
	}
	if accept := strings.TrimSpace(req.Headers["accept"]); accept == "*/*" {
		reasons = append(reasons, "header_generic_accept")
	}
	for _, h := range automationHeaders {
		if req.Headers[h] != "" {
			reasons = append(reasons, "header_automation:"+h)
		}
	}
	if len(reasons) < g.cfg.HeaderAnomalyMin {
		return false, nil
	}
	return true, reasons
}

// checkTelemetry inspects client-reported browser telemetry inside the
// event parameters. Requires corroboration like checkHeaders.
func (g *Gate) checkTelemetry(_ *RequestInfo, event *models.NormalizedEvent) (bool, []string) {
	var reasons []string
	if boolParam(event, "webdriver") || boolParam(event, "automation_detected") {
		reasons = append(reasons, "telemetry_webdriver")
	}
	if explicitFalse(event, "js_enabled") {
		reasons = append(reasons, "telemetry_js_disabled")
	}
	if w, h, ok := screenDims(event); ok && (w <= 0 || h <= 0 || (w < 100 && h < 100)) {
		reasons = append(reasons, fmt.Sprintf("telemetry_impossible_screen:%dx%d", w, h))
	}
	if n, ok := numberParam(event, "hardware_concurrency"); ok && n == 0 {
		reasons = append(reasons, "telemetry_zero_concurrency")
	}
	if explicitFalse(event, "cookies_enabled") {
		reasons = append(reasons, "telemetry_cookies_disabled")
	}
	if tz := strings.ToLower(event.Param("timezone")); suspiciousTimezones[tz] {
		reasons = append(reasons, "telemetry_suspicious_timezone:"+tz)
	}
	if len(reasons) < g.cfg.TelemetryAnomalyMin {
		return false, nil
	}
	return true, reasons
}

// checkBehavior inspects timing parameters for patterns human traffic
// does not produce. Requires corroboration.
func (g *Gate) checkBehavior(_ *RequestInfo, event *models.NormalizedEvent) (bool, []string) {
	var reasons []string
	if d, ok := numberParam(event, "session_duration"); ok && d > 0 && d < 1000 {
		reasons = append(reasons, "behavior_subsecond_session")
	}
	if ts, ok := numberParam(event, "timestamp_ms"); ok && ts > 0 && int64(ts)%1000 == 0 {
		reasons = append(reasons, "behavior_round_timestamp")
	}
	if e, ok := numberParam(event, "engagement_time_msec"); ok && e > 0 && e < 50 {
		reasons = append(reasons, "behavior_instant_engagement")
	}
	if s, ok := numberParam(event, "scroll_percentage"); ok {
		switch s {
		case 25, 50, 75, 100:
			reasons = append(reasons, "behavior_perfect_scroll")
		}
	}
	if len(reasons) < g.cfg.BehaviorAnomalyMin {
		return false, nil
	}
	return true, reasons
}

// checkEventContent matches automation tokens inside a client-reported
// user-agent value embedded in the event parameters.
func (g *Gate) checkEventContent(_ *RequestInfo, event *models.NormalizedEvent) (bool, []string) {
	ua := event.Param("user_agent")
	if ua == "" {
		return false, nil
	}
	for _, rule := range contentAutomationRules {
		if rule.pattern.MatchString(ua) {
			return true, []string{"content:" + rule.reason}
		}
	}
	return false, nil
}

func boolParam(event *models.NormalizedEvent, key string) bool {
	switch v := event.Params[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}

// explicitFalse reports whether the parameter is present and false;
// absence is not an anomaly.
func explicitFalse(event *models.NormalizedEvent, key string) bool {
	switch v := event.Params[key].(type) {
	case bool:
		return !v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return !b
		}
	}
	return false
}

func numberParam(event *models.NormalizedEvent, key string) (float64, bool) {
	switch v := event.Params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func screenDims(event *models.NormalizedEvent) (int, int, bool) {
	if w, wok := numberParam(event, "screen_width"); wok {
		if h, hok := numberParam(event, "screen_height"); hok {
			return int(w), int(h), true
		}
	}
	res := event.Param("screen_resolution")
	if res == "" {
		return 0, 0, false
	}
	parts := strings.SplitN(strings.ToLower(res), "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	w, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return w, h, true
}
