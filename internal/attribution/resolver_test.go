package attribution

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/RubenJachtDigital/ga4-server-side-tagging-sub003/internal/models"
)

// fakeStore keeps session records in memory, keyed by session id.
type fakeStore struct {
	sessions map[string]*models.Session
	saves    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*models.Session)}
}

func (s *fakeStore) Lookup(sessionID string) (*models.Session, error) {
	if session, ok := s.sessions[sessionID]; ok {
		copied := *session
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStore) Save(session *models.Session) error {
	copied := *session
	s.sessions[session.SessionID] = &copied
	s.saves++
	return nil
}

func newTestResolver(store Store) *Resolver {
	return NewResolver(store, 30*time.Minute, []string{"example.com"}, zap.NewNop())
}

func pageViewEvent(sessionID string, params map[string]any) *models.NormalizedEvent {
	if params == nil {
		params = map[string]any{}
	}
	return &models.NormalizedEvent{
		Name:      "page_view",
		ClientID:  "c1",
		SessionID: sessionID,
		Params:    params,
	}
}

func TestResolveSessionLifecycle(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	resolver := newTestResolver(store)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Landing from a Google search starts the session.
	landing := pageViewEvent("s1", map[string]any{
		"page_referrer": "https://www.google.com/search?q=shoes",
	})
	got, err := resolver.Resolve(landing, start)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != "google" || got.Medium != "organic" || got.TrafficType != models.TrafficOrganic {
		t.Fatalf("landing attribution = %+v, want google/organic", got)
	}

	// Internal navigation two minutes later must not re-attribute.
	internal := pageViewEvent("s1", map[string]any{
		"page_referrer": "https://www.example.com/category",
	})
	got, err = resolver.Resolve(internal, start.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != "(internal)" || got.TrafficType != models.TrafficInternal {
		t.Errorf("continuing navigation attribution = %+v, want internal", got)
	}

	// A purchase rehydrates the original first-touch attribution.
	purchase := &models.NormalizedEvent{
		Name: "purchase", ClientID: "c1", SessionID: "s1",
		Params: map[string]any{"value": 99.95},
	}
	got, err = resolver.Resolve(purchase, start.Add(10*time.Minute))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != "google" || got.Medium != "organic" || got.TrafficType != models.TrafficOrganic {
		t.Errorf("conversion attribution = %+v, want original google/organic", got)
	}
}

func TestResolveExpiredSessionRestarts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	resolver := newTestResolver(store)
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first := pageViewEvent("s1", map[string]any{
		"page_referrer": "https://www.google.com/",
	})
	if _, err := resolver.Resolve(first, start); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	// 31 minutes of silence expires the session; the next touch is a
	// fresh first touch, here from a facebook referral.
	second := pageViewEvent("s1", map[string]any{
		"page_referrer": "https://www.facebook.com/",
	})
	got, err := resolver.Resolve(second, start.Add(31*time.Minute))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != "facebook" || got.TrafficType != models.TrafficSocial {
		t.Errorf("post-expiry attribution = %+v, want facebook/social", got)
	}

	// The snapshot was replaced, so a conversion now credits facebook.
	conversion := pageViewEvent("s1", nil)
	conversion.Name = "generate_lead"
	got, err = resolver.Resolve(conversion, start.Add(32*time.Minute))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != "facebook" {
		t.Errorf("conversion after restart = %+v, want facebook", got)
	}
}

func TestResolveDonorOriginalsWin(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	resolver := newTestResolver(store)

	// Donor-carried original attribution survives session-storage loss
	// and beats the current page context.
	event := pageViewEvent("s2", map[string]any{
		"page_referrer":  "https://www.example.com/",
		"originalSource": "newsletter",
		"originalMedium": "email",
	})
	got, err := resolver.Resolve(event, time.Now())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != "newsletter" || got.Medium != "email" {
		t.Errorf("attribution = %+v, want donor originals", got)
	}
	if got.TrafficType != models.TrafficEmail {
		t.Errorf("traffic type = %q, want derived %q", got.TrafficType, models.TrafficEmail)
	}
}

func TestResolveNoSessionID(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	resolver := newTestResolver(store)

	event := pageViewEvent("", map[string]any{
		"page_referrer": "https://www.google.com/",
	})
	got, err := resolver.Resolve(event, time.Now())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Source != "google" {
		t.Errorf("attribution = %+v, want classified page", got)
	}
	if store.saves != 0 {
		t.Errorf("saved %d sessions without a session id", store.saves)
	}
}

func TestIsConversion(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"purchase", "generate_lead", "form_submit_success"} {
		if !IsConversion(name) {
			t.Errorf("IsConversion(%q) = false", name)
		}
	}
	for _, name := range []string{"page_view", "scroll", ""} {
		if IsConversion(name) {
			t.Errorf("IsConversion(%q) = true", name)
		}
	}
}
