package tracker

import (
	"testing"

	"github.com/mrInvincible29/Qguardarr/config"
)

func testConfigs() []config.TrackerConfig {
	return []config.TrackerConfig{
		{ID: "private-a", Pattern: "tracker-a.example.com", MaxUploadSpeed: 10 * 1024 * 1024, Priority: 2},
		{ID: "private-b", Pattern: "^https://tracker-b\\.example\\.com/", MaxUploadSpeed: 5 * 1024 * 1024, Priority: 1},
		{ID: "default", Pattern: config.CatchAllPattern, MaxUploadSpeed: -1, Priority: 1},
	}
}

func TestNewRejectsMissingCatchAll(t *testing.T) {
	cfgs := []config.TrackerConfig{{ID: "only", Pattern: "example.com"}}
	if _, err := New(cfgs); err == nil {
		t.Fatal("expected error when catch-all is missing")
	}
}

func TestNewRejectsEmptyList(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for empty tracker list")
	}
}

func TestShorthandWrapsBarePatterns(t *testing.T) {
	m, err := New(testConfigs())
	if err != nil {
		t.Fatal(err)
	}
	if id := m.Match("https://tracker-a.example.com:443/announce"); id != "private-a" {
		t.Errorf("expected private-a, got %q", id)
	}
}

func TestAnchoredPatternIsNotDoubleWrapped(t *testing.T) {
	m, err := New(testConfigs())
	if err != nil {
		t.Fatal(err)
	}
	if id := m.Match("https://tracker-b.example.com/announce"); id != "private-b" {
		t.Errorf("expected private-b, got %q", id)
	}
	// Anchored pattern should not match a URL where it isn't a prefix.
	if id := m.Match("https://mirror.tracker-b.example.com/announce"); id == "private-b" {
		t.Errorf("anchored pattern should not match non-prefix url, got %q", id)
	}
}

func TestFirstMatchWins(t *testing.T) {
	cfgs := []config.TrackerConfig{
		{ID: "specific", Pattern: "tracker.example.com/foo"},
		{ID: "general", Pattern: "tracker.example.com"},
		{ID: "default", Pattern: config.CatchAllPattern},
	}
	m, err := New(cfgs)
	if err != nil {
		t.Fatal(err)
	}
	if id := m.Match("https://tracker.example.com/foo/announce"); id != "specific" {
		t.Errorf("expected specific to win by order, got %q", id)
	}
}

func TestCatchAllMatchesUnknownURL(t *testing.T) {
	m, err := New(testConfigs())
	if err != nil {
		t.Fatal(err)
	}
	if id := m.Match("https://unknown-tracker.example.org/announce"); id != "default" {
		t.Errorf("expected default catch-all, got %q", id)
	}
}

func TestMatchIsCachedAndReloadClearsIt(t *testing.T) {
	m, err := New(testConfigs())
	if err != nil {
		t.Fatal(err)
	}
	url := "https://tracker-a.example.com/announce"
	if id := m.Match(url); id != "private-a" {
		t.Fatalf("expected private-a, got %q", id)
	}

	reloaded := []config.TrackerConfig{
		{ID: "default", Pattern: config.CatchAllPattern},
	}
	if err := m.Reload(reloaded); err != nil {
		t.Fatal(err)
	}
	if id := m.Match(url); id != "default" {
		t.Errorf("expected reload to invalidate cache and reclassify as default, got %q", id)
	}
}

func TestBulkMatch(t *testing.T) {
	m, err := New(testConfigs())
	if err != nil {
		t.Fatal(err)
	}
	urls := []string{
		"https://tracker-a.example.com/announce",
		"https://tracker-b.example.com/announce",
	}
	out := m.BulkMatch(urls)
	if out[urls[0]] != "private-a" || out[urls[1]] != "private-b" {
		t.Errorf("unexpected bulk match result: %+v", out)
	}
}

func TestMatchTestDetailedTrace(t *testing.T) {
	m, err := New(testConfigs())
	if err != nil {
		t.Fatal(err)
	}
	trace := m.Test("https://tracker-a.example.com/announce", true)
	if trace.ID != "private-a" {
		t.Fatalf("expected private-a, got %+v", trace)
	}
	if len(trace.CandidatesTried) == 0 {
		t.Error("expected candidates tried to be populated in detailed mode")
	}
}
