// Package tracker classifies announce URLs into configured tracker ids by
// ordered, first-match-wins regex, backed by a bounded LRU cache. Grounded on
// the teacher's config-driven pattern lists, generalized from ptool's site
// matching to Qguardarr's tracker-id classification.
package tracker

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/mrInvincible29/Qguardarr/apperr"
	"github.com/mrInvincible29/Qguardarr/config"
)

const cacheSize = 4096

type compiledTracker struct {
	id      string
	pattern string
	re      *regexp.Regexp
}

// Matcher classifies a tracker URL against an ordered list of patterns.
type Matcher struct {
	trackers []compiledTracker
	cache    *lru.Cache
}

// New compiles cfgs in order and fails if there is no catch-all last entry.
func New(cfgs []config.TrackerConfig) (*Matcher, error) {
	if len(cfgs) == 0 {
		return nil, apperr.NewConfigError("no trackers configured", nil)
	}
	last := cfgs[len(cfgs)-1]
	if last.Pattern != config.CatchAllPattern {
		return nil, apperr.NewConfigError("catch-all pattern must be last", nil)
	}

	compiled := make([]compiledTracker, 0, len(cfgs))
	for _, c := range cfgs {
		re, err := regexp.Compile(shorthand(c.Pattern))
		if err != nil {
			return nil, apperr.NewConfigError("compile pattern for tracker "+c.ID, err)
		}
		compiled = append(compiled, compiledTracker{id: c.ID, pattern: c.Pattern, re: re})
	}

	cache, _ := lru.New(cacheSize)
	return &Matcher{trackers: compiled, cache: cache}, nil
}

// shorthand wraps bare patterns as ".*<pattern>.*" per the forgiving-shorthand
// rule, unless the pattern already anchors or brackets itself.
func shorthand(pattern string) string {
	if pattern == config.CatchAllPattern {
		return pattern
	}
	if strings.ContainsAny(pattern, "^$") {
		return pattern
	}
	if strings.HasPrefix(pattern, ".*") && strings.HasSuffix(pattern, ".*") {
		return pattern
	}
	return ".*" + pattern + ".*"
}

// Match returns the tracker id for url, using and populating the LRU cache.
func (m *Matcher) Match(url string) string {
	if v, ok := m.cache.Get(url); ok {
		return v.(string)
	}
	id := m.matchUncached(url)
	m.cache.Add(url, id)
	return id
}

func (m *Matcher) matchUncached(url string) string {
	for _, t := range m.trackers {
		if t.re.MatchString(url) {
			return t.id
		}
	}
	return ""
}

// BulkMatch classifies every url in one pass.
func (m *Matcher) BulkMatch(urls []string) map[string]string {
	out := make(map[string]string, len(urls))
	for _, u := range urls {
		out[u] = m.Match(u)
	}
	return out
}

// Reload swaps in a freshly-compiled pattern list and clears the cache.
func (m *Matcher) Reload(cfgs []config.TrackerConfig) error {
	fresh, err := New(cfgs)
	if err != nil {
		return err
	}
	m.trackers = fresh.trackers
	m.cache.Purge()
	return nil
}

// MatchTrace describes which pattern matched, for the /match/test endpoint.
type MatchTrace struct {
	ID              string   `json:"id"`
	MatchedPattern  string   `json:"matched_pattern"`
	CandidatesTried []string `json:"candidates_tried,omitempty"`
}

// Test classifies url without touching the cache and optionally reports the
// patterns evaluated before the match.
func (m *Matcher) Test(url string, detailed bool) MatchTrace {
	var tried []string
	for _, t := range m.trackers {
		if detailed {
			tried = append(tried, t.pattern)
		}
		if t.re.MatchString(url) {
			trace := MatchTrace{ID: t.id, MatchedPattern: t.pattern}
			if detailed {
				trace.CandidatesTried = tried
			}
			return trace
		}
	}
	return MatchTrace{}
}
