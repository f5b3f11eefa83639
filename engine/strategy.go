package engine

import (
	"sort"

	"github.com/mrInvincible29/Qguardarr/client"
	"github.com/mrInvincible29/Qguardarr/config"
)

const floorBytes int64 = 10 * 1024

// trackerGroup is one tracker's managed torrents for the current cycle.
type trackerGroup struct {
	cfg      config.TrackerConfig
	hashes   []string
	upSpeed  map[string]int64
	numLeech map[string]int
}

func (g *trackerGroup) usedBytes() int64 {
	var total int64
	for _, h := range g.hashes {
		total += g.upSpeed[h]
	}
	return total
}

// allocateEqual splits a finite cap evenly, applying the floor even if it
// overcommits the cap, per spec's accepted-overcommit rule.
func allocateEqual(g *trackerGroup) map[string]int64 {
	out := make(map[string]int64, len(g.hashes))
	if g.cfg.MaxUploadSpeed <= 0 {
		for _, h := range g.hashes {
			out[h] = client.Unlimited
		}
		return out
	}
	n := int64(len(g.hashes))
	if n == 0 {
		return out
	}
	share := g.cfg.MaxUploadSpeed / n
	if share < floorBytes {
		share = floorBytes
	}
	for _, h := range g.hashes {
		out[h] = share
	}
	return out
}

// allocateWeighted distributes a finite cap proportional to score, bounded
// to [floorBytes, 0.6*cap] per torrent, redistributing capped excess to
// uncapped torrents for up to two passes.
func allocateWeighted(g *trackerGroup) map[string]int64 {
	out := make(map[string]int64, len(g.hashes))
	if g.cfg.MaxUploadSpeed <= 0 {
		for _, h := range g.hashes {
			out[h] = client.Unlimited
		}
		return out
	}
	n := len(g.hashes)
	if n == 0 {
		return out
	}
	trackerCap := float64(g.cfg.MaxUploadSpeed)
	scores := make(map[string]float64, n)
	var total float64
	for _, h := range g.hashes {
		s := score(g.numLeech[h], g.upSpeed[h])
		if s <= 0 {
			s = 0.01 // keep every managed torrent eligible for a nonzero raw share
		}
		scores[h] = s
		total += s
	}

	raw := make(map[string]float64, n)
	for _, h := range g.hashes {
		raw[h] = trackerCap * scores[h] / total
	}

	upper := 0.6 * trackerCap
	uncapped := map[string]bool{}
	for _, h := range g.hashes {
		uncapped[h] = true
	}

	for pass := 0; pass < 2; pass++ {
		var excess float64
		changed := false
		for _, h := range g.hashes {
			if !uncapped[h] {
				continue
			}
			v := raw[h]
			if v < float64(floorBytes) {
				v = float64(floorBytes)
			}
			if v > upper {
				excess += v - upper
				raw[h] = upper
				delete(uncapped, h)
				changed = true
			} else {
				raw[h] = v
			}
		}
		if excess <= 0 || !changed {
			break
		}
		// Recompute against the survivors only: torrents capped in this same
		// pass must not keep diluting the denominator they no longer share in.
		var uncappedTotal float64
		for h := range uncapped {
			uncappedTotal += scores[h]
		}
		if uncappedTotal <= 0 {
			break
		}
		for h := range uncapped {
			raw[h] += excess * scores[h] / uncappedTotal
		}
	}

	for _, h := range g.hashes {
		v := raw[h]
		if v < float64(floorBytes) {
			v = float64(floorBytes)
		}
		out[h] = int64(v)
	}
	return out
}

// borrowState carries the EMA-smoothed effective cap per tracker across
// cycles.
type borrowState struct {
	smoothed map[string]float64
}

func newBorrowState() *borrowState {
	return &borrowState{smoothed: make(map[string]float64)}
}

// allocateSoft computes borrowing across finite-cap trackers, applies EMA
// smoothing with a commit-threshold, then distributes each tracker's
// effective cap using the weighted rule.
func allocateSoft(groups []*trackerGroup, st *borrowState, borrowThresholdRatio, maxBorrowFraction, alpha, minEffectiveDelta float64) map[string]map[string]int64 {
	type finite struct {
		g       *trackerGroup
		used    int64
		base    float64
		borrow  float64
	}
	var finites []*finite
	pool := 0.0
	for _, g := range groups {
		if g.cfg.MaxUploadSpeed <= 0 {
			continue
		}
		used := g.usedBytes()
		base := float64(g.cfg.MaxUploadSpeed)
		f := &finite{g: g, used: used, base: base}
		finites = append(finites, f)
		if headroom := base - float64(used); headroom > 0 {
			pool += headroom
		}
	}

	sort.SliceStable(finites, func(i, j int) bool {
		if finites[i].g.cfg.Priority != finites[j].g.cfg.Priority {
			return finites[i].g.cfg.Priority > finites[j].g.cfg.Priority
		}
		return finites[i].g.cfg.ID < finites[j].g.cfg.ID
	})

	remaining := pool
	for _, f := range finites {
		threshold := f.base * borrowThresholdRatio
		if float64(f.used) < threshold {
			continue
		}
		weight := float64(f.g.cfg.Priority) * (float64(f.used) - threshold)
		if weight <= 0 {
			continue
		}
		want := weight
		borrowCap := f.base * maxBorrowFraction
		if want > borrowCap {
			want = borrowCap
		}
		if want > remaining {
			want = remaining
		}
		if want < 0 {
			want = 0
		}
		f.borrow = want
		remaining -= want
	}

	out := make(map[string]map[string]int64, len(groups))
	for _, f := range finites {
		rawEffective := f.base + f.borrow
		previous, hasPrevious := st.smoothed[f.g.cfg.ID]
		effective := rawEffective
		if hasPrevious {
			smoothed := alpha*rawEffective + (1-alpha)*previous
			effective = previous
			if previous == 0 || absF(smoothed-previous)/absF(previous) >= minEffectiveDelta {
				effective = smoothed
			}
		}
		st.smoothed[f.g.cfg.ID] = effective

		effGroup := &trackerGroup{
			cfg:      config.TrackerConfig{ID: f.g.cfg.ID, MaxUploadSpeed: int64(effective), Priority: f.g.cfg.Priority},
			hashes:   f.g.hashes,
			upSpeed:  f.g.upSpeed,
			numLeech: f.g.numLeech,
		}
		out[f.g.cfg.ID] = allocateWeighted(effGroup)
	}

	for _, g := range groups {
		if g.cfg.MaxUploadSpeed <= 0 {
			out[g.cfg.ID] = allocateEqual(g) // unlimited: bypasses borrowing entirely
		}
	}
	return out
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
