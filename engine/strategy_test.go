package engine

import (
	"testing"

	"github.com/mrInvincible29/Qguardarr/client"
	"github.com/mrInvincible29/Qguardarr/config"
)

func group(id string, capBytes int64, priority int, hashes ...string) *trackerGroup {
	g := &trackerGroup{
		cfg:      config.TrackerConfig{ID: id, MaxUploadSpeed: capBytes, Priority: priority},
		hashes:   hashes,
		upSpeed:  map[string]int64{},
		numLeech: map[string]int{},
	}
	return g
}

func TestAllocateEqualSplitsEvenly(t *testing.T) {
	g := group("t1", 10*1024*1024, 1, "a", "b")
	out := allocateEqual(g)
	if out["a"] != 5*1024*1024 || out["b"] != 5*1024*1024 {
		t.Errorf("expected even split, got %+v", out)
	}
}

func TestAllocateEqualAppliesFloorEvenOnOvercommit(t *testing.T) {
	// Cap too small to give every torrent floorBytes; floor still applies.
	g := group("t1", 1024, 1, "a", "b", "c")
	out := allocateEqual(g)
	for h, v := range out {
		if v != floorBytes {
			t.Errorf("hash %s: expected floor %d, got %d", h, floorBytes, v)
		}
	}
}

func TestAllocateEqualUnlimitedTracker(t *testing.T) {
	g := group("t1", -1, 1, "a", "b")
	out := allocateEqual(g)
	for h, v := range out {
		if v != client.Unlimited {
			t.Errorf("hash %s: expected unlimited, got %d", h, v)
		}
	}
}

func TestAllocateEqualNoTorrents(t *testing.T) {
	g := group("t1", 1024*1024, 1)
	out := allocateEqual(g)
	if len(out) != 0 {
		t.Errorf("expected empty map, got %+v", out)
	}
}

func TestAllocateWeightedRespectsUpperBound(t *testing.T) {
	const trackerCap = 10 * 1024 * 1024
	g := group("t1", trackerCap, 1, "a", "b")
	g.numLeech["a"] = 20
	g.upSpeed["a"] = 1048576
	g.numLeech["b"] = 0
	g.upSpeed["b"] = 0
	out := allocateWeighted(g)

	upper := int64(0.6 * float64(trackerCap))
	if out["a"] > upper {
		t.Errorf("expected a capped at %d, got %d", upper, out["a"])
	}
}

func TestAllocateWeightedFloorAppliesToLowScorers(t *testing.T) {
	g := group("t1", 100*1024*1024, 1, "a", "b")
	g.numLeech["a"] = 20
	g.upSpeed["a"] = 1048576
	// b has zero activity but must still receive at least the floor.
	out := allocateWeighted(g)
	if out["b"] < floorBytes {
		t.Errorf("expected b >= floor, got %d", out["b"])
	}
}

// TestAllocateWeightedRedistributesFullExcessToSoleSurvivor mirrors spec.md
// §8's worked example S2: a 6 MiB/s tracker with a heavy leecher (X) that
// gets capped at 0.6*cap, and a light leecher (Y) that should absorb the
// entire freed excess, not just its own score-share of a stale total.
func TestAllocateWeightedRedistributesFullExcessToSoleSurvivor(t *testing.T) {
	const trackerCap = 6 * 1024 * 1024
	g := group("t1", trackerCap, 1, "x", "y")
	g.numLeech["x"] = 40
	g.upSpeed["x"] = 800 * 1024
	g.numLeech["y"] = 5
	g.upSpeed["y"] = 200 * 1024

	out := allocateWeighted(g)

	const wantY = 2516582
	if diff := out["y"] - wantY; diff < -1 || diff > 1 {
		t.Errorf("expected y ~= %d after absorbing the full redistributed excess, got %d", wantY, out["y"])
	}
}

func TestAllocateWeightedUnlimitedTracker(t *testing.T) {
	g := group("t1", 0, 1, "a")
	out := allocateWeighted(g)
	if out["a"] != client.Unlimited {
		t.Errorf("expected unlimited, got %d", out["a"])
	}
}

func TestAllocateSoftBorrowsFromUnderutilizedTracker(t *testing.T) {
	busy := group("busy", 1024*1024, 2, "a")
	busy.numLeech["a"] = 20
	busy.upSpeed["a"] = 1048576 // fully using its cap

	idle := group("idle", 1024*1024, 1, "b")
	idle.numLeech["b"] = 1
	idle.upSpeed["b"] = 0 // far under its cap, contributes headroom to the pool

	st := newBorrowState()
	out := allocateSoft([]*trackerGroup{busy, idle}, st, 0.8, 0.5, 1.0, 0.0)

	if len(out["busy"]) != 1 || len(out["idle"]) != 1 {
		t.Fatalf("expected both trackers represented, got %+v", out)
	}
	if out["busy"]["a"] <= floorBytes {
		t.Errorf("expected busy tracker to receive a nonzero share, got %d", out["busy"]["a"])
	}
}

func TestAllocateSoftUnlimitedTrackerBypassesBorrowing(t *testing.T) {
	unlimited := group("free", -1, 1, "a")
	finite := group("capped", 1024*1024, 1, "b")
	finite.numLeech["b"] = 20
	finite.upSpeed["b"] = 1048576

	st := newBorrowState()
	out := allocateSoft([]*trackerGroup{unlimited, finite}, st, 0.8, 0.5, 1.0, 0.0)

	if out["free"]["a"] != client.Unlimited {
		t.Errorf("expected unlimited tracker to bypass borrowing, got %+v", out["free"])
	}
}

func TestAllocateSoftFirstObservationCommitsRawEffective(t *testing.T) {
	// Reproduces spec's S3 scenario with the real default alpha/min-delta
	// (0.4/0.1), not the 1.0/0.0 pass-through the other soft tests use.
	a := group("a", 4*1024*1024, 1, "x")
	a.numLeech["x"] = 1
	a.upSpeed["x"] = 1024 * 1024

	b := group("b", 2*1024*1024, 10, "y")
	b.numLeech["y"] = 1
	b.upSpeed["y"] = 2 * 1024 * 1024

	st := newBorrowState()
	allocateSoft([]*trackerGroup{a, b}, st, 0.9, 0.5, 0.4, 0.1)

	want := int64(3 * 1024 * 1024)
	if got := int64(st.smoothed["b"]); got != want {
		t.Errorf("expected a tracker's first-ever cycle to commit its raw effective cap (%d) rather than an EMA blend against a phantom prior, got %d", want, got)
	}
}

func TestAllocateSoftDeterministicTieBreakByID(t *testing.T) {
	// Two trackers at equal priority; borrow order must be stable across
	// runs (tie-broken by tracker ID), not left to map iteration order.
	a := group("b-tracker", 1024*1024, 1, "x")
	a.numLeech["x"] = 20
	a.upSpeed["x"] = 1048576

	b := group("a-tracker", 1024*1024, 1, "y")
	b.numLeech["y"] = 20
	b.upSpeed["y"] = 1048576

	st1 := newBorrowState()
	out1 := allocateSoft([]*trackerGroup{a, b}, st1, 0.5, 0.5, 1.0, 0.0)

	st2 := newBorrowState()
	out2 := allocateSoft([]*trackerGroup{b, a}, st2, 0.5, 0.5, 1.0, 0.0)

	if out1["a-tracker"]["y"] != out2["a-tracker"]["y"] || out1["b-tracker"]["x"] != out2["b-tracker"]["x"] {
		t.Errorf("expected deterministic result regardless of input order: %+v vs %+v", out1, out2)
	}
}
