// Package client defines the remote-client adapter contract: the shape a
// BitTorrent client's remote control API must expose to the allocation
// engine, independent of the wire protocol a specific implementation (e.g.
// qbittorrent) speaks. Mirrors the teacher's client.Client/client.Torrent
// registry pattern, generalized to Qguardarr's narrower read/write surface.
package client

import "context"

// Unlimited is the sentinel upload-limit value meaning "no cap".
const Unlimited int64 = -1

// TorrentInfo is a snapshot of one torrent as observed by the adapter.
type TorrentInfo struct {
	Hash        string
	Name        string
	TrackerURL  string // representative URL, chosen per invariant (v)
	UpSpeed     int64  // bytes/sec
	UploadLimit int64  // bytes/sec, Unlimited = no cap
	NumSeeds    int
	NumLeechs   int
	Size        int64
	Progress    float64
	State       string
	AddedOn     int64
}

// Client is the contract the allocation engine drives every cycle. A
// concrete implementation owns authentication, rate limiting, circuit
// breaking and retries; the engine only sees these methods.
type Client interface {
	// Login authenticates once; implementations re-login internally on
	// session expiry, so callers do not need to retry on AuthError.
	Login(ctx context.Context) error

	// EnsureSession probes the session with a lightweight authenticated
	// call (e.g. reading preferences) and re-logs in if it has expired.
	// Cheaper than discovering expiry mid-batch on GetActiveTorrents.
	EnsureSession(ctx context.Context) error

	// GetActiveTorrents applies the server-side "active" filter, then a
	// client-side up_speed >= minUpspeedBytes filter.
	GetActiveTorrents(ctx context.Context, minUpspeedBytes int64) ([]TorrentInfo, error)

	// GetTorrentsByHashes backfills a bounded subset of previously-seen
	// hashes (cap 1000) that may not currently be in the active filter.
	GetTorrentsByHashes(ctx context.Context, hashes []string) ([]TorrentInfo, error)

	// GetTrackersFor returns the representative announce URL per hash,
	// selected per invariant (v): first working (status 2), else first
	// non-errored, else the first tracker even if errored, else empty.
	GetTrackersFor(ctx context.Context, hashes []string) (map[string]string, error)

	// SetUploadLimits batches writes; implementations group by target
	// value and chunk to bounded hash-list sizes.
	SetUploadLimits(ctx context.Context, limits map[string]int64) error

	// CircuitOpen reports whether the adapter's circuit breaker is
	// currently tripped, so /health can report degraded independent of
	// whether a cycle happens to be running right now.
	CircuitOpen() bool

	// Close releases the session (logout) and any pooled connections.
	Close(ctx context.Context) error
}

// NeedsUpdate reports whether a limit change is large enough to write, per
// spec.md §4.5's diffing rule: emit iff proposed is Unlimited while current
// isn't (or vice versa), or the relative change meets threshold, or the
// absolute change meets 1 KiB, whichever gate is looser.
func NeedsUpdate(currentLimit, newLimit int64, threshold float64) bool {
	currentUnlimited := currentLimit <= 0
	newUnlimited := newLimit <= 0
	if currentUnlimited != newUnlimited {
		return true
	}
	if currentUnlimited && newUnlimited {
		return false
	}

	absChange := currentLimit - newLimit
	if absChange < 0 {
		absChange = -absChange
	}
	const absFloor = 1024 // 1 KiB
	relChange := float64(absChange) / float64(maxInt64(currentLimit, 1))

	return relChange >= threshold || absChange >= absFloor
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
