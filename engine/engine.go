// Package engine drives the periodic allocation cycle: fetch active
// torrents, classify by tracker, select a managed set, compute per-tracker
// caps via the configured strategy, diff against observed limits, write the
// changes, and record them for rollback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mrInvincible29/Qguardarr/apperr"
	"github.com/mrInvincible29/Qguardarr/cache"
	"github.com/mrInvincible29/Qguardarr/client"
	"github.com/mrInvincible29/Qguardarr/config"
	"github.com/mrInvincible29/Qguardarr/dryrun"
	"github.com/mrInvincible29/Qguardarr/metrics"
	"github.com/mrInvincible29/Qguardarr/rollback"
	"github.com/mrInvincible29/Qguardarr/tracker"
	"github.com/mrInvincible29/Qguardarr/utils"
	"github.com/mrInvincible29/Qguardarr/webhook"
)

// mapSlice and filterSlice are the two teacher generics this package
// actually exercises, kept local rather than carried as a shared package.
func mapSlice[T1, T2 any](ss []T1, mapper func(T1) T2) []T2 {
	out := make([]T2, 0, len(ss))
	for _, s := range ss {
		out = append(out, mapper(s))
	}
	return out
}

func filterSlice[T any](ss []T, test func(T) bool) []T {
	var out []T
	for _, s := range ss {
		if test(s) {
			out = append(out, s)
		}
	}
	return out
}

// State is one point in the cycle state machine.
type State string

const (
	StateIdle        State = "idle"
	StateFetching    State = "fetching"
	StateClassifying State = "classifying"
	StateSelecting   State = "selecting"
	StateComputing   State = "computing"
	StateDiffing     State = "diffing"
	StateWriting     State = "writing"
	StateRecording   State = "recording"
	StatePostprocess State = "postprocess"
)

// ManagedEntry tracks a torrent the engine has assigned a non-default limit.
type ManagedEntry struct {
	AddedAt      int64
	LastSeen     int64
	CurrentLimit int64
	TrackerID    string
}

// Engine owns the cache, managed set, and smoothing state across cycles.
type Engine struct {
	mu      sync.RWMutex
	cycleMu sync.Mutex // held for the duration of one RunCycle; TryLock rejects overlap

	cfg     *config.Config
	client  client.Client
	matcher *tracker.Matcher
	cache   *cache.Cache
	rb      *rollback.Store
	dry     *dryrun.Store
	queue   *webhook.Queue

	managed map[string]ManagedEntry
	borrow  *borrowState

	lastActiveSet map[string]bool

	state       State
	ready       bool
	lastErr     error
	lastCycleAt int64
}

// New assembles an Engine from its dependencies.
func New(cfg *config.Config, c client.Client, matcher *tracker.Matcher, ch *cache.Cache, rb *rollback.Store, dry *dryrun.Store, queue *webhook.Queue) *Engine {
	return &Engine{
		cfg:     cfg,
		client:  c,
		matcher: matcher,
		cache:   ch,
		rb:      rb,
		dry:     dry,
		queue:   queue,
		managed: make(map[string]ManagedEntry),
		borrow:  newBorrowState(),
		state:   StateIdle,
	}
}

// UpdateConfig swaps in a freshly reloaded configuration between cycles.
func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg = cfg
}

func (e *Engine) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Ready reports whether at least one cycle has completed successfully.
func (e *Engine) Ready() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ready
}

// Healthy reports whether recent cycles succeeded and the transport's
// circuit breaker is closed (used by /health).
func (e *Engine) Healthy() bool {
	e.mu.RLock()
	ready := e.ready && e.lastErr == nil
	e.mu.RUnlock()
	return ready && !e.client.CircuitOpen()
}

// rolloutEligible implements the CRC32-based deterministic gate.
func rolloutEligible(hash string, rolloutPercentage int) bool {
	if rolloutPercentage >= 100 {
		return true
	}
	if rolloutPercentage <= 0 {
		return false
	}
	sum := crc32.ChecksumIEEE([]byte(hash))
	return int(sum%100) < rolloutPercentage
}

// cycleResult summarizes one run, returned to both RunCycle and Preview.
type cycleResult struct {
	Proposed  map[string]int64          `json:"-"`
	Writes    map[string]int64          `json:"writes"`
	Trackers  map[string]trackerSummary `json:"trackers"`
	TrackerOf map[string]string         `json:"-"`
}

type trackerSummary struct {
	BaseCap      int64 `json:"base_cap"`
	EffectiveCap int64 `json:"effective_cap"`
	Managed      int   `json:"managed_torrents"`
	Usage        int64 `json:"usage_bytes"`
}

// ErrCycleInProgress is returned by RunCycle when another cycle (periodic
// ticker or a force-cycle request) is already running.
var ErrCycleInProgress = errors.New("allocation cycle already in progress")

// RunCycle drives one full cycle, mutating the live cache, managed set, and
// rollback store. Cycles never overlap: a TryLock on cycleMu rejects a
// concurrent invocation immediately rather than queuing behind the running
// one, so a force-cycle request preempts nothing and never piles up.
func (e *Engine) RunCycle(ctx context.Context) ([]webhook.Event, error) {
	if !e.cycleMu.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer e.cycleMu.Unlock()

	start := time.Now()
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()

	// drained here so events enqueued before this point bias reallocation
	// via compute's Selection step; the caller separately forwards
	// completion events to cross-seed.
	drained := e.queue.Drain()

	res, err := e.compute(ctx, cfg, false, drained)
	if err != nil {
		e.mu.Lock()
		e.lastErr = err
		e.state = StateIdle
		e.mu.Unlock()
		log.Warnf("allocation cycle failed: %v", err)
		e.updateHealthMetrics()
		return drained, err
	}

	if err := e.apply(ctx, cfg, res); err != nil {
		e.mu.Lock()
		e.lastErr = err
		e.state = StateIdle
		e.mu.Unlock()
		log.Warnf("allocation cycle apply failed: %v", err)
		e.updateHealthMetrics()
		return drained, err
	}

	e.mu.Lock()
	e.ready = true
	e.lastErr = nil
	e.state = StateIdle
	e.lastCycleAt = utils.Now()
	e.mu.Unlock()

	for id, s := range res.Trackers {
		metrics.TrackerUsage.WithLabelValues(id).Set(float64(s.Usage))
		metrics.TrackerCap.WithLabelValues(id).Set(float64(s.EffectiveCap))
	}
	metrics.ManagedTorrents.Set(float64(e.ManagedCount()))
	metrics.CyclesTotal.Inc()
	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	e.updateHealthMetrics()
	return drained, nil
}

// updateHealthMetrics refreshes the two gauges that reflect standing state
// rather than a per-cycle event: whether the transport's circuit breaker is
// tripped, and how many rollback records are still waiting to be restored.
func (e *Engine) updateHealthMetrics() {
	val := 0.0
	if e.client.CircuitOpen() {
		val = 1.0
	}
	metrics.CircuitBreakerOpen.Set(val)

	unrestored, err := e.rb.ListUnrestored()
	if err != nil {
		log.Warnf("rollback backlog metric: %v", err)
		return
	}
	metrics.RollbackBacklog.Set(float64(len(unrestored)))
}

// Preview runs the computation pipeline against a snapshot of the cache and
// returns proposed changes without writing anything.
func (e *Engine) Preview(ctx context.Context) (map[string]int64, map[string]trackerSummary, error) {
	e.mu.RLock()
	cfg := e.cfg
	e.mu.RUnlock()
	res, err := e.compute(ctx, cfg, true, nil)
	if err != nil {
		return nil, nil, err
	}
	return res.Proposed, res.Trackers, nil
}

// compute runs Fetching through Diffing. previewOnly skips the live-fetch
// step and reuses the current cache snapshot, so /preview/next-cycle never
// issues remote calls that could race a live cycle. drained carries webhook
// events pulled off the queue at the start of this cycle; hashes they touch
// are prioritized into the managed set ahead of score-sorted candidates.
func (e *Engine) compute(ctx context.Context, cfg *config.Config, previewOnly bool, drained []webhook.Event) (*cycleResult, error) {
	e.setState(StateFetching)
	if !previewOnly {
		if err := e.fetch(ctx, cfg); err != nil {
			return nil, err
		}
	}

	e.setState(StateClassifying)
	entries := e.cache.ActiveIter()
	byTracker := make(map[string]*trackerGroup)
	for _, tc := range cfg.Trackers {
		byTracker[tc.ID] = &trackerGroup{cfg: tc, upSpeed: map[string]int64{}, numLeech: map[string]int{}}
	}
	trackerIDFor := make(map[string]string, len(entries))
	for _, entry := range entries {
		id := e.matcher.Match(entry.Info.TrackerURL)
		if id == "" {
			continue
		}
		g, ok := byTracker[id]
		if !ok {
			continue
		}
		trackerIDFor[entry.Info.Hash] = id
		g.upSpeed[entry.Info.Hash] = entry.Info.UpSpeed
		g.numLeech[entry.Info.Hash] = entry.Info.NumLeechs
	}

	e.setState(StateSelecting)
	e.mu.RLock()
	managedSnapshot := make(map[string]ManagedEntry, len(e.managed))
	for h, m := range e.managed {
		managedSnapshot[h] = m
	}
	e.mu.RUnlock()

	prioritizedHash := make(map[string]bool, len(drained))
	for _, ev := range drained {
		if ev.Hash != "" {
			prioritizedHash[ev.Hash] = true
		}
	}

	var eligible []scoredHash
	for _, entry := range entries {
		h := entry.Info.Hash
		_, alreadyManaged := managedSnapshot[h]
		prioritized := prioritizedHash[h]
		if !alreadyManaged && !prioritized && !rolloutEligible(h, cfg.Global.RolloutPercentage) {
			continue
		}
		eligible = append(eligible, scoredHash{hash: h, s: score(entry.Info.NumLeechs, entry.Info.UpSpeed), prioritized: prioritized})
	}
	sortScoredDesc(eligible)
	if len(eligible) > cfg.Global.MaxManagedTorrents {
		eligible = eligible[:cfg.Global.MaxManagedTorrents]
	}
	for _, s := range eligible {
		id := trackerIDFor[s.hash]
		if g, ok := byTracker[id]; ok {
			g.hashes = append(g.hashes, s.hash)
		}
	}

	e.setState(StateComputing)
	proposed := make(map[string]int64)
	summaries := make(map[string]trackerSummary, len(byTracker))

	switch cfg.Global.AllocationStrategy {
	case "soft":
		var groups []*trackerGroup
		for _, tc := range cfg.Trackers {
			groups = append(groups, byTracker[tc.ID])
		}
		st := e.borrow
		if previewOnly {
			// Preview works on a copy so it never advances the live EMA state.
			st = newBorrowState()
			for id, v := range e.borrow.smoothed {
				st.smoothed[id] = v
			}
		}
		perTracker := allocateSoft(groups, st, cfg.Global.BorrowThresholdRatio, cfg.Global.MaxBorrowFraction, cfg.Global.SmoothingAlpha, cfg.Global.MinEffectiveDelta)
		for id, limits := range perTracker {
			g := byTracker[id]
			for h, v := range limits {
				proposed[h] = v
			}
			effective := g.cfg.MaxUploadSpeed
			if v, ok := st.smoothed[id]; ok && g.cfg.MaxUploadSpeed > 0 {
				effective = int64(v)
			}
			summaries[id] = trackerSummary{BaseCap: g.cfg.MaxUploadSpeed, EffectiveCap: effective, Managed: len(g.hashes), Usage: g.usedBytes()}
		}
	case "weighted":
		for _, tc := range cfg.Trackers {
			g := byTracker[tc.ID]
			limits := allocateWeighted(g)
			for h, v := range limits {
				proposed[h] = v
			}
			summaries[tc.ID] = trackerSummary{BaseCap: tc.MaxUploadSpeed, EffectiveCap: tc.MaxUploadSpeed, Managed: len(g.hashes), Usage: g.usedBytes()}
		}
	default: // equal
		for _, tc := range cfg.Trackers {
			g := byTracker[tc.ID]
			limits := allocateEqual(g)
			for h, v := range limits {
				proposed[h] = v
			}
			summaries[tc.ID] = trackerSummary{BaseCap: tc.MaxUploadSpeed, EffectiveCap: tc.MaxUploadSpeed, Managed: len(g.hashes), Usage: g.usedBytes()}
		}
	}

	e.setState(StateDiffing)
	writes := make(map[string]int64)
	for h, newLimit := range proposed {
		entry, ok := e.cache.Get(h)
		if !ok {
			continue
		}
		if client.NeedsUpdate(entry.Info.UploadLimit, newLimit, cfg.Global.DifferentialThreshold) {
			writes[h] = newLimit
		}
	}

	return &cycleResult{Proposed: proposed, Writes: writes, Trackers: summaries, TrackerOf: trackerIDFor}, nil
}

// scoredHash is one Selection candidate. prioritized hashes (touched by a
// drained webhook event this cycle) always sort ahead of plain score order,
// so they survive the MaxManagedTorrents cut even if their score is low.
type scoredHash struct {
	hash        string
	s           float64
	prioritized bool
}

func scoredGreater(a, b scoredHash) bool {
	if a.prioritized != b.prioritized {
		return a.prioritized
	}
	return a.s > b.s
}

func sortScoredDesc(s []scoredHash) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && scoredGreater(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

func (e *Engine) fetch(ctx context.Context, cfg *config.Config) error {
	if err := e.client.EnsureSession(ctx); err != nil {
		return err
	}

	minUpspeed := int64(cfg.Global.ActiveTorrentThresholdKB) * 1024
	active, err := e.client.GetActiveTorrents(ctx, minUpspeed)
	if err != nil {
		return err
	}

	hashes := mapSlice(active, func(t client.TorrentInfo) string { return t.Hash })
	trackers, err := e.client.GetTrackersFor(ctx, hashes)
	if err != nil {
		return err
	}
	activeSet := make(map[string]bool, len(active))
	for i, t := range active {
		if url, ok := trackers[t.Hash]; ok {
			active[i].TrackerURL = url
		}
		e.cache.Upsert(active[i])
		activeSet[t.Hash] = true
	}

	if err := e.backfillPreviouslySeen(ctx, activeSet); err != nil {
		log.Warnf("backfill of previously-seen torrents failed: %v", err)
	}

	e.mu.Lock()
	e.lastActiveSet = activeSet
	e.mu.Unlock()

	if evicted := e.cache.EvictStale(utils.Now(), int64(cfg.Global.CacheTTLSeconds)); evicted > 0 {
		log.Debugf("evicted %d stale cache entries", evicted)
	}
	return nil
}

const maxBackfillHashes = 1000

// backfillPreviouslySeen refreshes cache entries for previously-managed
// hashes absent from the current active set, bounded to maxBackfillHashes,
// so a torrent that briefly drops out of the active filter is not
// immediately treated as gone.
func (e *Engine) backfillPreviouslySeen(ctx context.Context, activeSet map[string]bool) error {
	e.mu.RLock()
	var stale []string
	for h := range e.managed {
		if !activeSet[h] {
			stale = append(stale, h)
		}
		if len(stale) >= maxBackfillHashes {
			break
		}
	}
	e.mu.RUnlock()
	if len(stale) == 0 {
		return nil
	}
	torrents, err := e.client.GetTorrentsByHashes(ctx, stale)
	if err != nil {
		return err
	}
	for _, t := range torrents {
		e.cache.Upsert(t)
	}
	return nil
}

// apply runs Writing, Recording, and Postprocess against a computed result.
func (e *Engine) apply(ctx context.Context, cfg *config.Config, res *cycleResult) error {
	e.setState(StateWriting)
	e.mu.RLock()
	activeHashes := e.lastActiveSet
	e.mu.RUnlock()
	if activeHashes == nil {
		activeHashes = make(map[string]bool)
	}

	budget := cfg.Global.MaxAPICallsPerCycle
	toWrite := make(map[string]int64, len(res.Writes))
	deferred := 0
	for h, v := range res.Writes {
		if budget <= 0 {
			deferred++
			continue
		}
		toWrite[h] = v
		budget--
	}
	if deferred > 0 {
		log.Warnf("allocation cycle deferred %d writes to next cycle (api budget exhausted)", deferred)
	}

	if cfg.Global.DryRun {
		for h, v := range toWrite {
			e.dry.Set(h, v)
			if entry, ok := e.cache.Get(h); ok {
				log.Infof("dry-run: %s %d -> %d", h, entry.Info.UploadLimit, v)
				entry.Info.UploadLimit = v
				e.cache.Upsert(entry.Info)
			}
		}
		if err := e.dry.Flush(); err != nil {
			log.Warnf("dry-run store flush failed: %v", err)
		}
	} else if len(toWrite) > 0 {
		writeErr := e.client.SetUploadLimits(ctx, toWrite)
		var wErr *apperr.WriteError
		if writeErr != nil && !errors.As(writeErr, &wErr) {
			// Not a partial-failure report: the adapter never got to attempt
			// the batches (e.g. context canceled before the first one).
			metrics.WritesFailed.Add(float64(len(toWrite)))
			return writeErr
		}
		if wErr != nil {
			metrics.WritesFailed.Add(float64(len(wErr.Failed)))
			log.Warnf("allocation cycle: %d of %d writes failed, will retry next cycle", len(wErr.Failed), len(toWrite))
			for h := range wErr.Failed {
				delete(toWrite, h)
			}
		}
		metrics.WritesIssued.Add(float64(len(toWrite)))

		e.setState(StateRecording)
		for h, v := range toWrite {
			entry, ok := e.cache.Get(h)
			old := int64(client.Unlimited)
			if ok {
				old = entry.Info.UploadLimit
				entry.Info.UploadLimit = v
				e.cache.Upsert(entry.Info)
			}
			if err := e.rb.Record(h, old, v, res.TrackerOf[h], "allocation"); err != nil {
				log.Warnf("rollback record failed for %s: %v", h, err)
			}
		}
	}

	e.mu.Lock()
	for h, v := range toWrite {
		e.managed[h] = ManagedEntry{
			AddedAt:      firstSeenOr(e.managed, h),
			LastSeen:     utils.Now(),
			CurrentLimit: v,
			TrackerID:    res.TrackerOf[h],
		}
	}
	e.mu.Unlock()

	e.setState(StatePostprocess)
	if cfg.Global.AutoUnlimitOnInactive {
		e.postprocessInactive(ctx, cfg, activeHashes)
	}
	return nil
}

func firstSeenOr(m map[string]ManagedEntry, h string) int64 {
	if e, ok := m[h]; ok {
		return e.AddedAt
	}
	return utils.Now()
}

func (e *Engine) postprocessInactive(ctx context.Context, cfg *config.Config, activeHashes map[string]bool) {
	e.mu.Lock()
	var stale []string
	trackerOf := make(map[string]string)
	for h, m := range e.managed {
		if !activeHashes[h] {
			stale = append(stale, h)
			trackerOf[h] = m.TrackerID
		}
	}
	e.mu.Unlock()
	if len(stale) == 0 {
		return
	}

	unlimit := make(map[string]int64, len(stale))
	for _, h := range stale {
		unlimit[h] = client.Unlimited
	}

	if cfg.Global.DryRun {
		for _, h := range stale {
			e.dry.Set(h, client.Unlimited)
		}
		_ = e.dry.Flush()
	} else if err := e.client.SetUploadLimits(ctx, unlimit); err != nil {
		var wErr *apperr.WriteError
		if !errors.As(err, &wErr) {
			log.Warnf("auto-unlimit-on-inactive write failed: %v", err)
			return
		}
		// Leave failed hashes managed so the next cycle retries their
		// unlimit write instead of silently losing track of them.
		stale = filterSlice(stale, func(h string) bool { _, failed := wErr.Failed[h]; return !failed })
		if len(stale) == 0 {
			return
		}
	}

	e.mu.Lock()
	for _, h := range stale {
		delete(e.managed, h)
	}
	e.mu.Unlock()

	for _, h := range stale {
		if err := e.rb.Record(h, client.Unlimited, client.Unlimited, trackerOf[h], "auto_unlimit_inactive"); err != nil {
			log.Warnf("rollback record failed for inactive %s: %v", h, err)
		}
	}
}

// Rollback restores every unrestored change to its recorded old_limit.
func (e *Engine) Rollback(ctx context.Context) (int, error) {
	changes, err := e.rb.ListUnrestored()
	if err != nil {
		return 0, apperr.NewStateError("list unrestored changes", err)
	}
	if len(changes) == 0 {
		return 0, nil
	}
	restore := make(map[string]int64, len(changes))
	for _, c := range changes {
		restore[c.Hash] = c.PreviousLimit
	}
	writeErr := e.client.SetUploadLimits(ctx, restore)
	var wErr *apperr.WriteError
	if writeErr != nil && !errors.As(writeErr, &wErr) {
		return 0, writeErr
	}
	restored := 0
	for _, c := range changes {
		if wErr != nil {
			if _, failed := wErr.Failed[c.Hash]; failed {
				continue // left unrestored, retried on the next rollback call
			}
		}
		if err := e.rb.MarkRestored(c.Hash); err != nil {
			log.Warnf("mark restored failed for %s: %v", c.Hash, err)
			continue
		}
		restored++
	}
	return restored, nil
}

// ResetToUnlimited sets every torrent recorded in the rollback store's scope
// back to unlimited: scope "unrestored" (the default, any non-"all" value)
// selects hashes not yet marked restored, scope "all" selects every hash the
// store has ever touched. When markRestored is true, successfully-reset
// hashes are also flagged restored in the rollback store, same as a normal
// Rollback would leave them.
func (e *Engine) ResetToUnlimited(ctx context.Context, scope string, markRestored bool) (int, error) {
	var changes []rollback.Change
	var err error
	if scope == "all" {
		changes, err = e.rb.ListAllTouched()
	} else {
		changes, err = e.rb.ListUnrestored()
	}
	if err != nil {
		return 0, apperr.NewStateError("list rollback changes", err)
	}
	if len(changes) == 0 {
		return 0, nil
	}

	hashes := make([]string, len(changes))
	limits := make(map[string]int64, len(changes))
	for i, c := range changes {
		hashes[i] = c.Hash
		limits[c.Hash] = client.Unlimited
	}

	e.mu.RLock()
	dryRun := e.cfg.Global.DryRun
	e.mu.RUnlock()

	if dryRun {
		for _, h := range hashes {
			e.dry.Set(h, client.Unlimited)
		}
		if err := e.dry.Flush(); err != nil {
			return 0, apperr.NewStateError("flush dry-run store", err)
		}
	} else {
		writeErr := e.client.SetUploadLimits(ctx, limits)
		var wErr *apperr.WriteError
		if writeErr != nil && !errors.As(writeErr, &wErr) {
			return 0, writeErr
		}
		if wErr != nil {
			hashes = filterSlice(hashes, func(h string) bool { _, failed := wErr.Failed[h]; return !failed })
		}
	}

	e.mu.Lock()
	for _, h := range hashes {
		delete(e.managed, h)
	}
	e.mu.Unlock()

	if markRestored {
		for _, h := range hashes {
			if err := e.rb.MarkRestored(h); err != nil {
				log.Warnf("mark restored failed for %s: %v", h, err)
			}
		}
	}

	return len(hashes), nil
}

// ResetSmoothing clears the soft strategy's EMA state, forcing the next
// cycle to recompute effective caps from scratch.
func (e *Engine) ResetSmoothing() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.borrow = newBorrowState()
}

// SetRollout updates the rollout percentage in-place (0-100).
func (e *Engine) SetRollout(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("rollout percentage must be 0-100, got %d", pct)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Global.RolloutPercentage = pct
	return nil
}

// ManagedCount reports the current managed-set size, for /stats.
func (e *Engine) ManagedCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.managed)
}

// LastCycleAt returns the unix timestamp of the last completed cycle.
func (e *Engine) LastCycleAt() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastCycleAt
}
