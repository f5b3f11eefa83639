// Package dryrun persists the limits the allocation engine would have
// applied when global.dry_run is enabled, so an operator can compare
// simulated behavior across restarts without touching a live client.
// Improves on the reference implementation's plain os.WriteFile save with an
// atomic replace, per the durability requirement this system carries.
package dryrun

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"

	"github.com/mrInvincible29/Qguardarr/apperr"
)

// Store is a hash -> simulated-limit map backed by a JSON file on disk.
type Store struct {
	mu    sync.RWMutex
	path  string
	limit map[string]int64
}

// Load reads path if it exists, or starts empty otherwise.
func Load(path string) (*Store, error) {
	s := &Store{path: path, limit: make(map[string]int64)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, apperr.NewStateError("read dry-run store", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.limit); err != nil {
		return nil, apperr.NewStateError("decode dry-run store", err)
	}
	return s, nil
}

// Set records the simulated limit for hash without persisting; call Flush to
// commit the batch.
func (s *Store) Set(hash string, limit int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limit[hash] = limit
}

// Get returns the simulated limit for hash and whether one is recorded.
func (s *Store) Get(hash string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.limit[hash]
	return v, ok
}

// All returns a copy of the full simulated-limit map.
func (s *Store) All() map[string]int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int64, len(s.limit))
	for k, v := range s.limit {
		out[k] = v
	}
	return out
}

// Flush atomically replaces the store's backing file with the current state.
func (s *Store) Flush() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.limit, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return apperr.NewStateError("encode dry-run store", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return apperr.NewStateError("create dry-run store dir", err)
		}
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return apperr.NewStateError("write dry-run store", err)
	}
	return nil
}
