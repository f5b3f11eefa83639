// Package rollback persists every upload-limit change the allocation engine
// writes, so a torrent can be restored to its pre-management limit on
// operator request. Grounded on the teacher's stats package: a gorm-backed
// sqlite store opened eagerly by Open, mutex-guarded operations,
// upsert-by-primary-key writes via clause.OnConflict.
package rollback

import (
	"sync"

	"github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrInvincible29/Qguardarr/apperr"
	"github.com/mrInvincible29/Qguardarr/utils"
)

// Change is one recorded limit change. Restored marks whether the original
// limit has since been written back. Reason distinguishes a normal
// allocation write from bookkeeping writes like auto-unlimit-on-inactive.
type Change struct {
	Hash          string `gorm:"primaryKey"`
	PreviousLimit int64
	AppliedLimit  int64
	TrackerID     string
	Reason        string
	ChangedAt     int64
	Restored      bool
}

// Store is a sqlite-backed append/upsert log of managed limit changes.
type Store struct {
	mu   sync.Mutex
	path string
	db   *gorm.DB
}

// Open creates or opens the database file at path and migrates its schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, apperr.NewStateError("open rollback database", err)
	}
	if err := db.AutoMigrate(&Change{}); err != nil {
		return nil, apperr.NewStateError("migrate rollback schema", err)
	}
	return &Store{path: path, db: db}, nil
}

// Record upserts the latest applied limit for hash, keeping the first-seen
// PreviousLimit so a chain of writes still rolls back to the original value.
func (s *Store) Record(hash string, previousLimit, appliedLimit int64, trackerID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var existing Change
	err := s.db.Where("hash = ?", hash).First(&existing).Error
	if err == nil {
		previousLimit = existing.PreviousLimit
	}

	change := Change{
		Hash:          hash,
		PreviousLimit: previousLimit,
		AppliedLimit:  appliedLimit,
		TrackerID:     trackerID,
		Reason:        reason,
		ChangedAt:     utils.Now(),
		Restored:      false,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "hash"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"applied_limit": change.AppliedLimit,
			"tracker_id":    change.TrackerID,
			"reason":        change.Reason,
			"changed_at":    change.ChangedAt,
			"restored":      false,
		}),
	}).Create(&change).Error
}

// ListUnrestored returns every change not yet marked restored.
func (s *Store) ListUnrestored() ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changes []Change
	err := s.db.Where("restored = ?", false).Find(&changes).Error
	return changes, err
}

// ListAllTouched returns the full history of managed hashes, restored or not.
func (s *Store) ListAllTouched() ([]Change, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var changes []Change
	err := s.db.Find(&changes).Error
	return changes, err
}

// MarkRestored flags hash as restored to its original limit.
func (s *Store) MarkRestored(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Model(&Change{}).Where("hash = ?", hash).Update("restored", true).Error
}

// Prune deletes restored rows older than olderThan (unix seconds), bounding
// the table's growth for long-running deployments.
func (s *Store) Prune(olderThan int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := s.db.Where("restored = ? AND changed_at < ?", true, olderThan).Delete(&Change{})
	if tx.Error != nil {
		log.Warnf("rollback prune failed: %v", tx.Error)
	}
	return tx.RowsAffected, tx.Error
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
