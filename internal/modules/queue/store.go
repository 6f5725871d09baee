package queue

import (
	"errors"
	"time"

	"github.com/kunaal-theme/notify/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotRequeueable is returned when a manual requeue targets a row that is
// not in the failed state.
var ErrNotRequeueable = errors.New("queue item is not in a failed state")

const maxStoredErrorLen = 500

// Store persists the outbound queue. The lease bounds how long a row may sit
// in sending before it is considered orphaned and offered to FetchDue again.
type Store struct {
	db    *gorm.DB
	lease time.Duration
}

func NewStore(db *gorm.DB, leaseMinutes int) *Store {
	if leaseMinutes <= 0 {
		leaseMinutes = 10
	}
	return &Store{db: db, lease: time.Duration(leaseMinutes) * time.Minute}
}

// Insert writes one queue row.
func (s *Store) Insert(item *models.QueueItem) error {
	return s.db.Create(item).Error
}

// InsertIgnoreDuplicate writes one row unless the dedup index already holds
// (type, content, subscriber). Reports whether a row was created.
func (s *Store) InsertIgnoreDuplicate(item *models.QueueItem) (bool, error) {
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(item)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FetchDue returns rows eligible for delivery: queued rows whose time has
// come, plus sending rows whose lease expired (a worker died mid-send).
// Ordered oldest-scheduled first with id as tiebreaker.
func (s *Store) FetchDue(now time.Time, limit int) ([]models.QueueItem, error) {
	var items []models.QueueItem
	leaseCutoff := now.Add(-s.lease)
	err := s.db.
		Where("(status = ? AND scheduled_at <= ?) OR (status = ? AND sending_at IS NOT NULL AND sending_at < ?)",
			models.QueueStatusQueued, now, models.QueueStatusSending, leaseCutoff).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// Claim flips one row to sending and bumps attempts in a single guarded
// UPDATE. The guard repeats the FetchDue predicate, so of two workers racing
// on the same row exactly one sees RowsAffected == 1.
func (s *Store) Claim(id uint64, now time.Time) (bool, error) {
	leaseCutoff := now.Add(-s.lease)
	res := s.db.Model(&models.QueueItem{}).
		Where("id = ? AND (status = ? OR (status = ? AND sending_at IS NOT NULL AND sending_at < ?))",
			id, models.QueueStatusQueued, models.QueueStatusSending, leaseCutoff).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusSending,
			"attempts":   gorm.Expr("attempts + 1"),
			"sending_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkSent finalizes a delivered row.
func (s *Store) MarkSent(id uint64) error {
	return s.db.Model(&models.QueueItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusSent,
			"sent_at":    time.Now().UTC(),
			"sending_at": nil,
			"last_error": "",
		}).Error
}

// MarkFailed finalizes a row that will never be retried.
func (s *Store) MarkFailed(id uint64, errMsg string) error {
	return s.db.Model(&models.QueueItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     models.QueueStatusFailed,
			"last_error": truncateError(errMsg),
			"sending_at": nil,
		}).Error
}

// MarkRetry sends a row back to queued with a new scheduled time. Attempts
// stay as bumped by Claim, so the retry budget keeps counting.
func (s *Store) MarkRetry(id uint64, errMsg string, nextAt time.Time) error {
	return s.db.Model(&models.QueueItem{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusQueued,
			"last_error":   truncateError(errMsg),
			"scheduled_at": nextAt,
			"sending_at":   nil,
		}).Error
}

// Requeue puts a failed row back in line immediately (operator action).
// The attempt counter resets; the operator asked for a fresh start.
func (s *Store) Requeue(id uint64) error {
	res := s.db.Model(&models.QueueItem{}).
		Where("id = ? AND status = ?", id, models.QueueStatusFailed).
		Updates(map[string]interface{}{
			"status":       models.QueueStatusQueued,
			"scheduled_at": time.Now().UTC(),
			"attempts":     0,
			"last_error":   "",
			"sending_at":   nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotRequeueable
	}
	return nil
}

// ListRecent returns the newest rows for the admin overview.
func (s *Store) ListRecent(limit int) ([]models.QueueItem, error) {
	var items []models.QueueItem
	err := s.db.Order("id DESC").Limit(limit).Find(&items).Error
	return items, err
}

// CountByStatus returns queue depth per status.
func (s *Store) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.db.Model(&models.QueueItem{}).
		Select("status, COUNT(*) AS n").Group("status").Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.N
	}
	return counts, nil
}

// PruneEvents deletes engagement events older than the retention window.
func PruneEvents(db *gorm.DB, olderThan time.Time) (int64, error) {
	res := db.Where("created_at < ?", olderThan).Delete(&models.EmailEvent{})
	return res.RowsAffected, res.Error
}

func truncateError(msg string) string {
	if len(msg) > maxStoredErrorLen {
		return msg[:maxStoredErrorLen]
	}
	return msg
}
