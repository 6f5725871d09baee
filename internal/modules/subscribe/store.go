package subscribe

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/kunaal-theme/notify/internal/models"
	"gorm.io/gorm"
)

var (
	ErrNotFound          = errors.New("subscriber not found")
	ErrDuplicateEmail    = errors.New("email already subscribed")
	ErrInvalidTransition = errors.New("invalid subscriber status transition")
)

// Store persists subscribers. Emails are stored lowercased so uniqueness is
// effectively case-insensitive regardless of collation.
type Store struct{ db *gorm.DB }

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// NormalizeEmail lowercases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail performs syntactic validation of a bare address.
func ValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > 190 {
		return false
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return false
	}
	// Reject display-name forms; queue rows and signatures carry bare addresses.
	return addr.Address == email
}

// CanTransition reports whether a status change is allowed. Statuses only
// move forward; same-status is treated as an idempotent no-op by UpdateStatus.
func CanTransition(from, to string) bool {
	switch from {
	case models.SubscriberPending:
		return to == models.SubscriberConfirmed || to == models.SubscriberUnsubscribed
	case models.SubscriberConfirmed:
		return to == models.SubscriberUnsubscribed
	default:
		return false
	}
}

func (s *Store) GetByEmail(email string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := s.db.Where("email = ?", NormalizeEmail(email)).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) GetByID(id uint64) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := s.db.First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) GetByTokenHash(hash string) (*models.Subscriber, error) {
	var sub models.Subscriber
	err := s.db.Where("token_hash = ?", hash).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// Insert creates a pending subscriber. A unique-key violation surfaces as
// ErrDuplicateEmail so callers can branch without inspecting driver errors.
func (s *Store) Insert(email, source string) (*models.Subscriber, error) {
	sub := models.Subscriber{
		Email:  NormalizeEmail(email),
		Status: models.SubscriberPending,
		Source: strings.TrimSpace(source),
	}
	if err := s.db.Create(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "Duplicate entry") {
			return nil, ErrDuplicateEmail
		}
		return nil, err
	}
	return &sub, nil
}

// UpdateStatus applies a forward transition and stamps the matching timestamp.
// Updating to the current status succeeds without touching the row.
func (s *Store) UpdateStatus(id uint64, to string) error {
	sub, err := s.GetByID(id)
	if err != nil {
		return err
	}
	if sub.Status == to {
		return nil
	}
	if !CanTransition(sub.Status, to) {
		return ErrInvalidTransition
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{"status": to}
	switch to {
	case models.SubscriberConfirmed:
		updates["confirmed_at"] = now
		// The opt-in token is spent; a confirmed row never keeps one.
		updates["token_hash"] = nil
	case models.SubscriberUnsubscribed:
		updates["unsubscribed_at"] = now
	}
	return s.db.Model(&models.Subscriber{}).Where("id = ?", id).Updates(updates).Error
}

// SetTokenHash rotates the stored confirmation token hash and stamps the
// resend cooldown clock.
func (s *Store) SetTokenHash(id uint64, hash string) error {
	return s.db.Model(&models.Subscriber{}).Where("id = ?", id).Updates(map[string]interface{}{
		"token_hash":           hash,
		"last_confirm_sent_at": time.Now().UTC(),
	}).Error
}

// ListConfirmedPage returns one fan-out page of confirmed subscribers in
// stable id order.
func (s *Store) ListConfirmedPage(offset, limit int) ([]models.Subscriber, error) {
	var subs []models.Subscriber
	err := s.db.Where("status = ?", models.SubscriberConfirmed).
		Order("id ASC").Offset(offset).Limit(limit).Find(&subs).Error
	return subs, err
}

// TouchLastSent stamps the delivery clock after a successful send.
func (s *Store) TouchLastSent(id uint64) error {
	return s.db.Model(&models.Subscriber{}).Where("id = ?", id).
		Update("last_email_sent_at", time.Now().UTC()).Error
}

// CountByStatus returns subscriber counts for the admin overview.
func (s *Store) CountByStatus() (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := s.db.Model(&models.Subscriber{}).
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
