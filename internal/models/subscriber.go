package models

import "time"

// Subscriber statuses. Transitions only move forward:
// pending → confirmed, pending → unsubscribed, confirmed → unsubscribed.
const (
	SubscriberPending      = "pending"
	SubscriberConfirmed    = "confirmed"
	SubscriberUnsubscribed = "unsubscribed"
)

// Subscriber is a mailing list recipient.
type Subscriber struct {
	ID             uint64     `json:"id"              gorm:"primaryKey;autoIncrement"`
	Email          string     `json:"email"           gorm:"size:190;uniqueIndex;not null"`
	Status         string     `json:"status"          gorm:"size:20;index;not null;default:pending"`
	TokenHash      string     `json:"-"               gorm:"size:64;index"`
	Source         string     `json:"source"          gorm:"size:50"`
	CreatedAt      time.Time  `json:"created_at"`
	ConfirmedAt    *time.Time `json:"confirmed_at"`
	UnsubscribedAt *time.Time `json:"unsubscribed_at"`
	// LastEmailSentAt is stamped by the queue worker after a successful delivery.
	LastEmailSentAt   *time.Time `json:"last_email_sent_at"`
	LastConfirmSentAt *time.Time `json:"-"`
}

func (Subscriber) TableName() string { return "subscribers" }

// IsActive reports whether the subscriber should receive mail.
func (s *Subscriber) IsActive() bool { return s.Status == SubscriberConfirmed }
