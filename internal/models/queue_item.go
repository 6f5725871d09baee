package models

import "time"

// Queue item types.
const (
	QueueTypePostNotify   = "post_notify"
	QueueTypeManualBlast  = "manual_blast"
	QueueTypeConfirmation = "confirmation" // reserved; confirmations are sent inline today
)

// Queue item statuses.
const (
	QueueStatusQueued  = "queued"
	QueueStatusSending = "sending"
	QueueStatusSent    = "sent"
	QueueStatusFailed  = "failed"
)

// QueueItem is one fully rendered outbound email awaiting delivery.
// The body is frozen at enqueue time; the worker never re-renders.
type QueueItem struct {
	ID           uint64 `json:"id"            gorm:"primaryKey;autoIncrement"`
	Type         string `json:"type"          gorm:"size:30;not null;uniqueIndex:uniq_type_content_subscriber,priority:1"`
	SubscriberID uint64 `json:"subscriber_id" gorm:"not null;uniqueIndex:uniq_type_content_subscriber,priority:3"`
	// ContentID references the published content for post_notify rows. Blast rows
	// leave it NULL so the unique index never groups them (MySQL ignores NULLs).
	ContentID   *uint64    `json:"content_id"    gorm:"uniqueIndex:uniq_type_content_subscriber,priority:2"`
	Subject     string     `json:"subject"       gorm:"size:255;not null"`
	Body        string     `json:"-"             gorm:"type:longtext"`
	Headers     string     `json:"-"             gorm:"type:text"` // JSON-encoded []string
	ScheduledAt time.Time  `json:"scheduled_at"  gorm:"index:idx_status_scheduled,priority:2;not null"`
	Attempts    int        `json:"attempts"      gorm:"not null;default:0"`
	LastError   string     `json:"last_error"    gorm:"type:text"`
	Status      string     `json:"status"        gorm:"size:20;index:idx_status_scheduled,priority:1;not null;default:queued"`
	SendingAt   *time.Time `json:"-"` // claim lease; stale leases are reclaimed
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at"`
}

func (QueueItem) TableName() string { return "email_queue" }

// Terminal reports whether the item has reached a final state.
func (q *QueueItem) Terminal() bool {
	return q.Status == QueueStatusSent || q.Status == QueueStatusFailed
}
