package models

import "time"

// Email event types.
const (
	EmailEventClick = "click"
)

// EmailEvent records recipient engagement. User agents are stored hashed.
type EmailEvent struct {
	ID           uint64    `json:"id"            gorm:"primaryKey;autoIncrement"`
	SubscriberID uint64    `json:"subscriber_id" gorm:"index;not null"`
	QueueID      uint64    `json:"queue_id"      gorm:"index;not null"`
	Event        string    `json:"event"         gorm:"size:20;not null"`
	URL          string    `json:"url"           gorm:"type:text"`
	UAHash       string    `json:"-"             gorm:"size:64"`
	CreatedAt    time.Time `json:"created_at"    gorm:"index"`
}

func (EmailEvent) TableName() string { return "email_events" }
