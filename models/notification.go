package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Notification is one recipient's copy of a domain event. Only the owning
// user may flip Read or delete it.
type Notification struct {
	ID        string          `gorm:"primaryKey;column:notification_id;type:varchar(36)" json:"id"`
	UserID    string          `gorm:"column:user_id;type:varchar(36);index" json:"user_id"`
	Type      EventType       `gorm:"column:type;type:varchar(32)" json:"type"`
	Title     string          `gorm:"column:title" json:"title"`
	Message   string          `gorm:"column:message;type:text" json:"message"`
	Priority  Priority        `gorm:"column:priority;type:varchar(8)" json:"priority"`
	Read      bool            `gorm:"column:is_read" json:"read"`
	Data      json.RawMessage `gorm:"column:data" json:"data,omitempty"`
	CreatedAt time.Time       `gorm:"column:created_at;index" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}

// NotificationTemplate overrides the built-in title and body for one
// (event, recipient role) pair. Placeholders use the {{name}} form.
type NotificationTemplate struct {
	ID            uint      `gorm:"primaryKey;column:id" json:"id"`
	EventKey      EventType `gorm:"column:event_key;type:varchar(32);uniqueIndex:idx_template_event_send_to" json:"event_key"`
	SendTo        Role      `gorm:"column:send_to;type:varchar(16);uniqueIndex:idx_template_event_send_to" json:"send_to"`
	TitleTemplate string    `gorm:"column:title_template" json:"title_template"`
	BodyTemplate  string    `gorm:"column:body_template;type:text" json:"body_template"`
	IsActive      bool      `gorm:"column:is_active" json:"is_active"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (NotificationTemplate) TableName() string { return "notification_templates" }
