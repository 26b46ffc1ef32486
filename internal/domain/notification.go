package domain

import "time"

type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationSuccess NotificationType = "success"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationContact NotificationType = "contact"
	NotificationComment NotificationType = "comment"
	NotificationSystem  NotificationType = "system"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "low"
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
	PriorityUrgent NotificationPriority = "urgent"
)

// Notification is either global (visible to every privileged viewer) or
// addressed to a single user. Read state for global rows lives in
// NotificationRead; user-scoped rows carry IsRead directly.
type Notification struct {
	ID          string               `gorm:"primaryKey;size:36" json:"id"`
	Title       string               `gorm:"size:255;not null" json:"title"`
	Message     string               `gorm:"size:2048" json:"message"`
	Type        NotificationType     `gorm:"size:16;not null;default:info" json:"type"`
	Priority    NotificationPriority `gorm:"size:16;not null;default:normal" json:"priority"`
	IsGlobal    bool                 `gorm:"index" json:"is_global"`
	UserID      *uint                `gorm:"index" json:"user_id,omitempty"`
	IsRead      bool                 `json:"is_read"`
	Metadata    string               `gorm:"size:2048" json:"metadata,omitempty"`
	ActionURL   string               `gorm:"size:512" json:"action_url,omitempty"`
	ActionLabel string               `gorm:"size:64" json:"action_label,omitempty"`
	CreatedAt   time.Time            `gorm:"index" json:"created_at"`
}

// NotificationRead is the per-recipient read marker for global notifications.
type NotificationRead struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	NotificationID string    `gorm:"size:36;index:idx_notification_reader,unique;not null" json:"notification_id"`
	UserID         uint      `gorm:"index:idx_notification_reader,unique;not null" json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}
