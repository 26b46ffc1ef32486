package domain

import "time"

// OnlineSession is one live presence row. At most one row exists per
// SessionID; a row counts as online only while LastActivity is within the
// staleness window.
type OnlineSession struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SessionID       string    `gorm:"size:64;uniqueIndex;not null" json:"session_id"`
	UserID          *uint     `gorm:"index" json:"user_id,omitempty"`
	IPAddress       string    `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent       string    `gorm:"size:512" json:"user_agent"`
	PageURL         string    `gorm:"size:512" json:"page_url"`
	IsAuthenticated bool      `gorm:"index" json:"is_authenticated"`
	LastActivity    time.Time `gorm:"index;not null" json:"last_activity"`
	CreatedAt       time.Time `json:"created_at"`
}

func (OnlineSession) TableName() string {
	return "online_sessions"
}

// PresenceStats is the aggregate read side of the presence table.
type PresenceStats struct {
	TotalOnline        int `json:"total_online"`
	AuthenticatedUsers int `json:"authenticated_users"`
	AnonymousUsers     int `json:"anonymous_users"`
}

// Heartbeat is the write payload a session reports about itself.
type Heartbeat struct {
	SessionID       string `json:"session_id"`
	UserID          *uint  `json:"user_id,omitempty"`
	IPAddress       string `json:"ip_address,omitempty"`
	UserAgent       string `json:"user_agent"`
	PageURL         string `json:"page_url"`
	IsAuthenticated bool   `json:"is_authenticated"`
}
