package domain

import "time"

// Role names recognized by the application. Admin is a strict superset of
// editor capabilities.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleUser   = "user"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	FullName     string    `gorm:"size:255" json:"full_name"`
	Role         string    `gorm:"size:32;not null;default:user" json:"role"`
	PasswordHash string    `gorm:"size:128" json:"-"`
	GoogleID     *string   `gorm:"size:64;uniqueIndex" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IsAdmin reports whether the role grants full administrative capability.
func IsAdmin(role string) bool {
	return role == RoleAdmin
}

// IsEditor reports whether the role grants content-editing capability.
// Admin implies editor.
func IsEditor(role string) bool {
	return role == RoleAdmin || role == RoleEditor
}
