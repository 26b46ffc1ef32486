package domain

import "time"

// ContactMessage is a lead submitted through the public contact form. New
// rows are announced on the domain-event stream so the notification relay
// can synthesize an alert for admins.
type ContactMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Email     string    `gorm:"size:255;not null" json:"email"`
	Subject   string    `gorm:"size:255" json:"subject"`
	Message   string    `gorm:"size:4096;not null" json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// NewsletterSubscriber is a public newsletter registration.
type NewsletterSubscriber struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	CreatedAt time.Time `json:"created_at"`
}
