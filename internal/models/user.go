// Package models contains data structures for the application's domain models.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a Q&A participant. Exactly one of Email or Fingerprint is
// the stable identifier: Email for verified users, Fingerprint for anonymous
// device-based identities. Email lookup takes precedence, so a device that
// verifies an email is served by the email identity from then on; questions
// authored under the old fingerprint identity stay where they are.
type User struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Email       *string        `gorm:"uniqueIndex" json:"email,omitempty"`
	Fingerprint *string        `gorm:"uniqueIndex" json:"-"`
	DisplayName string         `gorm:"not null" json:"display_name"`
	AuthToken   string         `gorm:"uniqueIndex;not null" json:"-"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsAnonymous reports whether this user has no verified email.
func (u *User) IsAnonymous() bool {
	return u.Email == nil
}
