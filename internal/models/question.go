package models

import (
	"time"

	"gorm.io/gorm"
)

// MaxQuestionLength bounds question content.
const MaxQuestionLength = 500

// Question represents a question asked in a conference session.
type Question struct {
	ID        uint   `gorm:"primaryKey" json:"id"`
	SessionID string `gorm:"not null;index" json:"session_id"`
	Content   string `gorm:"type:text;not null" json:"content"`
	AuthorID  uint   `gorm:"not null;index" json:"author_id"`
	Author    User   `gorm:"foreignKey:AuthorID" json:"-"`
	// AuthorName is not persisted; resolved at query time so display-name
	// changes are never stale.
	AuthorName string `gorm:"->" json:"author_name"`
	// Votes is not persisted; computed at query time
	Votes int64 `gorm:"->" json:"votes"`
	// HasVoted indicates whether the requesting user voted on this question (computed)
	HasVoted  bool           `gorm:"->" json:"has_voted"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}
