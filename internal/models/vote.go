package models

import "time"

// Vote records that a user upvoted a question. The (QuestionID, UserID) pair
// is unique; the row's existence is the only state. Votes are hard-deleted on
// toggle-off and cascade away with their question.
type Vote struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	QuestionID uint      `gorm:"not null;uniqueIndex:idx_question_user" json:"question_id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_question_user" json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`

	Question Question `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
	User     User     `gorm:"foreignKey:UserID" json:"-"`
}
