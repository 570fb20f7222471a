package repository

import (
	"context"
	"errors"

	"greenroom/internal/models"

	"gorm.io/gorm"
)

// QuestionRepository is the question store: durable CRUD for questions and
// votes. Vote uniqueness is enforced by the store's composite index, not by
// in-process locking, so multiple server replicas stay correct against the
// same database.
type QuestionRepository interface {
	Add(ctx context.Context, sessionID, content string, authorID uint) (*models.Question, error)
	GetByID(ctx context.Context, id uint, viewerID uint) (*models.Question, error)
	ListBySession(ctx context.Context, sessionID string, viewerID uint) ([]*models.Question, error)
	ToggleVote(ctx context.Context, questionID, userID uint) (added bool, votes int64, err error)
	Delete(ctx context.Context, questionID, requesterID uint) (bool, error)
	VoteCount(ctx context.Context, questionID uint) (int64, error)
}

type questionRepository struct {
	db *gorm.DB
}

// NewQuestionRepository creates a new question repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) Add(ctx context.Context, sessionID, content string, authorID uint) (*models.Question, error) {
	question := &models.Question{
		SessionID: sessionID,
		Content:   content,
		AuthorID:  authorID,
	}
	if err := r.db.WithContext(ctx).Create(question).Error; err != nil {
		if isForeignKeyError(err) {
			return nil, models.NewNotFoundError("User", authorID)
		}
		return nil, models.NewInternalError(err)
	}
	// Re-read through the detail query so the author name and zeroed counts
	// come back in the same shape as a listing.
	return r.GetByID(ctx, question.ID, authorID)
}

func (r *questionRepository) GetByID(ctx context.Context, id uint, viewerID uint) (*models.Question, error) {
	var question models.Question
	err := r.applyQuestionDetails(r.db.WithContext(ctx), viewerID).
		First(&question, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("Question", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &question, nil
}

// ListBySession returns the session's questions ordered by vote count
// descending; equal counts order by earliest creation, then id, so the
// ordering is deterministic.
func (r *questionRepository) ListBySession(ctx context.Context, sessionID string, viewerID uint) ([]*models.Question, error) {
	var questions []*models.Question
	err := r.applyQuestionDetails(r.db.WithContext(ctx), viewerID).
		Where("session_id = ?", sessionID).
		Order("votes DESC, questions.created_at ASC, questions.id ASC").
		Find(&questions).Error
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return questions, nil
}

// applyQuestionDetails adds subqueries to fetch the vote count, viewer vote
// status, and the author's current display name in a single query. The name
// is resolved at read time on purpose: denormalizing it would go stale on
// display-name changes.
func (r *questionRepository) applyQuestionDetails(db *gorm.DB, viewerID uint) *gorm.DB {
	selectQuery := "questions.*, " +
		"(SELECT COUNT(*) FROM votes WHERE votes.question_id = questions.id) as votes, " +
		"(SELECT display_name FROM users WHERE users.id = questions.author_id) as author_name"

	if viewerID != 0 {
		return db.Select(selectQuery+", EXISTS(SELECT 1 FROM votes WHERE votes.question_id = questions.id AND votes.user_id = ?) as has_voted", viewerID)
	}

	return db.Select(selectQuery + ", false as has_voted")
}

// ToggleVote removes the user's vote if present, otherwise adds it. The
// delete and the constrained insert are each atomic at the store; a unique
// violation on insert means a concurrent toggle won the race, so the vote is
// treated as present and removed. Under concurrent toggles the net effect
// depends on interleaving; that is a property of the operation, not a bug.
func (r *questionRepository) ToggleVote(ctx context.Context, questionID, userID uint) (bool, int64, error) {
	db := r.db.WithContext(ctx)

	var exists int64
	if err := db.Model(&models.Question{}).Where("id = ?", questionID).Count(&exists).Error; err != nil {
		return false, 0, models.NewInternalError(err)
	}
	if exists == 0 {
		return false, 0, models.NewNotFoundError("Question", questionID)
	}

	added, err := r.toggleOnce(db, questionID, userID)
	if err != nil {
		return false, 0, err
	}

	votes, err := r.VoteCount(ctx, questionID)
	if err != nil {
		return false, 0, err
	}
	return added, votes, nil
}

func (r *questionRepository) toggleOnce(db *gorm.DB, questionID, userID uint) (bool, error) {
	res := db.Where("question_id = ? AND user_id = ?", questionID, userID).Delete(&models.Vote{})
	if res.Error != nil {
		return false, models.NewInternalError(res.Error)
	}
	if res.RowsAffected > 0 {
		return false, nil // vote removed
	}

	vote := &models.Vote{QuestionID: questionID, UserID: userID}
	if err := db.Create(vote).Error; err != nil {
		if isUniqueConstraintError(err) {
			// Concurrent toggle inserted first: the vote is present, so this
			// toggle becomes a removal.
			del := db.Where("question_id = ? AND user_id = ?", questionID, userID).Delete(&models.Vote{})
			if del.Error != nil {
				return false, models.NewInternalError(del.Error)
			}
			return false, nil
		}
		if isForeignKeyError(err) {
			return false, models.NewNotFoundError("Question", questionID)
		}
		return false, models.NewInternalError(err)
	}
	return true, nil // vote added
}

func (r *questionRepository) VoteCount(ctx context.Context, questionID uint) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.Vote{}).
		Where("question_id = ?", questionID).
		Count(&count).Error; err != nil {
		return 0, models.NewInternalError(err)
	}
	return count, nil
}

// Delete removes the question only when the requester authored it, cascading
// its votes. A non-author request returns false without mutation; that is a
// normal outcome, not an error.
func (r *questionRepository) Delete(ctx context.Context, questionID, requesterID uint) (bool, error) {
	deleted := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND author_id = ?", questionID, requesterID).Delete(&models.Question{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		deleted = true
		// Votes are hard rows; remove them with their question so counts
		// derived from vote rows stay consistent.
		return tx.Where("question_id = ?", questionID).Delete(&models.Vote{}).Error
	})
	if err != nil {
		return false, models.NewInternalError(err)
	}
	return deleted, nil
}
