package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"greenroom/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.Question{},
		&models.Vote{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}

	return db
}

func createTestUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	email := fmt.Sprintf("%s@example.com", name)
	user := &models.User{
		Email:       &email,
		DisplayName: name,
		AuthToken:   "token-" + name,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func TestQuestionRepository_AddAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	author := createTestUser(t, db, "alice")

	question, err := repo.Add(ctx, "keynote", "Will there be a recording?", author.ID)
	require.NoError(t, err)
	assert.NotZero(t, question.ID)
	assert.Equal(t, "keynote", question.SessionID)
	assert.Equal(t, "alice", question.AuthorName)
	assert.EqualValues(t, 0, question.Votes)
	assert.False(t, question.HasVoted)
}

func TestQuestionRepository_GetByID_ReflectsCurrentDisplayName(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuestionRepository(db)
	userRepo := NewUserRepository(db, nil)
	ctx := context.Background()

	author := createTestUser(t, db, "bob")
	question, err := repo.Add(ctx, "keynote", "What about dark mode?", author.ID)
	require.NoError(t, err)

	_, err = userRepo.UpdateDisplayName(ctx, author.ID, "Robert")
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, question.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, "Robert", got.AuthorName)
}

func TestQuestionRepository_ToggleVote(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	author := createTestUser(t, db, "carol")
	voter := createTestUser(t, db, "dave")

	question, err := repo.Add(ctx, "keynote", "Any plans for a v2 API?", author.ID)
	require.NoError(t, err)

	t.Run("first toggle adds", func(t *testing.T) {
		added, votes, err := repo.ToggleVote(ctx, question.ID, voter.ID)
		require.NoError(t, err)
		assert.True(t, added)
		assert.EqualValues(t, 1, votes)

		got, err := repo.GetByID(ctx, question.ID, voter.ID)
		require.NoError(t, err)
		assert.True(t, got.HasVoted)
	})

	t.Run("second toggle removes", func(t *testing.T) {
		added, votes, err := repo.ToggleVote(ctx, question.ID, voter.ID)
		require.NoError(t, err)
		assert.False(t, added)
		assert.EqualValues(t, 0, votes)

		got, err := repo.GetByID(ctx, question.ID, voter.ID)
		require.NoError(t, err)
		assert.False(t, got.HasVoted)
	})

	t.Run("unknown question is not found", func(t *testing.T) {
		_, _, err := repo.ToggleVote(ctx, 9999, voter.ID)
		require.Error(t, err)
		appErr, ok := err.(*models.AppError)
		require.True(t, ok)
		assert.Equal(t, "NOT_FOUND", appErr.Code)
	})

	t.Run("votes from different users accumulate", func(t *testing.T) {
		_, _, err := repo.ToggleVote(ctx, question.ID, voter.ID)
		require.NoError(t, err)
		added, votes, err := repo.ToggleVote(ctx, question.ID, author.ID)
		require.NoError(t, err)
		assert.True(t, added)
		assert.EqualValues(t, 2, votes)
	})
}

func TestQuestionRepository_ListBySession_Ordering(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	author := createTestUser(t, db, "erin")
	voterA := createTestUser(t, db, "frank")
	voterB := createTestUser(t, db, "grace")

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	mkQuestion := func(content string, offset time.Duration) *models.Question {
		q := &models.Question{
			SessionID: "track-a",
			Content:   content,
			AuthorID:  author.ID,
			CreatedAt: base.Add(offset),
		}
		require.NoError(t, db.Create(q).Error)
		return q
	}

	early := mkQuestion("early, one vote", 0)
	popular := mkQuestion("popular, two votes", time.Minute)
	late := mkQuestion("late, one vote", 2*time.Minute)
	unvoted := mkQuestion("no votes", 3*time.Minute)

	for _, v := range []struct {
		q *models.Question
		u *models.User
	}{
		{popular, voterA}, {popular, voterB},
		{early, voterA},
		{late, voterB},
	} {
		_, _, err := repo.ToggleVote(ctx, v.q.ID, v.u.ID)
		require.NoError(t, err)
	}

	// Another session must never leak into the listing.
	other := &models.Question{SessionID: "track-b", Content: "elsewhere", AuthorID: author.ID}
	require.NoError(t, db.Create(other).Error)

	questions, err := repo.ListBySession(ctx, "track-a", 0)
	require.NoError(t, err)
	require.Len(t, questions, 4)

	// Vote count descending, ties to the earlier question.
	assert.Equal(t, popular.ID, questions[0].ID)
	assert.Equal(t, early.ID, questions[1].ID)
	assert.Equal(t, late.ID, questions[2].ID)
	assert.Equal(t, unvoted.ID, questions[3].ID)
}

func TestQuestionRepository_ToggleVote_RecoversLostInsertRace(t *testing.T) {
	// Shared-cache DSN so a second handle sees the same database, standing in
	// for a concurrent toggle from another request or replica.
	dsn := "file:toggle_race?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Question{}, &models.Vote{}))

	rival, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	repo := NewQuestionRepository(db)
	ctx := context.Background()

	author := createTestUser(t, db, "judy")
	voter := createTestUser(t, db, "karl")
	question, err := repo.Add(ctx, "keynote", "Who reviews the reviewers?", author.ID)
	require.NoError(t, err)

	// Slip the rival's identical vote in between this toggle's delete-check
	// and its insert, exactly the interleaving a lost race produces.
	raced := false
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("rival_vote", func(tx *gorm.DB) {
		if raced {
			return
		}
		if _, ok := tx.Statement.Dest.(*models.Vote); !ok {
			return
		}
		raced = true
		require.NoError(t, rival.Create(&models.Vote{QuestionID: question.ID, UserID: voter.ID}).Error)
	}))
	t.Cleanup(func() { _ = db.Callback().Create().Remove("rival_vote") })

	added, votes, err := repo.ToggleVote(ctx, question.ID, voter.ID)
	require.NoError(t, err)
	require.True(t, raced, "conflicting insert was never injected")

	// The losing toggle resolves to a removal: the voter never holds more
	// than one vote row and the pair of toggles nets out to zero.
	assert.False(t, added)
	assert.EqualValues(t, 0, votes)

	var voteRows int64
	require.NoError(t, db.Model(&models.Vote{}).
		Where("question_id = ? AND user_id = ?", question.ID, voter.ID).
		Count(&voteRows).Error)
	assert.EqualValues(t, 0, voteRows)
}

func TestQuestionRepository_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewQuestionRepository(db)
	ctx := context.Background()

	author := createTestUser(t, db, "heidi")
	other := createTestUser(t, db, "ivan")

	question, err := repo.Add(ctx, "panel", "How do you handle burnout?", author.ID)
	require.NoError(t, err)
	_, _, err = repo.ToggleVote(ctx, question.ID, other.ID)
	require.NoError(t, err)

	t.Run("non-author cannot delete", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, question.ID, other.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		questions, err := repo.ListBySession(ctx, "panel", 0)
		require.NoError(t, err)
		assert.Len(t, questions, 1)

		votes, err := repo.VoteCount(ctx, question.ID)
		require.NoError(t, err)
		assert.EqualValues(t, 1, votes)
	})

	t.Run("author delete cascades votes", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, question.ID, author.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		questions, err := repo.ListBySession(ctx, "panel", 0)
		require.NoError(t, err)
		assert.Empty(t, questions)

		var voteRows int64
		require.NoError(t, db.Model(&models.Vote{}).Where("question_id = ?", question.ID).Count(&voteRows).Error)
		assert.EqualValues(t, 0, voteRows)
	})

	t.Run("deleting twice reports false", func(t *testing.T) {
		deleted, err := repo.Delete(ctx, question.ID, author.ID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}
