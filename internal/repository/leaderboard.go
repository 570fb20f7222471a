package repository

import (
	"context"
	"sort"
	"time"

	"greenroom/internal/models"
	"greenroom/internal/observability"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

// Scoring weights. A question only scores once someone votes for it; extra
// votes past the first are worth one point each; the top question of each
// session earns its author a bonus.
const (
	pointsPerVotedQuestion = 3
	pointsPerExtraVote     = 1
	sessionTopBonus        = 5
)

// LeaderboardRepository derives per-user scores from current Question/Vote
// state on demand. Nothing is stored.
type LeaderboardRepository interface {
	Compute(ctx context.Context) ([]models.LeaderboardEntry, error)
}

type leaderboardRepository struct {
	db *gorm.DB
}

// NewLeaderboardRepository creates a new leaderboard repository.
func NewLeaderboardRepository(db *gorm.DB) LeaderboardRepository {
	return &leaderboardRepository{db: db}
}

// questionStat is one question with its live vote count.
type questionStat struct {
	ID         uint
	SessionID  string
	AuthorID   uint
	AuthorName string
	CreatedAt  time.Time
	Votes      int64
}

func (r *leaderboardRepository) Compute(ctx context.Context) ([]models.LeaderboardEntry, error) {
	span, ctx := observability.NewSpan(ctx, "leaderboard.Compute")
	defer span.End()

	var stats []questionStat
	err := r.db.WithContext(ctx).
		Model(&models.Question{}).
		Select("questions.id, questions.session_id, questions.author_id, questions.created_at, " +
			"(SELECT display_name FROM users WHERE users.id = questions.author_id) as author_name, " +
			"(SELECT COUNT(*) FROM votes WHERE votes.question_id = questions.id) as votes").
		Order("questions.id ASC").
		Scan(&stats).Error
	if err != nil {
		span.SetError(err)
		return nil, models.NewInternalError(err)
	}

	entries := make(map[uint]*models.LeaderboardEntry)
	topPerSession := make(map[string]questionStat)

	for _, q := range stats {
		entry, ok := entries[q.AuthorID]
		if !ok {
			entry = &models.LeaderboardEntry{
				UserID:      q.AuthorID,
				DisplayName: q.AuthorName,
			}
			entries[q.AuthorID] = entry
		}
		entry.QuestionsAsked++
		entry.UpvotesReceived += int(q.Votes)
		if q.Votes > 0 {
			entry.Score += pointsPerVotedQuestion + pointsPerExtraVote*int(q.Votes-1)
		}

		top, seen := topPerSession[q.SessionID]
		if !seen || beatsTop(q, top) {
			topPerSession[q.SessionID] = q
		}
	}

	// One bonus per session, for the single most-voted question. Sessions
	// where nothing was voted on award no bonus.
	for _, top := range topPerSession {
		if top.Votes > 0 {
			entries[top.AuthorID].Score += sessionTopBonus
		}
	}

	result := make([]models.LeaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		result = append(result, *entry)
	}

	// Deterministic order: score, then questions asked, then user creation
	// order (ids are monotonically assigned).
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		if result[i].QuestionsAsked != result[j].QuestionsAsked {
			return result[i].QuestionsAsked > result[j].QuestionsAsked
		}
		return result[i].UserID < result[j].UserID
	})

	span.AddAttributes(attribute.Int("leaderboard.entries", len(result)))
	return result, nil
}

// beatsTop reports whether q displaces the current session top. Ties on vote
// count break to the earlier question; ids break exact-timestamp ties.
func beatsTop(q, top questionStat) bool {
	if q.Votes != top.Votes {
		return q.Votes > top.Votes
	}
	if !q.CreatedAt.Equal(top.CreatedAt) {
		return q.CreatedAt.Before(top.CreatedAt)
	}
	return q.ID < top.ID
}
