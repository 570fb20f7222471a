package server

import (
	"greenroom/internal/models"

	"github.com/gofiber/fiber/v2"
)

// GetLeaderboard handles GET /api/qna/leaderboard. Scores are derived from
// current question and vote state, so retracted votes and deleted questions
// never leave ghost points behind.
func (s *Server) GetLeaderboard(c *fiber.Ctx) error {
	ctx := c.Context()

	entries, err := s.leaderboardRepo.Compute(ctx)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return models.Respond(c, fiber.StatusOK, entries)
}
