package server

import (
	"strings"

	"greenroom/internal/models"
	"greenroom/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/qna/users/me
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusNotFound, err)
	}

	return models.Respond(c, fiber.StatusOK, user)
}

// UpdateMyDisplayName handles PUT /api/qna/users/me/display-name. The change
// is broadcast to every session the user is connected in; questions pick it
// up automatically because attribution is resolved at read time.
func (s *Server) UpdateMyDisplayName(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	var req struct {
		DisplayName string `json:"display_name"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	name := strings.TrimSpace(req.DisplayName)
	if err := validation.ValidateDisplayName(name); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	user, err := s.userRepo.UpdateDisplayName(ctx, userID, name)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	s.publishUserEvent(userID, EventDisplayNameUpdated, map[string]interface{}{
		"user_id":      user.ID,
		"display_name": user.DisplayName,
	})

	return models.Respond(c, fiber.StatusOK, user)
}
