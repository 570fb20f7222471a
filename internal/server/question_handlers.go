package server

import (
	"strings"

	"greenroom/internal/models"
	"greenroom/internal/validation"

	"github.com/gofiber/fiber/v2"
)

// GetQuestions handles GET /api/qna/sessions/:sessionId/questions. Public:
// anyone can read a session; has_voted is personalized when a token is sent.
func (s *Server) GetQuestions(c *fiber.Ctx) error {
	ctx := c.Context()
	sessionID := c.Params("sessionId")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	viewerID, _ := s.optionalUserID(c)

	questions, err := s.questionRepo.ListBySession(ctx, sessionID, viewerID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return models.Respond(c, fiber.StatusOK, questions)
}

// CreateQuestion handles POST /api/qna/sessions/:sessionId/questions
func (s *Server) CreateQuestion(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)

	sessionID := c.Params("sessionId")
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	var req struct {
		Content string `json:"content"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	content := strings.TrimSpace(req.Content)
	if err := validation.ValidateQuestionContent(content); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	question, err := s.questionRepo.Add(ctx, sessionID, content, userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	s.publishSessionEvent(sessionID, EventQuestionAdded, map[string]interface{}{
		"question": question,
	})

	return models.Respond(c, fiber.StatusCreated, question)
}

// ToggleVote handles POST /api/qna/questions/:id/vote. The same endpoint
// casts and retracts: the response reports which way it went and the fresh
// total.
func (s *Server) ToggleVote(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	questionID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	added, votes, err := s.questionRepo.ToggleVote(ctx, questionID, userID)
	if err != nil {
		if appErr, ok := err.(*models.AppError); ok && appErr.Code == "NOT_FOUND" {
			return models.RespondWithError(c, fiber.StatusNotFound, err)
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	question, qerr := s.questionRepo.GetByID(ctx, questionID, userID)
	if qerr == nil && question != nil {
		s.publishSessionEvent(question.SessionID, EventVoteUpdated, map[string]interface{}{
			"question_id": questionID,
			"votes":       votes,
			"added":       added,
		})
	}

	return models.Respond(c, fiber.StatusOK, fiber.Map{
		"added": added,
		"votes": votes,
	})
}

// DeleteQuestion handles DELETE /api/qna/questions/:id. Only the author may
// delete; anyone else gets deleted=false with no hint whether the question
// exists.
func (s *Server) DeleteQuestion(c *fiber.Ctx) error {
	ctx := c.Context()
	userID := c.Locals("userID").(uint)
	questionID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	// Resolve the session before deleting; afterwards the row is gone. A
	// missing question is not an error here: the delete below reports false
	// for unknown and foreign questions alike.
	question, err := s.questionRepo.GetByID(ctx, questionID, userID)
	if err != nil {
		if appErr, ok := err.(*models.AppError); ok && appErr.Code == "NOT_FOUND" {
			question = nil
		} else {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
	}

	deleted, err := s.questionRepo.Delete(ctx, questionID, userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	if deleted && question != nil {
		s.publishSessionEvent(question.SessionID, EventQuestionDeleted, map[string]interface{}{
			"question_id": questionID,
		})
	}

	return models.Respond(c, fiber.StatusOK, fiber.Map{
		"deleted": deleted,
	})
}
