package server

import (
	"errors"
	"strings"

	"greenroom/internal/models"
	"greenroom/internal/validation"
	"greenroom/internal/verification"

	"github.com/gofiber/fiber/v2"
)

// verifyFailure is the response body for every failed code check. Kind lets
// the frontend distinguish "try again" from "start over" without string
// matching on messages.
type verifyFailure struct {
	Error             string `json:"error"`
	Kind              string `json:"kind"`
	AttemptsRemaining *int   `json:"attempts_remaining,omitempty"`
}

// SendEmailCode handles POST /api/qna/auth/email/code
func (s *Server) SendEmailCode(c *fiber.Ctx) error {
	ctx := c.Context()

	var req struct {
		Email string `json:"email"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.ValidateEmail(email); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	if err := s.verifier.SendCode(ctx, email); err != nil {
		if errors.Is(err, verification.ErrUnavailable) {
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				models.NewUnavailableError(err))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}

	// 202: the code is on its way, nothing to return yet.
	return models.Respond(c, fiber.StatusAccepted, fiber.Map{
		"message": "Verification code sent",
	})
}

// VerifyEmailCode handles POST /api/qna/auth/email/verify. A correct code
// resolves (or creates) the email identity and rotates its token, so at most
// one bearer token is live per user.
func (s *Server) VerifyEmailCode(c *fiber.Ctx) error {
	ctx := c.Context()

	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := validation.ValidateEmail(email); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}
	if req.Code == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Code is required"))
	}

	if err := s.verifier.VerifyCode(ctx, email, req.Code); err != nil {
		var invalid *verification.InvalidCodeError
		switch {
		case errors.As(err, &invalid):
			remaining := invalid.AttemptsRemaining
			return c.Status(fiber.StatusUnauthorized).JSON(verifyFailure{
				Error:             "Invalid verification code",
				Kind:              "invalid_code",
				AttemptsRemaining: &remaining,
			})
		case errors.Is(err, verification.ErrExpired):
			return c.Status(fiber.StatusUnauthorized).JSON(verifyFailure{
				Error: "Verification code expired, request a new one",
				Kind:  "expired",
			})
		case errors.Is(err, verification.ErrAttemptsExhausted):
			return c.Status(fiber.StatusUnauthorized).JSON(verifyFailure{
				Error: "Too many attempts, request a new code",
				Kind:  "attempts_exhausted",
			})
		case errors.Is(err, verification.ErrUnavailable):
			return models.RespondWithError(c, fiber.StatusServiceUnavailable,
				models.NewUnavailableError(err))
		default:
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		}
	}

	user, err := s.userRepo.GetOrCreateByEmail(ctx, email)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	user, err = s.userRepo.RotateToken(ctx, user.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return models.Respond(c, fiber.StatusOK, fiber.Map{
		"user":  user,
		"token": user.AuthToken,
	})
}

// AnonymousSignIn handles POST /api/qna/auth/anonymous. The same fingerprint
// resolves to the same identity and keeps its existing token.
func (s *Server) AnonymousSignIn(c *fiber.Ctx) error {
	ctx := c.Context()

	var req struct {
		Fingerprint string `json:"fingerprint"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	fingerprint := strings.TrimSpace(req.Fingerprint)
	if err := validation.ValidateFingerprint(fingerprint); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(err.Error()))
	}

	user, err := s.userRepo.GetOrCreateByFingerprint(ctx, fingerprint)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return models.Respond(c, fiber.StatusOK, fiber.Map{
		"user":  user,
		"token": user.AuthToken,
	})
}
