// Package verification implements the email sign-in code flow: short-lived
// numeric codes with an attempt budget, stored in Redis and delivered
// out-of-band.
package verification

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"time"

	"greenroom/internal/mailer"
	"greenroom/internal/observability"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrExpired means no pending code exists for the email: it expired, was
	// consumed, or was never sent. The caller restarts from the email step.
	ErrExpired = errors.New("verification code expired")

	// ErrAttemptsExhausted means the attempt budget is spent. A correct guess
	// after exhaustion still fails; only a fresh code resets the budget.
	ErrAttemptsExhausted = errors.New("no verification attempts remaining")

	// ErrUnavailable means the code store cannot be reached.
	ErrUnavailable = errors.New("verification store unavailable")
)

// InvalidCodeError is a mismatch with budget left; the caller may retry.
type InvalidCodeError struct {
	AttemptsRemaining int
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid verification code, %d attempts remaining", e.AttemptsRemaining)
}

// Service issues and checks verification codes. One pending code per email;
// sending again replaces the old code so it can never be reused.
type Service struct {
	rdb         *redis.Client
	sender      mailer.Sender
	ttl         time.Duration
	maxAttempts int
}

// NewService creates a verification service.
func NewService(rdb *redis.Client, sender mailer.Sender, ttl time.Duration, maxAttempts int) *Service {
	return &Service{rdb: rdb, sender: sender, ttl: ttl, maxAttempts: maxAttempts}
}

func codeKey(email string) string {
	return "verify:code:" + email
}

// SendCode generates a fresh 4-digit code for the email, replacing any
// pending one, and dispatches it. The TTL is the expiry window and the
// attempt budget starts full.
func (s *Service) SendCode(ctx context.Context, email string) error {
	span, ctx := observability.NewSpan(ctx, "verification.SendCode")
	defer span.End()

	if s.rdb == nil {
		span.SetError(ErrUnavailable)
		return ErrUnavailable
	}

	code, err := generateCode()
	if err != nil {
		span.SetError(err)
		return err
	}

	key := codeKey(email)
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "code", code, "attempts", 0)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.SetError(err)
		return fmt.Errorf("store verification code: %w", err)
	}

	subject := "Your Greenroom sign-in code"
	text := fmt.Sprintf("Your sign-in code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes()))
	if err := s.sender.Send(ctx, email, subject, text, ""); err != nil {
		span.SetError(err)
		return fmt.Errorf("dispatch verification code: %w", err)
	}

	observability.VerificationOutcomes.WithLabelValues("code_sent").Inc()
	return nil
}

// VerifyCode checks the code for the email. Every failure is distinguishable:
// ErrExpired, ErrAttemptsExhausted, or *InvalidCodeError carrying the
// remaining budget. On success the code record is deleted.
func (s *Service) VerifyCode(ctx context.Context, email, code string) error {
	span, ctx := observability.NewSpan(ctx, "verification.VerifyCode")
	defer span.End()

	if s.rdb == nil {
		span.SetError(ErrUnavailable)
		return ErrUnavailable
	}

	key := codeKey(email)
	fields, err := s.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		span.SetError(err)
		return fmt.Errorf("load verification code: %w", err)
	}
	if len(fields) == 0 {
		span.AddAttributes(attribute.String("verification.outcome", "expired"))
		observability.VerificationOutcomes.WithLabelValues("expired").Inc()
		return ErrExpired
	}

	attempts, _ := strconv.Atoi(fields["attempts"])
	if attempts >= s.maxAttempts {
		span.AddAttributes(attribute.String("verification.outcome", "exhausted"))
		observability.VerificationOutcomes.WithLabelValues("exhausted").Inc()
		return ErrAttemptsExhausted
	}

	if fields["code"] != code {
		used, incErr := s.rdb.HIncrBy(ctx, key, "attempts", 1).Result()
		if incErr != nil {
			span.SetError(incErr)
			return fmt.Errorf("record failed attempt: %w", incErr)
		}
		remaining := s.maxAttempts - int(used)
		if remaining <= 0 {
			span.AddAttributes(attribute.String("verification.outcome", "exhausted"))
			observability.VerificationOutcomes.WithLabelValues("exhausted").Inc()
			return ErrAttemptsExhausted
		}
		span.AddAttributes(attribute.String("verification.outcome", "invalid"))
		observability.VerificationOutcomes.WithLabelValues("invalid").Inc()
		return &InvalidCodeError{AttemptsRemaining: remaining}
	}

	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		span.SetError(err)
		return fmt.Errorf("consume verification code: %w", err)
	}
	span.AddAttributes(attribute.String("verification.outcome", "verified"))
	observability.VerificationOutcomes.WithLabelValues("verified").Inc()
	return nil
}

// generateCode returns a 4-digit zero-padded code from crypto/rand.
func generateCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	n := int(b[0])<<24 | int(b[1])<<16 | int(b[2])<<8 | int(b[3])
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("%04d", n%10000), nil
}
