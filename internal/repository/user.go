package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"greenroom/internal/models"
	"greenroom/internal/validation"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// tokenCacheTTL bounds how long a token->user mapping lives in Redis before
// falling back to the indexed auth_token column.
const tokenCacheTTL = 24 * time.Hour

// UserRepository is the identity store: passwordless users keyed by email or
// device fingerprint, with one active opaque bearer token each.
type UserRepository interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (*models.User, error)
	GetByToken(ctx context.Context, token string) (*models.User, error)
	GetOrCreateByEmail(ctx context.Context, email string) (*models.User, error)
	GetOrCreateByFingerprint(ctx context.Context, fingerprint string) (*models.User, error)
	UpdateDisplayName(ctx context.Context, id uint, name string) (*models.User, error)
	RotateToken(ctx context.Context, id uint) (*models.User, error)
}

type userRepository struct {
	db  *gorm.DB
	rdb *redis.Client
}

// NewUserRepository returns a new UserRepository implementation. rdb may be
// nil; token lookups then go straight to the database.
func NewUserRepository(db *gorm.DB, rdb *redis.Client) UserRepository {
	return &userRepository{db: db, rdb: rdb}
}

func tokenCacheKey(token string) string {
	return "auth:token:" + token
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewNotFoundError("User", id)
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

func (r *userRepository) GetByFingerprint(ctx context.Context, fingerprint string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("fingerprint = ?", fingerprint).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &user, nil
}

// GetByToken resolves a bearer token to its user, O(1) amortized: a Redis
// token->id mapping fronts the unique-indexed auth_token column.
func (r *userRepository) GetByToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, nil
	}

	if r.rdb != nil {
		if idStr, err := r.rdb.Get(ctx, tokenCacheKey(token)).Result(); err == nil {
			if id64, perr := strconv.ParseUint(idStr, 10, 32); perr == nil {
				user, gerr := r.GetByID(ctx, uint(id64))
				if gerr == nil && user.AuthToken == token {
					return user, nil
				}
				// Stale mapping (token rotated since it was cached).
				_ = r.rdb.Del(ctx, tokenCacheKey(token)).Err()
			}
		}
	}

	var user models.User
	if err := r.db.WithContext(ctx).Where("auth_token = ?", token).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}

	r.cacheToken(ctx, token, user.ID)
	return &user, nil
}

func (r *userRepository) cacheToken(ctx context.Context, token string, id uint) {
	if r.rdb == nil {
		return
	}
	_ = r.rdb.Set(ctx, tokenCacheKey(token), strconv.FormatUint(uint64(id), 10), tokenCacheTTL).Err()
}

// GetOrCreateByEmail returns the user for the verified email, creating one
// with a generated display name and fresh token on first contact.
func (r *userRepository) GetOrCreateByEmail(ctx context.Context, email string) (*models.User, error) {
	existing, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	user := &models.User{
		Email:       &email,
		DisplayName: generateDisplayName(),
		AuthToken:   newToken(),
	}
	if err := r.create(ctx, user); err != nil {
		if isUniqueConstraintError(err) {
			// Lost a creation race; the winner's row is authoritative.
			return r.GetByEmail(ctx, email)
		}
		return nil, models.NewInternalError(err)
	}
	r.cacheToken(ctx, user.AuthToken, user.ID)
	return user, nil
}

// GetOrCreateByFingerprint is the anonymous counterpart of
// GetOrCreateByEmail. A fingerprint identity is never merged into an email
// identity; the email identity simply wins future lookups for that device.
func (r *userRepository) GetOrCreateByFingerprint(ctx context.Context, fingerprint string) (*models.User, error) {
	existing, err := r.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	user := &models.User{
		Fingerprint: &fingerprint,
		DisplayName: generateDisplayName(),
		AuthToken:   newToken(),
	}
	if err := r.create(ctx, user); err != nil {
		if isUniqueConstraintError(err) {
			return r.GetByFingerprint(ctx, fingerprint)
		}
		return nil, models.NewInternalError(err)
	}
	r.cacheToken(ctx, user.AuthToken, user.ID)
	return user, nil
}

func (r *userRepository) create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) UpdateDisplayName(ctx context.Context, id uint, name string) (*models.User, error) {
	if err := validation.ValidateDisplayName(name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	user.DisplayName = strings.TrimSpace(name)
	if err := r.db.WithContext(ctx).Model(user).Update("display_name", user.DisplayName).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return user, nil
}

// RotateToken replaces the user's active token. The previous token stops
// resolving immediately (one active token per user).
func (r *userRepository) RotateToken(ctx context.Context, id uint) (*models.User, error) {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldToken := user.AuthToken
	user.AuthToken = newToken()
	if err := r.db.WithContext(ctx).Model(user).Update("auth_token", user.AuthToken).Error; err != nil {
		return nil, models.NewInternalError(err)
	}

	if r.rdb != nil && oldToken != "" {
		_ = r.rdb.Del(ctx, tokenCacheKey(oldToken)).Err()
	}
	r.cacheToken(ctx, user.AuthToken, user.ID)
	return user, nil
}

func newToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// generateDisplayName produces names like "Curious Otter" for users who have
// not picked one yet.
func generateDisplayName() string {
	adjective := gofakeit.Adjective()
	animal := gofakeit.Animal()
	return fmt.Sprintf("%s %s", titleWord(adjective), titleWord(animal))
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	return strings.ToUpper(w[:1]) + w[1:]
}
