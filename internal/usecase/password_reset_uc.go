package usecase

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/repository"
	"umuhanda-backend/internal/infra/logging"
)

// Compile-time check
var _ PasswordResetUseCase = (*passwordResetUC)(nil)

const (
	resetRequestLimit  = 3
	resetRequestWindow = 15 * time.Minute
	resetCheckLimit    = 10
	resetCheckWindow   = 15 * time.Minute
	// A code is burned after this many wrong guesses.
	resetMaxFailures = 5
)

// PasswordResetUseCase issues and redeems single-use 6-digit reset codes.
type PasswordResetUseCase interface {
	// Request sends a code to the user identified by email or phone.
	Request(ctx context.Context, identifier string, lang model.Language) error
	// Verify checks a code without consuming it.
	Verify(ctx context.Context, identifier, code string) error
	// Reset consumes the code and sets a new password.
	Reset(ctx context.Context, identifier, code, newPassword string) error
}

type passwordResetUC struct {
	users    repository.UserRepository
	codes    repository.ResetCodeStore
	limiter  repository.RateLimiter
	notifier NotificationUseCase
	ttl      time.Duration
	log      *zerolog.Logger
}

func NewPasswordResetUseCase(users repository.UserRepository, codes repository.ResetCodeStore, limiter repository.RateLimiter, notifier NotificationUseCase, ttl time.Duration, logger *zerolog.Logger) *passwordResetUC {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &passwordResetUC{users: users, codes: codes, limiter: limiter, notifier: notifier, ttl: ttl, log: logger}
}

func newResetCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (u *passwordResetUC) Request(ctx context.Context, identifier string, lang model.Language) error {
	defer logging.TraceDuration(u.log, "PasswordResetUC.Request")()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return fmt.Errorf("%w: email or phone required", domain.ErrInvalidArgument)
	}
	if err := u.throttle(ctx, "rate_limit:reset:"+strings.ToLower(identifier), resetRequestLimit, resetRequestWindow); err != nil {
		return err
	}
	user, err := u.users.FindByEmailOrPhone(ctx, repository.NoTX, identifier)
	if err != nil {
		return err
	}
	code, err := newResetCode()
	if err != nil {
		return err
	}
	if err := u.codes.Put(ctx, user.ID, code, u.ttl); err != nil {
		return err
	}
	u.notifier.NotifyResetCode(ctx, user, code, u.ttl, lang)
	return nil
}

// throttle applies limit per key. A limiter outage is logged and lets the call through.
func (u *passwordResetUC) throttle(ctx context.Context, key string, limit int, window time.Duration) error {
	if u.limiter == nil {
		return nil
	}
	ok, err := u.limiter.Allow(ctx, key, limit, window)
	if err != nil {
		u.log.Warn().Err(err).Msg("rate limiter unavailable")
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (u *passwordResetUC) check(ctx context.Context, identifier, code string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if err := u.throttle(ctx, "rate_limit:reset_check:"+strings.ToLower(identifier), resetCheckLimit, resetCheckWindow); err != nil {
		return nil, err
	}
	user, err := u.users.FindByEmailOrPhone(ctx, repository.NoTX, identifier)
	if err != nil {
		return nil, err
	}
	stored, err := u.codes.Get(ctx, user.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidResetCode
	}
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(strings.TrimSpace(code))) != 1 {
		u.recordFailure(ctx, user.ID)
		return nil, domain.ErrInvalidResetCode
	}
	return user, nil
}

func (u *passwordResetUC) recordFailure(ctx context.Context, userID string) {
	n, err := u.codes.RecordFailure(ctx, userID, u.ttl)
	if err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("failed to record reset code failure")
		return
	}
	if n < resetMaxFailures {
		return
	}
	u.log.Warn().Str("user_id", userID).Int("failures", n).Msg("reset code burned after repeated failures")
	if err := u.codes.Delete(ctx, userID); err != nil {
		u.log.Warn().Err(err).Str("user_id", userID).Msg("failed to delete reset code")
	}
}

func (u *passwordResetUC) Verify(ctx context.Context, identifier, code string) error {
	defer logging.TraceDuration(u.log, "PasswordResetUC.Verify")()
	_, err := u.check(ctx, identifier, code)
	return err
}

func (u *passwordResetUC) Reset(ctx context.Context, identifier, code, newPassword string) error {
	defer logging.TraceDuration(u.log, "PasswordResetUC.Reset")()

	user, err := u.check(ctx, identifier, code)
	if err != nil {
		return err
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := u.users.UpdatePassword(ctx, repository.NoTX, user.ID, hash); err != nil {
		return err
	}
	if err := u.codes.Delete(ctx, user.ID); err != nil {
		u.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to delete used reset code")
	}
	return nil
}
