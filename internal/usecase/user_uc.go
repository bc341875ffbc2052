package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/repository"
	"umuhanda-backend/internal/infra/logging"
)

// Compile-time check
var _ UserUseCase = (*userUC)(nil)

// TokenIssuer mints session tokens for authenticated users.
type TokenIssuer interface {
	Issue(userID, email string) (string, error)
}

type RegisterRequest struct {
	Names       string `json:"names"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	Language    string `json:"language"`
}

type ProfileUpdate struct {
	Names       *string    `json:"names"`
	Email       *string    `json:"email"`
	PhoneNumber *string    `json:"phone_number"`
	Country     *string    `json:"country"`
	City        *string    `json:"city"`
	Address     *string    `json:"address"`
	BirthDate   *time.Time `json:"birth_date"`
}

// UserInfo is a user with their grants; ActiveSubscription is the most
// expensive grant still active.
type UserInfo struct {
	User               *model.User               `json:"user"`
	Subscriptions      []*model.UserSubscription `json:"subscriptions"`
	ActiveSubscription *model.UserSubscription   `json:"activeSubscription,omitempty"`
}

type UserUseCase interface {
	Register(ctx context.Context, req RegisterRequest) (*model.User, error)
	// Login accepts an e-mail or phone number as identifier.
	Login(ctx context.Context, identifier, password string) (string, *model.User, error)
	Info(ctx context.Context, userID string) (*UserInfo, error)
	UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*model.User, error)
	ChangePassword(ctx context.Context, userID, current, next string) error
	GazetteAccess(ctx context.Context, userID string) (bool, error)
}

type userUC struct {
	users    repository.UserRepository
	grants   repository.GrantRepository
	tm       repository.TransactionManager
	tokens   TokenIssuer
	notifier NotificationUseCase
	now      func() time.Time
	log      *zerolog.Logger
}

func NewUserUseCase(users repository.UserRepository, grants repository.GrantRepository, tm repository.TransactionManager, tokens TokenIssuer, notifier NotificationUseCase, logger *zerolog.Logger) *userUC {
	return &userUC{
		users:    users,
		grants:   grants,
		tm:       tm,
		tokens:   tokens,
		notifier: notifier,
		now:      time.Now,
		log:      logger,
	}
}

const minPasswordLen = 6

func hashPassword(pw string) (string, error) {
	if len(pw) < minPasswordLen {
		return "", fmt.Errorf("%w: password must be at least %d characters", domain.ErrInvalidArgument, minPasswordLen)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (u *userUC) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Register")()

	hash, err := hashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user, err := model.NewUser(req.Names, req.Email, req.PhoneNumber, hash)
	if err != nil {
		return nil, err
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.ensureUnique(ctx, tx, user.ID, user.Email, user.PhoneNumber); err != nil {
			return err
		}
		return u.users.Create(ctx, tx, user)
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("user_id", user.ID).Msg("user registered")
	u.notifier.NotifyWelcome(ctx, user, model.NormalizeLanguage(req.Language))
	return user, nil
}

// ensureUnique fails with ErrAlreadyExists when email or phone belong to another user.
func (u *userUC) ensureUnique(ctx context.Context, tx repository.Tx, selfID, email, phone string) error {
	if email != "" {
		other, err := u.users.FindByEmail(ctx, tx, email)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if other != nil && other.ID != selfID {
			return fmt.Errorf("%w: email already registered", domain.ErrAlreadyExists)
		}
	}
	if phone != "" {
		other, err := u.users.FindByPhone(ctx, tx, phone)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if other != nil && other.ID != selfID {
			return fmt.Errorf("%w: phone number already registered", domain.ErrAlreadyExists)
		}
	}
	return nil
}

func (u *userUC) Login(ctx context.Context, identifier, password string) (string, *model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.Login")()

	user, err := u.users.FindByEmailOrPhone(ctx, repository.NoTX, strings.TrimSpace(identifier))
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, domain.ErrInvalidCredentials
	}
	token, err := u.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (u *userUC) Info(ctx context.Context, userID string) (*UserInfo, error) {
	defer logging.TraceDuration(u.log, "UserUC.Info")()

	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	grants, err := u.grants.ListByUser(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	info := &UserInfo{User: user, Subscriptions: grants}
	now := u.now()
	for _, g := range grants {
		if !g.IsActive(now) || g.Subscription == nil {
			continue
		}
		if info.ActiveSubscription == nil || g.Subscription.Price.GreaterThan(info.ActiveSubscription.Subscription.Price) {
			info.ActiveSubscription = g
		}
	}
	return info, nil
}

func (u *userUC) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*model.User, error) {
	defer logging.TraceDuration(u.log, "UserUC.UpdateProfile")()

	var out *model.User
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		user, err := u.users.FindByID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if upd.Names != nil {
			if strings.TrimSpace(*upd.Names) == "" {
				return fmt.Errorf("%w: names cannot be empty", domain.ErrInvalidArgument)
			}
			user.Names = strings.TrimSpace(*upd.Names)
		}
		if upd.Email != nil {
			email := model.NormalizeEmail(*upd.Email)
			if email != "" && !strings.Contains(email, "@") {
				return fmt.Errorf("%w: invalid email", domain.ErrInvalidArgument)
			}
			user.Email = email
		}
		if upd.PhoneNumber != nil {
			phone := strings.TrimSpace(*upd.PhoneNumber)
			if phone == "" {
				return fmt.Errorf("%w: phone number cannot be empty", domain.ErrInvalidArgument)
			}
			user.PhoneNumber = phone
		}
		if upd.Country != nil {
			user.Country = strings.TrimSpace(*upd.Country)
		}
		if upd.City != nil {
			user.City = strings.TrimSpace(*upd.City)
		}
		if upd.Address != nil {
			user.Address = strings.TrimSpace(*upd.Address)
		}
		if upd.BirthDate != nil {
			user.BirthDate = upd.BirthDate
		}
		if err := u.ensureUnique(ctx, tx, user.ID, user.Email, user.PhoneNumber); err != nil {
			return err
		}
		if err := u.users.Update(ctx, tx, user); err != nil {
			return err
		}
		out = user
		return nil
	})
	return out, err
}

func (u *userUC) ChangePassword(ctx context.Context, userID, current, next string) error {
	defer logging.TraceDuration(u.log, "UserUC.ChangePassword")()

	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return domain.ErrInvalidCredentials
	}
	hash, err := hashPassword(next)
	if err != nil {
		return err
	}
	return u.users.UpdatePassword(ctx, repository.NoTX, userID, hash)
}

func (u *userUC) GazetteAccess(ctx context.Context, userID string) (bool, error) {
	defer logging.TraceDuration(u.log, "UserUC.GazetteAccess")()
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return false, err
	}
	return user.AllowedToDownloadGazette, nil
}
