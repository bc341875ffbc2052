package usecase

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/repository"
	"umuhanda-backend/internal/infra/logging"
	"umuhanda-backend/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

type SubscriptionUseCase interface {
	Create(ctx context.Context, name string, price decimal.Decimal, attempts, validityDays int) (*model.Subscription, error)
	List(ctx context.Context) ([]*model.Subscription, error)
	Get(ctx context.Context, id string) (*model.Subscription, error)

	ListGrants(ctx context.Context, userID string) ([]*model.UserSubscription, error)
	ListActiveGrants(ctx context.Context, userID string) ([]*model.UserSubscription, error)
	// ConsumeAttempt uses one exam attempt of a grant owned by userID.
	ConsumeAttempt(ctx context.Context, userID, grantID string) (*model.UserSubscription, error)
	// ExpireDue marks lapsed grants expired and clears the subscribed flag of
	// users left without an active grant. It returns the number of users touched.
	ExpireDue(ctx context.Context) (int, error)

	// CreateGrant activates a subscription for a user without a payment.
	CreateGrant(ctx context.Context, userID, subscriptionID string, lang model.Language) (*model.UserSubscription, error)
	// ExtendGrant adds the subscription's validity period to a grant and reactivates it.
	ExtendGrant(ctx context.Context, grantID string) (*model.UserSubscription, error)
}

type subscriptionUC struct {
	subs   repository.SubscriptionRepository
	grants repository.GrantRepository
	users  repository.UserRepository
	tm     repository.TransactionManager
	now    func() time.Time
	log    *zerolog.Logger
}

func NewSubscriptionUseCase(subs repository.SubscriptionRepository, grants repository.GrantRepository, users repository.UserRepository, tm repository.TransactionManager, logger *zerolog.Logger) *subscriptionUC {
	return &subscriptionUC{subs: subs, grants: grants, users: users, tm: tm, now: time.Now, log: logger}
}

func (u *subscriptionUC) Create(ctx context.Context, name string, price decimal.Decimal, attempts, validityDays int) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Create")()
	s, err := model.NewSubscription(name, price, attempts, validityDays)
	if err != nil {
		return nil, err
	}
	if err := u.subs.Save(ctx, repository.NoTX, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (u *subscriptionUC) List(ctx context.Context) ([]*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.List")()
	return u.subs.ListAll(ctx, repository.NoTX)
}

func (u *subscriptionUC) Get(ctx context.Context, id string) (*model.Subscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.Get")()
	return u.subs.FindByID(ctx, repository.NoTX, id)
}

func (u *subscriptionUC) ListGrants(ctx context.Context, userID string) ([]*model.UserSubscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ListGrants")()
	return u.grants.ListByUser(ctx, repository.NoTX, userID)
}

func (u *subscriptionUC) ListActiveGrants(ctx context.Context, userID string) ([]*model.UserSubscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ListActiveGrants")()
	return u.grants.ListActiveByUser(ctx, repository.NoTX, userID, u.now())
}

func (u *subscriptionUC) ConsumeAttempt(ctx context.Context, userID, grantID string) (*model.UserSubscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ConsumeAttempt")()

	var out *model.UserSubscription
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		g, err := u.grants.FindByID(ctx, tx, grantID)
		if err != nil {
			return err
		}
		if g.UserID != userID {
			return domain.ErrForbidden
		}
		if !g.IsActive(u.now()) {
			return domain.ErrNoAttemptsLeft
		}
		out, err = u.grants.DecrementAttempts(ctx, tx, grantID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (u *subscriptionUC) ExpireDue(ctx context.Context) (int, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ExpireDue")()

	now := u.now()
	touched := 0
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		userIDs, err := u.grants.ExpireDue(ctx, tx, now)
		if err != nil {
			return err
		}
		for _, id := range userIDs {
			n, err := u.grants.CountActiveByUser(ctx, tx, id, now)
			if err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			if err := u.users.SetSubscribed(ctx, tx, id, false); err != nil {
				return err
			}
		}
		touched = len(userIDs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if touched > 0 {
		metrics.IncGrantsExpired(touched)
		u.log.Info().Int("users", touched).Msg("expired subscription grants")
	}
	return touched, nil
}

func (u *subscriptionUC) CreateGrant(ctx context.Context, userID, subscriptionID string, lang model.Language) (*model.UserSubscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.CreateGrant")()

	var out *model.UserSubscription
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if _, err := u.users.FindByID(ctx, tx, userID); err != nil {
			return err
		}
		sub, err := u.subs.FindByID(ctx, tx, subscriptionID)
		if err != nil {
			return err
		}
		g, err := model.NewManualGrant(userID, sub, lang, u.now())
		if err != nil {
			return err
		}
		if _, err := u.grants.Create(ctx, tx, g); err != nil {
			return err
		}
		if err := u.users.SetSubscribed(ctx, tx, userID, true); err != nil {
			return err
		}
		g.Subscription = sub
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncGrantCreated(string(lang))
	u.log.Info().Str("user_id", userID).Str("grant_id", out.ID).Msg("manual grant created")
	return out, nil
}

func (u *subscriptionUC) ExtendGrant(ctx context.Context, grantID string) (*model.UserSubscription, error) {
	defer logging.TraceDuration(u.log, "SubscriptionUC.ExtendGrant")()

	var out *model.UserSubscription
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		g, err := u.grants.FindByID(ctx, tx, grantID)
		if err != nil {
			return err
		}
		sub := g.Subscription
		if sub.IsZero() {
			if sub, err = u.subs.FindByID(ctx, tx, g.SubscriptionID); err != nil {
				return err
			}
		}
		if err := g.Extend(sub.ValidityDays, u.now()); err != nil {
			return err
		}
		if err := u.grants.Extend(ctx, tx, g.ID, g.ExpiresAt); err != nil {
			return err
		}
		if err := u.users.SetSubscribed(ctx, tx, g.UserID, true); err != nil {
			return err
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().Str("grant_id", grantID).Time("expires_at", out.ExpiresAt).Msg("grant extended")
	return out, nil
}
