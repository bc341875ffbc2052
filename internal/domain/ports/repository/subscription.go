package repository

import (
	"context"
	"time"

	"umuhanda-backend/internal/domain/model"
)

// SubscriptionRepository is the port for the subscription catalog.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Subscription, error)
}

// GrantRepository is the port for user subscription grants.
type GrantRepository interface {
	// Create inserts g unless a grant with the same transaction id exists.
	// created is false when the insert was skipped for that reason.
	Create(ctx context.Context, tx Tx, g *model.UserSubscription) (created bool, err error)
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.UserSubscription, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.UserSubscription, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.UserSubscription, error)
	ListActiveByUser(ctx context.Context, tx Tx, userID string, now time.Time) ([]*model.UserSubscription, error)
	// DecrementAttempts consumes one attempt; domain.ErrNoAttemptsLeft when none remain.
	DecrementAttempts(ctx context.Context, tx Tx, id string) (*model.UserSubscription, error)
	// ExpireDue marks grants past their expiry and returns the affected user ids.
	ExpireDue(ctx context.Context, tx Tx, now time.Time) ([]string, error)
	CountActiveByUser(ctx context.Context, tx Tx, userID string, now time.Time) (int, error)
	// Extend sets a new expiry and marks the grant active.
	Extend(ctx context.Context, tx Tx, id string, expiresAt time.Time) error
}
