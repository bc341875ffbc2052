package model

import (
	"crypto/rand"
	"strings"
	"time"

	"umuhanda-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

// Subscription is a catalog entry. IDs are ULIDs so they never contain the
// transaction identifier delimiter.
type Subscription struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	ExamAttemptsLimit int             `json:"examAttemptsLimit"`
	ValidityDays      int             `json:"validityDays"`
	CreatedAt         time.Time       `json:"created_at"`
}

func (s *Subscription) IsZero() bool { return s == nil || s.ID == "" }

// NewSubscription validates and constructs a catalog entry.
func NewSubscription(name string, price decimal.Decimal, attempts, validityDays int) (*Subscription, error) {
	name = strings.TrimSpace(name)
	if name == "" || !price.IsPositive() || attempts < 0 || validityDays <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	return &Subscription{
		ID:                ulid.MustNew(ulid.Now(), rand.Reader).String(),
		Name:              name,
		Price:             price,
		ExamAttemptsLimit: attempts,
		ValidityDays:      validityDays,
		CreatedAt:         time.Now(),
	}, nil
}

type GrantStatus string

const (
	GrantStatusActive  GrantStatus = "active"
	GrantStatusExpired GrantStatus = "expired"
)

// UserSubscription is the grant record activating a subscription for a user.
// TransactionID is unique across grants; nil only for grants made outside the
// payment flow.
type UserSubscription struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	SubscriptionID string        `json:"subscription_id"`
	TransactionID  *string       `json:"transaction_id,omitempty"`
	StartDate      time.Time     `json:"start_date"`
	ExpiresAt      time.Time     `json:"expires_at"`
	Language       Language      `json:"language"`
	AttemptsLeft   int           `json:"attempts_left"`
	Status         GrantStatus   `json:"status"`
	Subscription   *Subscription `json:"subscription,omitempty"`
}

// NewUserSubscription builds the grant for a paid subscription.
func NewUserSubscription(userID string, sub *Subscription, transactionID string, lang Language, now time.Time) (*UserSubscription, error) {
	if transactionID == "" {
		return nil, domain.ErrInvalidArgument
	}
	g, err := NewManualGrant(userID, sub, lang, now)
	if err != nil {
		return nil, err
	}
	tx := transactionID
	g.TransactionID = &tx
	return g, nil
}

// NewManualGrant builds a grant that is not backed by a payment.
func NewManualGrant(userID string, sub *Subscription, lang Language, now time.Time) (*UserSubscription, error) {
	if userID == "" || sub.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	return &UserSubscription{
		ID:             uuid.NewString(),
		UserID:         userID,
		SubscriptionID: sub.ID,
		StartDate:      now,
		ExpiresAt:      now.Add(validity(sub.ValidityDays)),
		Language:       lang,
		AttemptsLeft:   sub.ExamAttemptsLimit,
		Status:         GrantStatusActive,
	}, nil
}

func validity(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

// Extend pushes the expiry out by days and reactivates the grant. A lapsed
// grant is extended from now rather than from its old expiry.
func (g *UserSubscription) Extend(days int, now time.Time) error {
	if days <= 0 {
		return domain.ErrInvalidArgument
	}
	base := g.ExpiresAt
	if base.Before(now) {
		base = now
	}
	g.ExpiresAt = base.Add(validity(days))
	g.Status = GrantStatusActive
	return nil
}

// IsActive reports whether the grant can still be used at t.
func (g *UserSubscription) IsActive(t time.Time) bool {
	return g != nil && g.Status == GrantStatusActive && t.Before(g.ExpiresAt)
}
