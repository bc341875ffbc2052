package repository

import (
	"context"
	"time"

	"umuhanda-backend/internal/domain/model"
)

// -----------------------------
// Payment transactions
// -----------------------------

type PaymentRepository interface {
	Save(ctx context.Context, tx Tx, p *model.PaymentTransaction) error
	// Record inserts p unless the transaction id is already stored and
	// reports whether it did.
	Record(ctx context.Context, tx Tx, p *model.PaymentTransaction) (bool, error)
	FindByTransactionID(ctx context.Context, tx Tx, transactionID string) (*model.PaymentTransaction, error)
	FindByInvoiceNumber(ctx context.Context, tx Tx, invoiceNumber string) (*model.PaymentTransaction, error)
	// UpdateStatusIfOpen moves a transaction to status only from one of the
	// given states and reports whether a row changed.
	UpdateStatusIfOpen(ctx context.Context, tx Tx, transactionID string, status model.PaymentStatus, from []model.PaymentStatus, paidAt *time.Time) (bool, error)
	ListInitiatedOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error)
}

// ResetCodeStore keeps single-use password reset codes with a TTL.
// Put clears the failure count of the previous code.
type ResetCodeStore interface {
	Put(ctx context.Context, userID, code string, ttl time.Duration) error
	Get(ctx context.Context, userID string) (string, error)
	Delete(ctx context.Context, userID string) error
	// RecordFailure counts a wrong guess against the current code and returns the total.
	RecordFailure(ctx context.Context, userID string, ttl time.Duration) (int, error)
}

// RateLimiter counts events per key inside a fixed window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Locker is a best-effort distributed mutex used to keep periodic jobs
// single-flight across replicas.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, err error)
	Unlock(ctx context.Context, key, token string) error
}
