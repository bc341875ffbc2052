package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/repository"
)

var _ repository.GrantRepository = (*grantRepo)(nil)

type grantRepo struct{ pool *pgxpool.Pool }

func NewGrantRepo(pool *pgxpool.Pool) *grantRepo {
	return &grantRepo{pool: pool}
}

const grantSelect = `
SELECT g.id, g.user_id, g.subscription_id, g.transaction_id, g.start_date, g.expires_at, g.language, g.attempts_left, g.status,
       s.name, s.price::text, s.exam_attempts_limit, s.validity_days, s.created_at
  FROM user_subscriptions g
  JOIN subscriptions s ON s.id = g.subscription_id`

func scanGrant(row pgx.Row) (*model.UserSubscription, error) {
	g := &model.UserSubscription{}
	s := &model.Subscription{}
	var price string
	if err := row.Scan(&g.ID, &g.UserID, &g.SubscriptionID, &g.TransactionID, &g.StartDate, &g.ExpiresAt, &g.Language, &g.AttemptsLeft, &g.Status,
		&s.Name, &price, &s.ExamAttemptsLimit, &s.ValidityDays, &s.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	s.ID = g.SubscriptionID
	s.Price = d
	g.Subscription = s
	return g, nil
}

func collectGrants(rows pgx.Rows) ([]*model.UserSubscription, error) {
	defer rows.Close()
	var out []*model.UserSubscription
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// Create relies on the unique transaction_id index; a conflicting insert is
// skipped and reported as created=false.
func (r *grantRepo) Create(ctx context.Context, tx repository.Tx, g *model.UserSubscription) (bool, error) {
	const q = `
INSERT INTO user_subscriptions (id, user_id, subscription_id, transaction_id, start_date, expires_at, language, attempts_left, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (transaction_id) WHERE transaction_id IS NOT NULL DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, g.ID, g.UserID, g.SubscriptionID, g.TransactionID, g.StartDate, g.ExpiresAt, string(g.Language), g.AttemptsLeft, string(g.Status))
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *grantRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.UserSubscription, error) {
	row, err := pickRow(ctx, r.pool, tx, grantSelect+` WHERE g.transaction_id=$1`, transactionID)
	if err != nil {
		return nil, err
	}
	return scanGrant(row)
}

func (r *grantRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	row, err := pickRow(ctx, r.pool, tx, grantSelect+` WHERE g.id=$1`, id)
	if err != nil {
		return nil, err
	}
	return scanGrant(row)
}

func (r *grantRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.UserSubscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, grantSelect+` WHERE g.user_id=$1 ORDER BY g.start_date DESC`, userID)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return collectGrants(rows)
}

func (r *grantRepo) ListActiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) ([]*model.UserSubscription, error) {
	const where = ` WHERE g.user_id=$1 AND g.status='active' AND g.expires_at > $2 ORDER BY s.price DESC, g.expires_at DESC`
	rows, err := queryRows(ctx, r.pool, tx, grantSelect+where, userID, now)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	return collectGrants(rows)
}

func (r *grantRepo) DecrementAttempts(ctx context.Context, tx repository.Tx, id string) (*model.UserSubscription, error) {
	const q = `
UPDATE user_subscriptions SET attempts_left = attempts_left - 1
 WHERE id=$1 AND attempts_left > 0;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		if _, err := r.FindByID(ctx, tx, id); err != nil {
			return nil, err
		}
		return nil, domain.ErrNoAttemptsLeft
	}
	return r.FindByID(ctx, tx, id)
}

func (r *grantRepo) ExpireDue(ctx context.Context, tx repository.Tx, now time.Time) ([]string, error) {
	const q = `
UPDATE user_subscriptions SET status='expired'
 WHERE status='active' AND expires_at <= $1
RETURNING user_id;`
	rows, err := queryRows(ctx, r.pool, tx, q, now)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	seen := map[string]struct{}{}
	var out []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if _, ok := seen[uid]; ok {
			continue
		}
		seen[uid] = struct{}{}
		out = append(out, uid)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *grantRepo) CountActiveByUser(ctx context.Context, tx repository.Tx, userID string, now time.Time) (int, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT COUNT(*) FROM user_subscriptions WHERE user_id=$1 AND status='active' AND expires_at > $2`, userID, now)
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, mapScanErr(err)
	}
	return n, nil
}

func (r *grantRepo) Extend(ctx context.Context, tx repository.Tx, id string, expiresAt time.Time) error {
	const q = `UPDATE user_subscriptions SET expires_at=$2, status='active' WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id, expiresAt)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
