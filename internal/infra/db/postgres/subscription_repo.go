package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

// price travels as text so decimal precision survives the round trip.
const subscriptionColumns = `id, name, price::text, exam_attempts_limit, validity_days, created_at`

func scanSubscription(row pgx.Row) (*model.Subscription, error) {
	s := &model.Subscription{}
	var price string
	if err := row.Scan(&s.ID, &s.Name, &price, &s.ExamAttemptsLimit, &s.ValidityDays, &s.CreatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	s.Price = d
	return s, nil
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (id, name, price, exam_attempts_limit, validity_days, created_at)
VALUES ($1,$2,$3::numeric,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET name=$2, price=$3::numeric, exam_attempts_limit=$4, validity_days=$5;`
	_, err := execSQL(ctx, r.pool, tx, q, s.ID, s.Name, s.Price.String(), s.ExamAttemptsLimit, s.ValidityDays, s.CreatedAt)
	return mapWriteErr(err)
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id=$1`, id)
	if err != nil {
		return nil, err
	}
	return scanSubscription(row)
}

func (r *subscriptionRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Subscription, error) {
	rows, err := queryRows(ctx, r.pool, tx, `SELECT `+subscriptionColumns+` FROM subscriptions ORDER BY price ASC, name ASC`)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
