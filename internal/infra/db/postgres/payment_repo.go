package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/repository"
)

var _ repository.PaymentRepository = (*paymentRepo)(nil)

type paymentRepo struct{ pool *pgxpool.Pool }

func NewPaymentRepo(pool *pgxpool.Pool) *paymentRepo {
	return &paymentRepo{pool: pool}
}

const paymentColumns = `transaction_id, user_id, type, COALESCE(subscription_id, ''), language, invoice_number, amount, currency, status, created_at, updated_at, paid_at`

func scanPayment(row pgx.Row) (*model.PaymentTransaction, error) {
	p := &model.PaymentTransaction{}
	if err := row.Scan(&p.TransactionID, &p.UserID, &p.Type, &p.SubscriptionID, &p.Language, &p.InvoiceNumber, &p.Amount, &p.Currency, &p.Status, &p.CreatedAt, &p.UpdatedAt, &p.PaidAt); err != nil {
		return nil, mapScanErr(err)
	}
	return p, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *paymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) error {
	const q = `
INSERT INTO payment_transactions (transaction_id, user_id, type, subscription_id, language, invoice_number, amount, currency, status, created_at, updated_at, paid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (transaction_id) DO UPDATE SET
  invoice_number=$6, amount=$7, currency=$8, status=$9, updated_at=$11, paid_at=$12;`
	_, err := execSQL(ctx, r.pool, tx, q, p.TransactionID, p.UserID, string(p.Type), nullIfEmpty(p.SubscriptionID), string(p.Language), p.InvoiceNumber, p.Amount, p.Currency, string(p.Status), p.CreatedAt, p.UpdatedAt, p.PaidAt)
	return mapWriteErr(err)
}

func (r *paymentRepo) Record(ctx context.Context, tx repository.Tx, p *model.PaymentTransaction) (bool, error) {
	const q = `
INSERT INTO payment_transactions (transaction_id, user_id, type, subscription_id, language, invoice_number, amount, currency, status, created_at, updated_at, paid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (transaction_id) DO NOTHING;`
	cmd, err := execSQL(ctx, r.pool, tx, q, p.TransactionID, p.UserID, string(p.Type), nullIfEmpty(p.SubscriptionID), string(p.Language), p.InvoiceNumber, p.Amount, p.Currency, string(p.Status), p.CreatedAt, p.UpdatedAt, p.PaidAt)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *paymentRepo) FindByTransactionID(ctx context.Context, tx repository.Tx, transactionID string) (*model.PaymentTransaction, error) {
	q := forUpdate(`SELECT `+paymentColumns+` FROM payment_transactions WHERE transaction_id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, transactionID)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

func (r *paymentRepo) FindByInvoiceNumber(ctx context.Context, tx repository.Tx, invoiceNumber string) (*model.PaymentTransaction, error) {
	if invoiceNumber == "" {
		return nil, domain.ErrNotFound
	}
	q := forUpdate(`SELECT `+paymentColumns+` FROM payment_transactions WHERE invoice_number=$1 LIMIT 1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, invoiceNumber)
	if err != nil {
		return nil, err
	}
	return scanPayment(row)
}

// UpdateStatusIfOpen atomically updates status only when the current status is one of from.
func (r *paymentRepo) UpdateStatusIfOpen(
	ctx context.Context, tx repository.Tx, transactionID string, status model.PaymentStatus, from []model.PaymentStatus, paidAt *time.Time,
) (bool, error) {
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	const q = `
UPDATE payment_transactions
   SET status = $2,
       paid_at = COALESCE($3, paid_at),
       updated_at = NOW()
 WHERE transaction_id = $1
   AND status = ANY($4)`
	cmd, err := execSQL(ctx, r.pool, tx, q, transactionID, string(status), paidAt, states)
	if err != nil {
		return false, mapWriteErr(err)
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *paymentRepo) ListInitiatedOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.PaymentTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE status='initiated' AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		return nil, mapWriteErr(err)
	}
	defer rows.Close()

	var out []*model.PaymentTransaction
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
