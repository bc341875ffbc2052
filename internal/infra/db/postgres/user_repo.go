package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/repository"
)

var _ repository.UserRepository = (*userRepo)(nil)

type userRepo struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) *userRepo {
	return &userRepo{pool: pool}
}

const userColumns = `id, names, email, phone_number, password_hash, country, city, address, birth_date, is_subscribed, allowed_to_download_gazette, created_at, updated_at`

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(&u.ID, &u.Names, &u.Email, &u.PhoneNumber, &u.PasswordHash, &u.Country, &u.City, &u.Address, &u.BirthDate, &u.IsSubscribed, &u.AllowedToDownloadGazette, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, mapScanErr(err)
	}
	return u, nil
}

func (r *userRepo) Create(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
INSERT INTO users (` + userColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13);`
	_, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Names, u.Email, u.PhoneNumber, u.PasswordHash, u.Country, u.City, u.Address, u.BirthDate, u.IsSubscribed, u.AllowedToDownloadGazette, u.CreatedAt, u.UpdatedAt)
	return mapWriteErr(err)
}

// Update writes profile fields only; password and entitlement flags have their own methods.
func (r *userRepo) Update(ctx context.Context, tx repository.Tx, u *model.User) error {
	const q = `
UPDATE users SET names=$2, email=$3, phone_number=$4, country=$5, city=$6, address=$7, birth_date=$8, updated_at=NOW()
 WHERE id=$1;`
	cmd, err := execSQL(ctx, r.pool, tx, q, u.ID, u.Names, u.Email, u.PhoneNumber, u.Country, u.City, u.Address, u.BirthDate)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	q := forUpdate(`SELECT `+userColumns+` FROM users WHERE id=$1`, tx)
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.User, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, domain.ErrNotFound
	}
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE LOWER(email)=$1 LIMIT 1`, email)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) FindByPhone(ctx context.Context, tx repository.Tx, phone string) (*model.User, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+userColumns+` FROM users WHERE phone_number=$1 LIMIT 1`, strings.TrimSpace(phone))
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) FindByEmailOrPhone(ctx context.Context, tx repository.Tx, identifier string) (*model.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, domain.ErrNotFound
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE (email <> '' AND LOWER(email)=LOWER($1)) OR phone_number=$1 LIMIT 1`
	row, err := pickRow(ctx, r.pool, tx, q, identifier)
	if err != nil {
		return nil, err
	}
	return scanUser(row)
}

func (r *userRepo) UpdatePassword(ctx context.Context, tx repository.Tx, id, passwordHash string) error {
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1;`, id, passwordHash)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *userRepo) SetSubscribed(ctx context.Context, tx repository.Tx, id string, subscribed bool) error {
	cmd, err := execSQL(ctx, r.pool, tx, `UPDATE users SET is_subscribed=$2, updated_at=NOW() WHERE id=$1;`, id, subscribed)
	if err != nil {
		return mapWriteErr(err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AllowGazetteDownload sets the gazette flag and reports whether it was previously unset.
func (r *userRepo) AllowGazetteDownload(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
UPDATE users SET allowed_to_download_gazette=TRUE, updated_at=NOW()
 WHERE id=$1 AND allowed_to_download_gazette=FALSE;`
	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, mapWriteErr(err)
	}
	if cmd.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := r.FindByID(ctx, tx, id); err != nil {
		return false, err
	}
	return false, nil
}
