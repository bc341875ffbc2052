package repository

import (
	"context"

	"umuhanda-backend/internal/domain/model"
)

// -----------------------------
// Users
// -----------------------------

type UserRepository interface {
	Create(ctx context.Context, tx Tx, u *model.User) error
	Update(ctx context.Context, tx Tx, u *model.User) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.User, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.User, error)
	FindByPhone(ctx context.Context, tx Tx, phone string) (*model.User, error)
	// FindByEmailOrPhone resolves a login identifier.
	FindByEmailOrPhone(ctx context.Context, tx Tx, identifier string) (*model.User, error)
	UpdatePassword(ctx context.Context, tx Tx, id, passwordHash string) error
	SetSubscribed(ctx context.Context, tx Tx, id string, subscribed bool) error
	AllowGazetteDownload(ctx context.Context, tx Tx, id string) (changed bool, err error)
}
