package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNoAttemptsLeft  = errors.New("no exam attempts left")

	// Accounts
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidResetCode   = errors.New("invalid or expired reset code")
	ErrRateLimited        = errors.New("too many requests")
	ErrLockNotAcquired    = errors.New("lock held by another worker")

	// Payments
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrGateway             = errors.New("payment gateway failure")
	ErrGatewayAuth         = errors.New("payment gateway authentication failed")
	ErrMalformedIdentifier = errors.New("malformed transaction identifier")
	ErrPaymentNotConfirmed = errors.New("payment not confirmed by gateway")
	ErrInvalidSignature    = errors.New("invalid webhook signature")

	// Persistence
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
