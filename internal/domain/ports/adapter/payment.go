package adapter

import (
	"context"
	"time"

	"umuhanda-backend/internal/domain/model"
)

// PaymentItem is one invoice line.
type PaymentItem struct {
	Code       string
	Quantity   int
	UnitAmount int64
}

// CreateInvoiceRequest carries everything the gateway needs to bill a payer.
type CreateInvoiceRequest struct {
	TransactionID string
	Customer      model.Customer
	Items         []PaymentItem
	Description   string
	ExpiryAt      time.Time
	Language      model.Language
}

// CreatedInvoice is what the gateway returns on invoice creation.
type CreatedInvoice struct {
	InvoiceNumber  string
	PaymentLinkURL string
}

// InvoiceGateway is the port for the external payment provider. Calls are
// never retried; a failure is terminal for that attempt.
type InvoiceGateway interface {
	Name() string
	// Authenticate returns a bearer token, reusing a cached one until near expiry.
	Authenticate(ctx context.Context) (string, error)
	CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*CreatedInvoice, error)
	// GetInvoice accepts an invoice number or a transaction id.
	GetInvoice(ctx context.Context, ref string) (*model.Invoice, error)
}
