package model

import (
	"strings"
	"time"
)

// TransactionType says what a payment buys.
type TransactionType string

const (
	TransactionSubscription TransactionType = "subscription"
	TransactionGazette      TransactionType = "gazette"
)

func (t TransactionType) Valid() bool {
	return t == TransactionSubscription || t == TransactionGazette
}

// Language is the two-letter upper-case code used for invoices and messages.
type Language string

const (
	LanguageEN Language = "EN"
	LanguageFR Language = "FR"
	LanguageRW Language = "RW"
)

// NormalizeLanguage keeps EN and FR and maps everything else to RW.
func NormalizeLanguage(s string) Language {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) > 2 {
		s = s[:2]
	}
	switch Language(s) {
	case LanguageEN, LanguageFR:
		return Language(s)
	default:
		return LanguageRW
	}
}

// PaymentStatus is the lifecycle of a payment transaction: initiated, then
// paid or failed.
type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// PaymentTransaction is persisted when an invoice is created so the webhook
// only has to look context up by transaction id.
type PaymentTransaction struct {
	TransactionID  string          `json:"transaction_id"`
	UserID         string          `json:"user_id"`
	Type           TransactionType `json:"type"`
	SubscriptionID string          `json:"subscription_id,omitempty"`
	Language       Language        `json:"language"`
	InvoiceNumber  string          `json:"invoice_number"`
	Amount         int64           `json:"amount"`
	Currency       string          `json:"currency"`
	Status         PaymentStatus   `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	PaidAt         *time.Time      `json:"paid_at,omitempty"`
}

// InvoiceStatus is the gateway-side status of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusNew     InvoiceStatus = "NEW"
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
	InvoiceStatusFailed  InvoiceStatus = "FAILED"
	InvoiceStatusExpired InvoiceStatus = "EXPIRED"
)

// Customer is the payer identity recorded on an invoice.
type Customer struct {
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber"`
	FullName    string `json:"fullName"`
}

// Invoice is owned by the payment gateway; this service only reads it.
type Invoice struct {
	InvoiceNumber  string        `json:"invoiceNumber"`
	TransactionID  string        `json:"transactionId"`
	PaymentLinkURL string        `json:"paymentLinkUrl"`
	Status         InvoiceStatus `json:"paymentStatus"`
	Amount         int64         `json:"amount"`
	Currency       string        `json:"currency"`
	Customer       Customer      `json:"customer"`
	ExpiryAt       *time.Time    `json:"expiryAt,omitempty"`
}

// IsPaid treats the legacy COMPLETED status as paid.
func (i *Invoice) IsPaid() bool {
	s := InvoiceStatus(strings.ToUpper(string(i.Status)))
	return s == InvoiceStatusPaid || s == "COMPLETED"
}

// CallbackStatus is the normalized webhook status.
type CallbackStatus string

const (
	CallbackPaid    CallbackStatus = "PAID"
	CallbackFailed  CallbackStatus = "FAILED"
	CallbackUnknown CallbackStatus = "UNKNOWN"
)

// CallbackEvent is the canonical form of a gateway webhook delivery.
type CallbackEvent struct {
	TransactionID string
	InvoiceNumber string
	Status        CallbackStatus
}

// CorrelationKey prefers the invoice number, which the gateway can always resolve.
func (e CallbackEvent) CorrelationKey() string {
	if e.InvoiceNumber != "" {
		return e.InvoiceNumber
	}
	return e.TransactionID
}
