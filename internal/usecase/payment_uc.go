package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/domain/ports/adapter"
	"umuhanda-backend/internal/domain/ports/repository"
	"umuhanda-backend/internal/domain/txid"
	"umuhanda-backend/internal/infra/logging"
	"umuhanda-backend/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

type PaymentUseCase interface {
	// Initiate creates a gateway invoice for the user and records the pending transaction.
	Initiate(ctx context.Context, userID string, req InitiateRequest) (*InitiateResult, error)
	// CheckStatus returns the gateway's view of an invoice.
	CheckStatus(ctx context.Context, ref string) (*model.Invoice, error)
	// HandleCallback reconciles one webhook delivery. Safe under repeated delivery.
	HandleCallback(ctx context.Context, ev model.CallbackEvent) (*CallbackResult, error)
	// ReconcilePending re-checks initiated payments older than olderThan whose webhook never arrived.
	ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (int, error)
}

type InitiateRequest struct {
	Type           model.TransactionType `json:"type"`
	SubscriptionID string                `json:"subscriptionId"`
	Language       string                `json:"language"`
}

type InitiateResult struct {
	Success        bool   `json:"success"`
	InvoiceNumber  string `json:"invoiceNumber"`
	PaymentLinkURL string `json:"paymentLinkUrl"`
	TransactionID  string `json:"transactionId"`
}

type CallbackOutcome string

const (
	OutcomeGranted         CallbackOutcome = "granted"
	OutcomeGazetteUnlocked CallbackOutcome = "gazette_unlocked"
	OutcomeDuplicate       CallbackOutcome = "duplicate"
	OutcomeFailed          CallbackOutcome = "failed"
)

type CallbackResult struct {
	Outcome       CallbackOutcome         `json:"outcome"`
	TransactionID string                  `json:"transactionId"`
	Grant         *model.UserSubscription `json:"grant,omitempty"`
}

// PaymentOptions carries the billing settings that do not come from the catalog.
type PaymentOptions struct {
	Currency      string
	ProductCode   string
	GazettePrice  int64
	InvoiceExpiry time.Duration
}

type paymentUC struct {
	users    repository.UserRepository
	subs     repository.SubscriptionRepository
	grants   repository.GrantRepository
	payments repository.PaymentRepository
	tm       repository.TransactionManager
	gateway  adapter.InvoiceGateway
	notifier NotificationUseCase
	opts     PaymentOptions
	now      func() time.Time
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	grants repository.GrantRepository,
	payments repository.PaymentRepository,
	tm repository.TransactionManager,
	gateway adapter.InvoiceGateway,
	notifier NotificationUseCase,
	opts PaymentOptions,
	logger *zerolog.Logger,
) *paymentUC {
	if opts.InvoiceExpiry <= 0 {
		opts.InvoiceExpiry = 30 * time.Minute
	}
	if opts.Currency == "" {
		opts.Currency = "RWF"
	}
	return &paymentUC{
		users:    users,
		subs:     subs,
		grants:   grants,
		payments: payments,
		tm:       tm,
		gateway:  gateway,
		notifier: notifier,
		opts:     opts,
		now:      time.Now,
		log:      logger,
	}
}

func (u *paymentUC) Initiate(ctx context.Context, userID string, req InitiateRequest) (*InitiateResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Initiate")()

	if !req.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", domain.ErrInvalidArgument, req.Type)
	}
	user, err := u.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil {
		return nil, err
	}
	lang := model.NormalizeLanguage(req.Language)

	var (
		amount      int64
		description string
		subID       string
	)
	switch req.Type {
	case model.TransactionSubscription:
		sub, err := u.subs.FindByID(ctx, repository.NoTX, strings.TrimSpace(req.SubscriptionID))
		if err != nil {
			return nil, err
		}
		subID = sub.ID
		amount = sub.Price.Round(0).IntPart()
		description = "Subscription for " + sub.Name
	case model.TransactionGazette:
		if u.opts.GazettePrice <= 0 {
			return nil, fmt.Errorf("%w: gazette purchase is not configured", domain.ErrInvalidArgument)
		}
		amount = u.opts.GazettePrice
		description = "Gazette download"
	}

	now := u.now()
	transactionID, err := txid.Encode(req.Type, subID, string(lang), now)
	if err != nil {
		return nil, err
	}
	log := u.log.With().Str("transaction_id", transactionID).Str("user_id", user.ID).Logger()

	created, err := u.gateway.CreateInvoice(ctx, adapter.CreateInvoiceRequest{
		TransactionID: transactionID,
		Customer:      model.Customer{Email: user.Email, PhoneNumber: user.PhoneNumber, FullName: user.Names},
		Items:         []adapter.PaymentItem{{Code: u.opts.ProductCode, Quantity: 1, UnitAmount: amount}},
		Description:   description,
		ExpiryAt:      now.Add(u.opts.InvoiceExpiry),
		Language:      lang,
	})
	if err != nil {
		log.Error().Err(err).Msg("invoice creation failed")
		return nil, err
	}

	p := &model.PaymentTransaction{
		TransactionID:  transactionID,
		UserID:         user.ID,
		Type:           req.Type,
		SubscriptionID: subID,
		Language:       lang,
		InvoiceNumber:  created.InvoiceNumber,
		Amount:         amount,
		Currency:       u.opts.Currency,
		Status:         model.PaymentStatusInitiated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	// The invoice already exists; a failed save leaves the callback to decode the identifier.
	if err := u.payments.Save(ctx, repository.NoTX, p); err != nil {
		log.Error().Err(err).Str("invoice_number", created.InvoiceNumber).Msg("failed to record pending payment")
	}
	metrics.IncPayment(string(req.Type), string(model.PaymentStatusInitiated))
	log.Info().Str("invoice_number", created.InvoiceNumber).Int64("amount", amount).Msg("payment initiated")

	return &InitiateResult{
		Success:        true,
		InvoiceNumber:  created.InvoiceNumber,
		PaymentLinkURL: created.PaymentLinkURL,
		TransactionID:  transactionID,
	}, nil
}

func (u *paymentUC) CheckStatus(ctx context.Context, ref string) (*model.Invoice, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.CheckStatus")()
	return u.gateway.GetInvoice(ctx, strings.TrimSpace(ref))
}

// callbackContext is everything HandleCallback needs once the invoice is known.
type callbackContext struct {
	transactionID string
	txctx         txid.Context
	pending       *model.PaymentTransaction
	invoice       *model.Invoice
	user          *model.User
}

func (u *paymentUC) HandleCallback(ctx context.Context, ev model.CallbackEvent) (*CallbackResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.HandleCallback")()

	key := ev.CorrelationKey()
	if key == "" {
		return nil, fmt.Errorf("%w: callback without correlation key", domain.ErrInvalidArgument)
	}
	log := u.log.With().Str("invoice_number", ev.InvoiceNumber).Str("transaction_id", ev.TransactionID).Logger()

	cc, err := u.resolveCallback(ctx, ev, key)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMalformedIdentifier), errors.Is(err, domain.ErrGateway):
			log.Error().Err(err).Msg("callback cannot be reconciled")
		default:
			log.Warn().Err(err).Msg("callback rejected")
		}
		return nil, err
	}
	log = log.With().Str("transaction_id", cc.transactionID).Str("user_id", cc.user.ID).Logger()

	status := ev.Status
	if status != model.CallbackPaid {
		status = model.CallbackFailed
	}

	var res *CallbackResult
	switch {
	case status == model.CallbackFailed:
		res, err = u.applyFailure(ctx, cc)
	case !cc.invoice.IsPaid():
		err = fmt.Errorf("%w: invoice %s is %s", domain.ErrPaymentNotConfirmed, cc.invoice.InvoiceNumber, cc.invoice.Status)
	case cc.txctx.Type == model.TransactionGazette:
		res, err = u.applyGazette(ctx, cc)
	default:
		res, err = u.applySubscription(ctx, cc)
	}
	if err != nil {
		log.Error().Err(err).Msg("callback processing failed")
		return nil, err
	}

	metrics.IncCallback(string(res.Outcome))
	log.Info().Str("outcome", string(res.Outcome)).Msg("callback reconciled")
	if res.Outcome == OutcomeDuplicate {
		return res, nil
	}

	kind := NoticePaymentSucceeded
	if res.Outcome == OutcomeFailed {
		kind = NoticePaymentFailed
	} else {
		metrics.AddPaymentRevenue(cc.invoice.Currency, cc.invoice.Amount)
	}
	u.notifier.NotifyPayment(ctx, PaymentNotice{
		Kind:     kind,
		Type:     cc.txctx.Type,
		Language: cc.txctx.Language,
		Names:    cc.user.Names,
		Email:    cc.user.Email,
		Phone:    cc.user.PhoneNumber,
	})
	return res, nil
}

// resolveCallback fetches the invoice, recovers the purchase context and
// resolves the paying user from the invoice customer email.
func (u *paymentUC) resolveCallback(ctx context.Context, ev model.CallbackEvent, key string) (*callbackContext, error) {
	inv, err := u.gateway.GetInvoice(ctx, key)
	if err != nil {
		return nil, err
	}
	cc := &callbackContext{invoice: inv}

	cc.transactionID = inv.TransactionID
	if cc.transactionID == "" {
		cc.transactionID = ev.TransactionID
	}
	if cc.transactionID == "" {
		return nil, fmt.Errorf("%w: invoice %s has no transaction id", domain.ErrMalformedIdentifier, inv.InvoiceNumber)
	}

	pending, err := u.payments.FindByTransactionID(ctx, repository.NoTX, cc.transactionID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if pending != nil {
		cc.pending = pending
		cc.txctx = txid.Context{
			Type:           pending.Type,
			SubscriptionID: pending.SubscriptionID,
			Language:       pending.Language,
			Timestamp:      pending.CreatedAt,
		}
	} else {
		cc.txctx, err = txid.Decode(cc.transactionID)
		if err != nil {
			return nil, err
		}
	}

	email := model.NormalizeEmail(inv.Customer.Email)
	if email == "" {
		return nil, fmt.Errorf("%w: invoice %s has no customer email", domain.ErrInvalidArgument, inv.InvoiceNumber)
	}
	user, err := u.users.FindByEmail(ctx, repository.NoTX, email)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: invoice customer is not a registered user", domain.ErrInvalidArgument)
	}
	if err != nil {
		return nil, err
	}
	if cc.pending != nil && cc.pending.UserID != user.ID {
		u.log.Warn().Str("transaction_id", cc.transactionID).Str("initiator", cc.pending.UserID).Str("payer", user.ID).
			Msg("invoice customer differs from initiating user; granting to invoice customer")
	}
	cc.user = user
	return cc, nil
}

var openForPaid = []model.PaymentStatus{model.PaymentStatusInitiated, model.PaymentStatusFailed}

func (u *paymentUC) applySubscription(ctx context.Context, cc *callbackContext) (*CallbackResult, error) {
	sub, err := u.subs.FindByID(ctx, repository.NoTX, cc.txctx.SubscriptionID)
	if err != nil {
		return nil, err
	}
	now := u.now()
	grant, err := model.NewUserSubscription(cc.user.ID, sub, cc.transactionID, cc.txctx.Language, now)
	if err != nil {
		return nil, err
	}
	grant.Subscription = sub

	created := false
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.grants.Create(ctx, tx, grant)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		created = true
		if err := u.users.SetSubscribed(ctx, tx, cc.user.ID, true); err != nil {
			return err
		}
		return u.markPaid(ctx, tx, cc, now)
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return &CallbackResult{Outcome: OutcomeDuplicate, TransactionID: cc.transactionID}, nil
	}
	metrics.IncGrantCreated(string(grant.Language))
	metrics.IncPayment(string(model.TransactionSubscription), string(model.PaymentStatusPaid))
	return &CallbackResult{Outcome: OutcomeGranted, TransactionID: cc.transactionID, Grant: grant}, nil
}

// applyGazette keys idempotency on the transaction id, not on the access
// flag, so a repeat purchase by a user who already has access still counts.
func (u *paymentUC) applyGazette(ctx context.Context, cc *callbackContext) (*CallbackResult, error) {
	now := u.now()
	fresh := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		claimed, err := u.claim(ctx, tx, cc, model.PaymentStatusPaid, now)
		if err != nil || !claimed {
			return err
		}
		fresh = true
		_, err = u.users.AllowGazetteDownload(ctx, tx, cc.user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !fresh {
		return &CallbackResult{Outcome: OutcomeDuplicate, TransactionID: cc.transactionID}, nil
	}
	metrics.IncPayment(string(model.TransactionGazette), string(model.PaymentStatusPaid))
	return &CallbackResult{Outcome: OutcomeGazetteUnlocked, TransactionID: cc.transactionID}, nil
}

// applyFailure mutates no account state; it only closes the payment record.
func (u *paymentUC) applyFailure(ctx context.Context, cc *callbackContext) (*CallbackResult, error) {
	moved, err := u.claim(ctx, repository.NoTX, cc, model.PaymentStatusFailed, u.now())
	if err != nil {
		return nil, err
	}
	if !moved {
		return &CallbackResult{Outcome: OutcomeDuplicate, TransactionID: cc.transactionID}, nil
	}
	metrics.IncPayment(string(cc.txctx.Type), string(model.PaymentStatusFailed))
	return &CallbackResult{Outcome: OutcomeFailed, TransactionID: cc.transactionID}, nil
}

func (u *paymentUC) markPaid(ctx context.Context, tx repository.Tx, cc *callbackContext, now time.Time) error {
	_, err := u.claim(ctx, tx, cc, model.PaymentStatusPaid, now)
	return err
}

// claim moves the payment record of cc to status and reports whether this
// delivery made the transition. Transactions without a record from Initiate
// get one here, so the transaction id stays the idempotency key.
func (u *paymentUC) claim(ctx context.Context, tx repository.Tx, cc *callbackContext, status model.PaymentStatus, now time.Time) (bool, error) {
	var paidAt *time.Time
	if status == model.PaymentStatusPaid {
		paidAt = &now
	}
	if cc.pending == nil {
		subID, currency := cc.txctx.SubscriptionID, cc.invoice.Currency
		if cc.txctx.Type != model.TransactionSubscription {
			subID = ""
		}
		if currency == "" {
			currency = u.opts.Currency
		}
		created, err := u.payments.Record(ctx, tx, &model.PaymentTransaction{
			TransactionID:  cc.transactionID,
			UserID:         cc.user.ID,
			Type:           cc.txctx.Type,
			SubscriptionID: subID,
			Language:       cc.txctx.Language,
			InvoiceNumber:  cc.invoice.InvoiceNumber,
			Amount:         cc.invoice.Amount,
			Currency:       currency,
			Status:         status,
			CreatedAt:      now,
			UpdatedAt:      now,
			PaidAt:         paidAt,
		})
		if err != nil || created {
			return created, err
		}
	}
	from := []model.PaymentStatus{model.PaymentStatusInitiated}
	if status == model.PaymentStatusPaid {
		from = openForPaid
	}
	return u.payments.UpdateStatusIfOpen(ctx, tx, cc.transactionID, status, from, paidAt)
}

func (u *paymentUC) ReconcilePending(ctx context.Context, olderThan time.Time, limit int) (int, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.ReconcilePending")()

	pending, err := u.payments.ListInitiatedOlderThan(ctx, repository.NoTX, olderThan, limit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		ref := p.InvoiceNumber
		if ref == "" {
			ref = p.TransactionID
		}
		inv, err := u.gateway.GetInvoice(ctx, ref)
		if err != nil {
			u.log.Warn().Err(err).Str("transaction_id", p.TransactionID).Msg("reconcile: invoice lookup failed")
			continue
		}
		var status model.CallbackStatus
		switch inv.Status {
		case model.InvoiceStatusFailed, model.InvoiceStatusExpired:
			status = model.CallbackFailed
		default:
			if !inv.IsPaid() {
				continue
			}
			status = model.CallbackPaid
		}
		if _, err := u.HandleCallback(ctx, model.CallbackEvent{
			TransactionID: p.TransactionID,
			InvoiceNumber: inv.InvoiceNumber,
			Status:        status,
		}); err != nil {
			u.log.Warn().Err(err).Str("transaction_id", p.TransactionID).Msg("reconcile: callback replay failed")
			continue
		}
		done++
	}
	return done, nil
}
