package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"umuhanda-backend/internal/usecase"
)

const reconcileBatch = 200

// PaymentReconciler re-checks initiated payments whose webhook never arrived,
// covering lost deliveries and crashes mid-callback.
type PaymentReconciler struct {
	uc         usecase.PaymentUseCase
	staleAfter time.Duration // how old an initiated payment must be to re-check
	now        func() time.Time
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	l := logger.With().Str("component", "PaymentReconciler").Logger()
	return &PaymentReconciler{uc: uc, staleAfter: staleAfter, now: time.Now, log: &l}
}

func (w *PaymentReconciler) Name() string { return "payment_reconciler" }

func (w *PaymentReconciler) Run(ctx context.Context) error {
	n, err := w.uc.ReconcilePending(ctx, w.now().Add(-w.staleAfter), reconcileBatch)
	if n > 0 {
		w.log.Info().Int("count", n).Msg("stale payments reconciled")
	}
	return err
}
