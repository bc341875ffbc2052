package sched

import (
	"context"

	"github.com/rs/zerolog"

	"umuhanda-backend/internal/usecase"
)

// ExpiryWorker closes lapsed subscription grants via the use case.
type ExpiryWorker struct {
	subUC usecase.SubscriptionUseCase
	log   *zerolog.Logger
}

func NewExpiryWorker(subUC usecase.SubscriptionUseCase, logger *zerolog.Logger) *ExpiryWorker {
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{subUC: subUC, log: &exprLog}
}

func (w *ExpiryWorker) Name() string { return "grant_expiry" }

func (w *ExpiryWorker) Run(ctx context.Context) error {
	n, err := w.subUC.ExpireDue(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.Info().Int("users", n).Msg("expired grants closed")
	}
	return nil
}
