package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/infra/adapters/payment"
	"umuhanda-backend/internal/infra/logging"
	"umuhanda-backend/internal/infra/metrics"
	"umuhanda-backend/internal/usecase"
)

func (s *Server) handleInitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req usecase.InitiateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := s.deps.Payments.Initiate(r.Context(), UserID(r.Context()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	inv, err := s.deps.Payments.CheckStatus(r.Context(), chi.URLParam(r, "transactionId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

// handleCallback is the gateway webhook. It answers 201 when a grant was
// created and 200 for every other reconciled outcome.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), s.log)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		metrics.IncCallback("rejected")
		writeError(w, domain.ErrInvalidArgument)
		return
	}
	if err := payment.VerifySignature(s.deps.WebhookSecret, r.Header.Get(payment.SignatureHeader), body, s.now()); err != nil {
		metrics.IncCallback("rejected")
		l.Warn().Err(err).Msg("callback signature rejected")
		writeError(w, err)
		return
	}

	ev, err := payment.ParseCallback(body)
	if err != nil {
		metrics.IncCallback("rejected")
		l.Warn().Err(err).Msg("callback payload rejected")
		writeError(w, err)
		return
	}

	ctx := logging.WithTransactionID(r.Context(), ev.TransactionID)
	res, err := s.deps.Payments.HandleCallback(ctx, ev)
	if err != nil {
		metrics.IncCallback("error")
		writeError(w, err)
		return
	}

	code := http.StatusOK
	if res.Outcome == usecase.OutcomeGranted {
		code = http.StatusCreated
	}
	writeJSON(w, code, res)
}
