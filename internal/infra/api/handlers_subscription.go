package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
)

func (s *Server) handleListCatalog(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Subscriptions.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Subscriptions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleListGrants(w http.ResponseWriter, r *http.Request) {
	if err := sameUser(r, "userId"); err != nil {
		writeError(w, err)
		return
	}
	grants, err := s.deps.Subscriptions.ListGrants(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (s *Server) handleListActiveGrants(w http.ResponseWriter, r *http.Request) {
	if err := sameUser(r, "userId"); err != nil {
		writeError(w, err)
		return
	}
	grants, err := s.deps.Subscriptions.ListActiveGrants(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (s *Server) handleConsumeAttempt(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Subscriptions.ConsumeAttempt(r.Context(), UserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

type createGrantRequest struct {
	UserID         string `json:"userId"`
	SubscriptionID string `json:"subscriptionId"`
	Language       string `json:"language"`
}

func (s *Server) handleCreateGrant(w http.ResponseWriter, r *http.Request) {
	var req createGrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.SubscriptionID) == "" {
		writeError(w, fmt.Errorf("%w: userId and subscriptionId are required", domain.ErrInvalidArgument))
		return
	}
	g, err := s.deps.Subscriptions.CreateGrant(r.Context(), req.UserID, req.SubscriptionID, model.NormalizeLanguage(req.Language))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (s *Server) handleExtendGrant(w http.ResponseWriter, r *http.Request) {
	g, err := s.deps.Subscriptions.ExtendGrant(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}
