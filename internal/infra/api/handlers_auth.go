package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"umuhanda-backend/internal/domain"
	"umuhanda-backend/internal/domain/model"
	"umuhanda-backend/internal/infra/logging"
	"umuhanda-backend/internal/infra/redis"
	"umuhanda-backend/internal/usecase"
)

const (
	loginAttemptLimit  = 10
	loginAttemptWindow = 15 * time.Minute
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req usecase.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.deps.Users.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"message": "user registered", "user": u})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Phone      string `json:"phone_number"`
	Password   string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	id := req.Identifier
	if id == "" {
		id = req.Email
	}
	if id == "" {
		id = req.Phone
	}
	if strings.TrimSpace(id) == "" || req.Password == "" {
		writeError(w, domain.ErrInvalidArgument)
		return
	}

	if s.deps.Limiter != nil {
		ok, err := s.deps.Limiter.Allow(r.Context(), redis.ActionKey("login", id), loginAttemptLimit, loginAttemptWindow)
		if err != nil {
			l := logging.With(r.Context(), s.log)
			l.Warn().Err(err).Msg("login rate limiter unavailable")
		} else if !ok {
			writeError(w, domain.ErrRateLimited)
			return
		}
	}

	token, u, err := s.deps.Users.Login(r.Context(), id, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.deps.Auth.SetCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": u})
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	s.deps.Auth.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// sameUser rejects access to another user's resources.
func sameUser(r *http.Request, param string) error {
	if chi.URLParam(r, param) != UserID(r.Context()) {
		return domain.ErrForbidden
	}
	return nil
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if err := sameUser(r, "userId"); err != nil {
		writeError(w, err)
		return
	}
	info, err := s.deps.Users.Info(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd usecase.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.deps.Users.UpdateProfile(r.Context(), UserID(r.Context()), upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Users.ChangePassword(r.Context(), UserID(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (s *Server) handleGazetteAccess(w http.ResponseWriter, r *http.Request) {
	ok, err := s.deps.Users.GazetteAccess(r.Context(), UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"hasAccess": ok})
}

type resetRequest struct {
	Identifier  string `json:"identifier"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
	Language    string `json:"language"`
}

func (s *Server) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Resets.Request(r.Context(), req.Identifier, model.NormalizeLanguage(req.Language)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "reset code sent"})
}

func (s *Server) handleVerifyReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Resets.Verify(r.Context(), req.Identifier, req.Code); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "code verified"})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Resets.Reset(r.Context(), req.Identifier, req.Code, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password reset"})
}
