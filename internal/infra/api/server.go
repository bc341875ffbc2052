package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"umuhanda-backend/internal/domain/ports/repository"
	"umuhanda-backend/internal/infra/metrics"
	"umuhanda-backend/internal/usecase"
)

// Deps are the use cases and collaborators behind the HTTP API.
type Deps struct {
	Users         usecase.UserUseCase
	Resets        usecase.PasswordResetUseCase
	Subscriptions usecase.SubscriptionUseCase
	Payments      usecase.PaymentUseCase
	Auth          *AuthManager
	// Limiter throttles login attempts per identifier; nil disables it.
	Limiter       repository.RateLimiter
	WebhookSecret string
}

type Options struct {
	AllowedOrigin  string
	RequestTimeout time.Duration
}

type Server struct {
	deps Deps
	opts Options
	now  func() time.Time
	log  *zerolog.Logger
}

func NewServer(deps Deps, opts Options, logger *zerolog.Logger) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{deps: deps, opts: opts, now: time.Now, log: logger}
}

// Router builds the full route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(
		TraceID(),
		RequestLog(s.log),
		Recover(s.log),
		CORS(s.opts.AllowedOrigin),
		Timeout(s.opts.RequestTimeout),
	)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	auth := s.deps.Auth.RequireAuth

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/logout", s.handleLogout)
		r.Post("/request-reset", s.handleRequestReset)
		r.Post("/verify-reset", s.handleVerifyReset)
		r.Post("/reset-password", s.handleResetPassword)
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Get("/info/{userId}", s.handleInfo)
			r.Put("/update-profile", s.handleUpdateProfile)
			r.Put("/change-password", s.handleChangePassword)
			r.Get("/gazette-access", s.handleGazetteAccess)
		})
	})

	r.Route("/api/subscription", func(r chi.Router) {
		r.Get("/", s.handleListCatalog)
		r.Get("/{id}", s.handleGetCatalog)
	})

	r.Route("/api/user-subscription", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Get("/{userId}", s.handleListGrants)
			r.Get("/active/{userId}", s.handleListActiveGrants)
			r.Delete("/update-attempt/{id}", s.handleConsumeAttempt)
		})
		r.Group(func(r chi.Router) {
			r.Use(s.deps.Auth.RequireAdmin)
			r.Post("/", s.handleCreateGrant)
			r.Put("/extend/{id}", s.handleExtendGrant)
		})
	})

	r.Route("/api/pay", func(r chi.Router) {
		r.Post("/callback", s.handleCallback)
		r.Group(func(r chi.Router) {
			r.Use(auth)
			r.Post("/", s.handleInitiatePayment)
			r.Get("/status/{transactionId}", s.handlePaymentStatus)
		})
	})

	return r
}

// ListenAndServe runs the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", port).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		s.log.Info().Msg("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	}
}
