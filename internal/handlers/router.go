package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/corebank/backend/internal/audit"
	mW "github.com/corebank/backend/internal/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Pinger reports whether the database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type RouterConfig struct {
	Auth           *AuthHandler
	Bank           *BankHandler
	Authenticator  mW.Authenticator
	Audit          audit.Recorder
	DB             Pinger
	RequestTimeout time.Duration
}

// NewRouter mounts the public and token-protected endpoints.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	r.Get("/health", Health(cfg.DB))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", cfg.Auth.Login)
		r.Post("/logout", cfg.Auth.Logout)

		r.Group(func(r chi.Router) {
			r.Use(mW.Auth(cfg.Authenticator, cfg.Audit))
			r.Post("/generate-otp", cfg.Auth.GenerateOTP)
			r.Post("/validate-otp", cfg.Auth.ValidateOTP)
		})
	})

	r.Route("/bank", func(r chi.Router) {
		r.Use(mW.Auth(cfg.Authenticator, cfg.Audit))
		r.Post("/deposit", cfg.Bank.Deposit)
		r.Post("/withdraw", cfg.Bank.Withdraw)
		r.Post("/transfer", cfg.Bank.Transfer)
		r.Post("/credit-payment", cfg.Bank.CreditPayment)
		r.Post("/pay-credit-balance", cfg.Bank.PayCreditBalance)
	})

	return r
}

// Health reports "healthy" while the database answers pings.
func Health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				sendJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
