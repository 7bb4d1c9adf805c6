package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/verigate/identity-core/internal/http/features/account"
	"github.com/verigate/identity-core/internal/http/features/mfa"
	"github.com/verigate/identity-core/internal/http/features/password"
	"github.com/verigate/identity-core/internal/http/features/verify"
	"github.com/verigate/identity-core/internal/http/middleware"
	"github.com/verigate/identity-core/internal/httputil"
	"github.com/verigate/identity-core/pkg/auth"
	"github.com/verigate/identity-core/pkg/session"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger      *slog.Logger
	AuthService *auth.AuthService
	MFAService  *auth.MFAService
	Users       auth.UserStore
	Sessions    *session.Manager

	// GlobalRequestsPerMinute is a coarse per-IP throttle across all
	// endpoints. The identity-sensitive endpoints carry their own
	// sliding-window limits inside the core services.
	GlobalRequestsPerMinute int
	MaxRequestBodySize      int64
	CookieSecure            bool
}

// NewRouter creates a new HTTP router with all routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recover(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RequestSizeLimit(cfg.MaxRequestBodySize))
	if cfg.GlobalRequestsPerMinute > 0 {
		r.Use(httprate.LimitByIP(cfg.GlobalRequestsPerMinute, time.Minute))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	cookieConfig := httputil.DefaultCookieConfig()
	cookieConfig.Secure = cfg.CookieSecure

	accountHandler := account.NewHandler(cfg.Logger, cfg.AuthService, cfg.MFAService, cfg.Sessions, cookieConfig)
	passwordHandler := password.NewHandler(cfg.Logger, cfg.AuthService)
	verifyHandler := verify.NewHandler(cfg.Logger, cfg.AuthService)
	mfaHandler := mfa.NewHandler(cfg.Logger, cfg.MFAService, cfg.Users, cfg.Sessions, cookieConfig)

	// Unauthenticated endpoints.
	r.Post("/v1/auth/register", accountHandler.Register)
	r.Post("/v1/auth/login", accountHandler.Login)
	r.Post("/v1/auth/logout", accountHandler.Logout)
	r.Post("/v1/auth/verify-email", verifyHandler.Verify)
	r.Post("/v1/auth/resend-verification", verifyHandler.Resend)
	r.Post("/v1/auth/forgot-password", passwordHandler.Forgot)
	r.Post("/v1/auth/reset-password", passwordHandler.Reset)

	// Challenge endpoints sit between the first-factor decision and the
	// session, so they are keyed by user_id rather than a bearer token.
	r.Post("/v1/auth/mfa/send-code", mfaHandler.SendCode)
	r.Post("/v1/auth/mfa/verify", mfaHandler.VerifyChallenge)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.Sessions))
		r.Get("/v1/me", accountHandler.Me)
		r.Post("/v1/me/mfa/setup", mfaHandler.Setup)
		r.Post("/v1/me/mfa/confirm", mfaHandler.ConfirmSetup)
		r.Post("/v1/me/mfa/disable", mfaHandler.Disable)
	})

	return r
}
