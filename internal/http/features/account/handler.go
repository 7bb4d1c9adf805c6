package account

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/verigate/identity-core/internal/http/middleware"
	"github.com/verigate/identity-core/internal/httputil"
	"github.com/verigate/identity-core/pkg/auth"
	"github.com/verigate/identity-core/pkg/domain"
	"github.com/verigate/identity-core/pkg/session"
)

// Handler handles registration, login, and profile endpoints.
type Handler struct {
	logger       *slog.Logger
	authService  *auth.AuthService
	mfaService   *auth.MFAService
	sessions     *session.Manager
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new account handler.
func NewHandler(logger *slog.Logger, authService *auth.AuthService, mfaService *auth.MFAService, sessions *session.Manager, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		authService:  authService,
		mfaService:   mfaService,
		sessions:     sessions,
		cookieConfig: cookieConfig,
	}
}

// RegisterRequest represents a registration request.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /v1/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.authService.Register(r.Context(), req.Email, req.Password, req.Name, httputil.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			httputil.Error(w, http.StatusTooManyRequests, "too many registration attempts, please try again later")
		case errors.Is(err, domain.ErrUserAlreadyExists):
			httputil.Error(w, http.StatusConflict, "an account with this email already exists")
		case errors.Is(err, domain.ErrInvalidEmail), errors.Is(err, domain.ErrWeakPassword):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("registration failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	httputil.Success(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"message": "registration successful, please verify your email",
	})
}

// Login handles POST /v1/auth/login. A positive decision with MFA enabled
// yields mfa_required and no session; the client must complete the MFA
// challenge before any token is issued.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.authService.Login(r.Context(), req.Email, req.Password, httputil.ClientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			httputil.Error(w, http.StatusTooManyRequests, "too many login attempts, please try again later")
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.Error(w, http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, domain.ErrEmailNotVerified):
			httputil.Error(w, http.StatusForbidden, "please verify your email before logging in")
		default:
			h.logger.Error("login failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "login failed")
		}
		return
	}

	if result.Status == auth.LoginMFARequired {
		httputil.Success(w, http.StatusOK, map[string]any{
			"mfa_required": true,
			"user_id":      result.User.ID,
		})
		return
	}

	token, err := h.sessions.Issue(result.User, false)
	if err != nil {
		h.logger.Error("failed to issue session", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "login failed")
		return
	}
	httputil.SetSessionCookie(w, token, h.sessions.TTL(), h.cookieConfig)

	httputil.Success(w, http.StatusOK, map[string]any{
		"mfa_required": false,
		"access_token": token,
		"user": map[string]any{
			"id":    result.User.ID,
			"email": result.User.Email,
			"name":  result.User.Name,
		},
	})
}

// Logout handles POST /v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	httputil.ClearSessionCookie(w, h.cookieConfig)
	httputil.Success(w, http.StatusOK, map[string]any{"message": "logged out"})
}

// Me handles GET /v1/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	enabled, method, backupCodesRemaining, err := h.mfaService.Status(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load mfa status", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"mfa": map[string]any{
			"enabled":                enabled,
			"method":                 method,
			"backup_codes_remaining": backupCodesRemaining,
		},
	})
}
