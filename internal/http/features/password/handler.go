package password

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/verigate/identity-core/internal/httputil"
	"github.com/verigate/identity-core/pkg/auth"
	"github.com/verigate/identity-core/pkg/domain"
)

// Handler handles the password reset endpoints.
type Handler struct {
	logger      *slog.Logger
	authService *auth.AuthService
}

// NewHandler creates a new password handler.
func NewHandler(logger *slog.Logger, authService *auth.AuthService) *Handler {
	return &Handler{logger: logger, authService: authService}
}

// ForgotRequest represents a password reset request.
type ForgotRequest struct {
	Email string `json:"email"`
}

// ResetRequest carries the reset token and the new password.
type ResetRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

// Forgot handles POST /v1/auth/forgot-password. It answers identically
// whether or not the email exists.
func (h *Handler) Forgot(w http.ResponseWriter, r *http.Request) {
	var req ForgotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	err := h.authService.RequestPasswordReset(r.Context(), req.Email, httputil.ClientIP(r))
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			httputil.Error(w, http.StatusTooManyRequests, "too many reset requests, please try again later")
			return
		}
		h.logger.Error("password reset request failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"message": "if an account exists for that email, a reset link has been sent",
	})
}

// Reset handles POST /v1/auth/reset-password.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		httputil.Error(w, http.StatusBadRequest, "token and new password are required")
		return
	}

	err := h.authService.ResetPassword(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOrExpiredToken):
			httputil.Error(w, http.StatusBadRequest, "invalid or expired reset token")
		case errors.Is(err, domain.ErrWeakPassword):
			httputil.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("password reset failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to reset password")
		}
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{"message": "password has been reset"})
}
