package verify

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/verigate/identity-core/internal/httputil"
	"github.com/verigate/identity-core/pkg/auth"
	"github.com/verigate/identity-core/pkg/domain"
)

// Handler handles the email verification endpoints.
type Handler struct {
	logger      *slog.Logger
	authService *auth.AuthService
}

// NewHandler creates a new verification handler.
func NewHandler(logger *slog.Logger, authService *auth.AuthService) *Handler {
	return &Handler{logger: logger, authService: authService}
}

// VerifyRequest carries the raw verification token.
type VerifyRequest struct {
	Token string `json:"token"`
}

// ResendRequest represents a verification resend request.
type ResendRequest struct {
	Email string `json:"email"`
}

// Verify handles POST /v1/auth/verify-email.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		httputil.Error(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.authService.VerifyEmail(r.Context(), req.Token); err != nil {
		if errors.Is(err, domain.ErrInvalidOrExpiredToken) {
			httputil.Error(w, http.StatusBadRequest, "invalid or expired verification token")
			return
		}
		h.logger.Error("email verification failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "verification failed")
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{"message": "email verified"})
}

// Resend handles POST /v1/auth/resend-verification. It answers
// identically whether or not the email exists.
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" {
		httputil.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	err := h.authService.ResendVerification(r.Context(), req.Email, httputil.ClientIP(r))
	if err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			httputil.Error(w, http.StatusTooManyRequests, "too many requests, please try again later")
			return
		}
		h.logger.Error("resend verification failed", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "failed to process request")
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"message": "if an unverified account exists for that email, a new link has been sent",
	})
}
