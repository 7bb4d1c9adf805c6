package mfa

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/verigate/identity-core/internal/http/middleware"
	"github.com/verigate/identity-core/internal/httputil"
	"github.com/verigate/identity-core/pkg/auth"
	"github.com/verigate/identity-core/pkg/domain"
	"github.com/verigate/identity-core/pkg/session"
)

// Handler handles MFA enrollment and challenge endpoints.
type Handler struct {
	logger       *slog.Logger
	mfaService   *auth.MFAService
	users        auth.UserStore
	sessions     *session.Manager
	cookieConfig httputil.CookieConfig
}

// NewHandler creates a new MFA handler.
func NewHandler(logger *slog.Logger, mfaService *auth.MFAService, users auth.UserStore, sessions *session.Manager, cookieConfig httputil.CookieConfig) *Handler {
	return &Handler{
		logger:       logger,
		mfaService:   mfaService,
		users:        users,
		sessions:     sessions,
		cookieConfig: cookieConfig,
	}
}

// SetupRequest chooses the enrollment method.
type SetupRequest struct {
	Method      string `json:"method"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// ConfirmRequest carries the enrollment confirmation code.
type ConfirmRequest struct {
	Code string `json:"code"`
}

// DisableRequest carries the password re-verification for disabling MFA.
type DisableRequest struct {
	Password string `json:"password"`
}

// ChallengeRequest answers a login-time challenge. UserID comes from the
// login response; there is no session yet at this point.
type ChallengeRequest struct {
	UserID        uuid.UUID `json:"user_id"`
	Code          string    `json:"code"`
	UseBackupCode bool      `json:"use_backup_code,omitempty"`
}

// SendCodeRequest asks for a fresh challenge code.
type SendCodeRequest struct {
	UserID uuid.UUID `json:"user_id"`
}

// Setup handles POST /v1/me/mfa/setup.
func (h *Handler) Setup(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	data, err := h.mfaService.BeginSetup(r.Context(), userID, domain.MFAMethod(req.Method), req.PhoneNumber)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrMFAAlreadyEnabled):
			httputil.Error(w, http.StatusConflict, "MFA is already enabled")
		case errors.Is(err, domain.ErrUnsupportedMFAMethod):
			httputil.Error(w, http.StatusBadRequest, "unsupported MFA method")
		case errors.Is(err, domain.ErrPhoneNumberRequired):
			httputil.Error(w, http.StatusBadRequest, "phone number is required for SMS MFA")
		default:
			h.logger.Error("mfa setup failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "MFA setup failed")
		}
		return
	}

	resp := map[string]any{"method": data.Method}
	if data.Method == domain.MFAMethodAuthenticator {
		resp["secret"] = data.Secret
		resp["otpauth_url"] = data.OTPAuthURL
		resp["qr_code"] = data.QRCodeDataURI
	} else {
		resp["message"] = "verification code sent"
	}
	httputil.Success(w, http.StatusOK, resp)
}

// ConfirmSetup handles POST /v1/me/mfa/confirm. On success the backup
// codes are returned exactly once.
func (h *Handler) ConfirmSetup(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	backupCodes, method, err := h.mfaService.ConfirmSetup(r.Context(), userID, req.Code)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMFACode):
			httputil.Error(w, http.StatusBadRequest, "invalid verification code")
		case errors.Is(err, domain.ErrMFASetupNotFound):
			httputil.Error(w, http.StatusBadRequest, "no pending MFA setup, start again")
		default:
			h.logger.Error("mfa confirmation failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "MFA confirmation failed")
		}
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{
		"method":       method,
		"backup_codes": backupCodes,
		"message":      "MFA enabled successfully",
	})
}

// Disable handles POST /v1/me/mfa/disable.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httputil.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DisableRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" {
		httputil.Error(w, http.StatusBadRequest, "password is required to disable MFA")
		return
	}

	if err := h.mfaService.Disable(r.Context(), userID, req.Password); err != nil {
		switch {
		case errors.Is(err, domain.ErrMFANotEnabled):
			httputil.Error(w, http.StatusBadRequest, "MFA is not enabled")
		case errors.Is(err, domain.ErrInvalidCredentials):
			httputil.Error(w, http.StatusUnauthorized, "invalid password")
		default:
			h.logger.Error("mfa disable failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to disable MFA")
		}
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{"message": "MFA disabled"})
}

// SendCode handles POST /v1/auth/mfa/send-code. Called between the
// first-factor decision and the challenge, so it is not authenticated.
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req SendCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.mfaService.SendChallengeCode(r.Context(), req.UserID); err != nil {
		switch {
		case errors.Is(err, domain.ErrRateLimited):
			httputil.Error(w, http.StatusTooManyRequests, "too many code requests, please try again later")
		case errors.Is(err, domain.ErrMFANotEnabled), errors.Is(err, domain.ErrUnsupportedMFAMethod), errors.Is(err, domain.ErrUserNotFound):
			httputil.Error(w, http.StatusBadRequest, "cannot send a code for this account")
		default:
			h.logger.Error("mfa send code failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "failed to send code")
		}
		return
	}

	httputil.Success(w, http.StatusOK, map[string]any{"message": "verification code sent"})
}

// VerifyChallenge handles POST /v1/auth/mfa/verify: the second factor of
// login. Success is the point where a session finally exists.
func (h *Handler) VerifyChallenge(w http.ResponseWriter, r *http.Request) {
	var req ChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == uuid.Nil || req.Code == "" {
		httputil.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.mfaService.VerifyChallenge(r.Context(), req.UserID, req.Code, req.UseBackupCode)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidMFACode):
			httputil.Error(w, http.StatusUnauthorized, "invalid verification code")
		case errors.Is(err, domain.ErrNoBackupCodesAvailable):
			httputil.Error(w, http.StatusBadRequest, "no backup codes available")
		case errors.Is(err, domain.ErrMFANotEnabled), errors.Is(err, domain.ErrUserNotFound):
			httputil.Error(w, http.StatusBadRequest, "MFA is not enabled for this account")
		default:
			h.logger.Error("mfa challenge failed", "error", err)
			httputil.Error(w, http.StatusInternalServerError, "MFA verification failed")
		}
		return
	}

	user, err := h.users.GetByID(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to load user after mfa challenge", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "MFA verification failed")
		return
	}

	token, err := h.sessions.Issue(user, true)
	if err != nil {
		h.logger.Error("failed to issue session", "error", err)
		httputil.Error(w, http.StatusInternalServerError, "MFA verification failed")
		return
	}
	httputil.SetSessionCookie(w, token, h.sessions.TTL(), h.cookieConfig)

	httputil.Success(w, http.StatusOK, map[string]any{
		"access_token":     token,
		"method":           result.Method,
		"used_backup_code": result.UsedBackupCode,
	})
}
