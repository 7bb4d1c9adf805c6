package auth

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/verigate/identity-core/pkg/cache"
	"github.com/verigate/identity-core/pkg/domain"
	"github.com/verigate/identity-core/pkg/ratelimit"
)

const (
	// TOTP parameters: standard 30-second step, 6 digits, SHA-1, so codes
	// interoperate with common authenticator apps. The ±2-step skew widens
	// acceptance to roughly ±60-90s, a deliberate usability tradeoff.
	totpPeriod = 30
	totpSkew   = 2

	// Staged setup data and challenge codes live this long in the cache.
	mfaSetupTTL     = 10 * time.Minute
	mfaChallengeTTL = 10 * time.Minute

	backupCodeCount = 10

	qrCodeSize = 200
)

// Cache key prefixes. Setup keys stage not-yet-confirmed secrets; the
// bare email/sms keys hold login-time challenge codes.
const (
	setupTOTPKeyPrefix      = "mfa-setup:"
	setupEmailKeyPrefix     = "mfa-email-setup:"
	setupSMSKeyPrefix       = "mfa-sms-setup:"
	challengeEmailKeyPrefix = "mfa-email:"
	challengeSMSKeyPrefix   = "mfa-sms:"
)

// smsSetup is the staged {code, phoneNumber} pair for sms enrollment.
type smsSetup struct {
	Code        string `json:"code"`
	PhoneNumber string `json:"phone_number"`
}

// MFAConfig holds MFA engine configuration.
type MFAConfig struct {
	// Issuer appears in the otpauth:// enrollment URI.
	Issuer string
	// SendCodePolicy rate-limits challenge-code dispatch per user.
	SendCodePolicy ratelimit.Policy
}

// MFAService orchestrates the enrollment and login-challenge state
// machines. Unconfirmed secrets are staged in the ephemeral cache so a
// secret the user never confirms is never locked into the durable store.
type MFAService struct {
	config  MFAConfig
	users   UserStore
	cache   cache.Cache
	limiter ratelimit.Limiter
	mailer  Mailer
	sms     SMSSender
}

// NewMFAService creates a new MFA service.
func NewMFAService(config MFAConfig, users UserStore, c cache.Cache, limiter ratelimit.Limiter, mailer Mailer, sms SMSSender) *MFAService {
	return &MFAService{
		config:  config,
		users:   users,
		cache:   c,
		limiter: limiter,
		mailer:  mailer,
		sms:     sms,
	}
}

// BeginSetup starts enrollment for the chosen method. For the
// authenticator method it returns the secret, enrollment URI, and QR
// image; for email and sms it dispatches a 6-digit code. Nothing is
// persisted until ConfirmSetup succeeds.
func (s *MFAService) BeginSetup(ctx context.Context, userID uuid.UUID, method domain.MFAMethod, phoneNumber string) (*domain.MFASetupData, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.MFA.Enabled {
		return nil, domain.ErrMFAAlreadyEnabled
	}

	switch method {
	case domain.MFAMethodAuthenticator:
		return s.beginAuthenticatorSetup(ctx, user)
	case domain.MFAMethodEmail:
		return s.beginEmailSetup(ctx, user)
	case domain.MFAMethodSMS:
		return s.beginSMSSetup(ctx, user, phoneNumber)
	default:
		return nil, domain.ErrUnsupportedMFAMethod
	}
}

func (s *MFAService) beginAuthenticatorSetup(ctx context.Context, user *domain.User) (*domain.MFASetupData, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.Issuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	var qrBuf bytes.Buffer
	img, err := key.Image(qrCodeSize, qrCodeSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code image: %w", err)
	}
	if err := png.Encode(&qrBuf, img); err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}

	if err := s.cache.Set(ctx, setupTOTPKeyPrefix+user.ID.String(), key.Secret(), mfaSetupTTL); err != nil {
		return nil, fmt.Errorf("failed to stage TOTP secret: %w", err)
	}

	return &domain.MFASetupData{
		Method:        domain.MFAMethodAuthenticator,
		Secret:        key.Secret(),
		OTPAuthURL:    key.URL(),
		QRCodeDataURI: "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrBuf.Bytes()),
	}, nil
}

func (s *MFAService) beginEmailSetup(ctx context.Context, user *domain.User) (*domain.MFASetupData, error) {
	code, err := GenerateNumericCode()
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, setupEmailKeyPrefix+user.ID.String(), code, mfaSetupTTL); err != nil {
		return nil, fmt.Errorf("failed to stage email code: %w", err)
	}
	// A delivery failure after staging is not rolled back: the user can
	// request a fresh code, which overwrites this one.
	if err := s.mailer.SendMFACode(ctx, user.Email, code); err != nil {
		return nil, fmt.Errorf("failed to deliver email code: %w", err)
	}
	return &domain.MFASetupData{Method: domain.MFAMethodEmail}, nil
}

func (s *MFAService) beginSMSSetup(ctx context.Context, user *domain.User, phoneNumber string) (*domain.MFASetupData, error) {
	if phoneNumber == "" {
		return nil, domain.ErrPhoneNumberRequired
	}
	code, err := GenerateNumericCode()
	if err != nil {
		return nil, err
	}
	staged := smsSetup{Code: code, PhoneNumber: phoneNumber}
	if err := s.cache.Set(ctx, setupSMSKeyPrefix+user.ID.String(), staged, mfaSetupTTL); err != nil {
		return nil, fmt.Errorf("failed to stage sms code: %w", err)
	}
	if err := s.sms.Send(ctx, phoneNumber, "Your verification code is "+code); err != nil {
		return nil, fmt.Errorf("failed to deliver sms code: %w", err)
	}
	return &domain.MFASetupData{Method: domain.MFAMethodSMS}, nil
}

// ConfirmSetup completes enrollment. The staged TOTP secret is checked
// first, then the staged email code, then the staged sms code; the first
// match determines the method that gets persisted. On success a fresh set
// of backup codes is generated, the configuration is persisted, and all
// three staging keys are purged so no stale secret survives.
func (s *MFAService) ConfirmSetup(ctx context.Context, userID uuid.UUID, code string) ([]string, domain.MFAMethod, error) {
	id := userID.String()

	var totpSecret string
	totpStaged, err := s.cache.Get(ctx, setupTOTPKeyPrefix+id, &totpSecret)
	if err != nil {
		return nil, domain.MFAMethodNone, err
	}
	var emailCode string
	emailStaged, err := s.cache.Get(ctx, setupEmailKeyPrefix+id, &emailCode)
	if err != nil {
		return nil, domain.MFAMethodNone, err
	}
	var sms smsSetup
	smsStaged, err := s.cache.Get(ctx, setupSMSKeyPrefix+id, &sms)
	if err != nil {
		return nil, domain.MFAMethodNone, err
	}

	if !totpStaged && !emailStaged && !smsStaged {
		return nil, domain.MFAMethodNone, domain.ErrMFASetupNotFound
	}

	settings := domain.MFASettings{Enabled: true, Verified: true}
	switch {
	case totpStaged && verifyTOTP(totpSecret, code):
		settings.Method = domain.MFAMethodAuthenticator
		settings.Secret = &totpSecret
	case emailStaged && constantTimeEquals(emailCode, code):
		settings.Method = domain.MFAMethodEmail
	case smsStaged && constantTimeEquals(sms.Code, code):
		settings.Method = domain.MFAMethodSMS
		settings.PhoneNumber = &sms.PhoneNumber
	default:
		// Enrollment stays in awaiting-confirmation; the caller may retry
		// or request a fresh code.
		return nil, domain.MFAMethodNone, domain.ErrInvalidMFACode
	}

	backupCodes, err := GenerateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, domain.MFAMethodNone, err
	}
	settings.BackupCodes = backupCodes

	if err := settings.Validate(); err != nil {
		return nil, domain.MFAMethodNone, err
	}
	if err := s.users.UpdateMFA(ctx, userID, settings); err != nil {
		return nil, domain.MFAMethodNone, fmt.Errorf("failed to persist MFA settings: %w", err)
	}

	// Purge every staging key regardless of which method matched.
	for _, key := range []string{setupTOTPKeyPrefix + id, setupEmailKeyPrefix + id, setupSMSKeyPrefix + id} {
		_ = s.cache.Delete(ctx, key)
	}

	return backupCodes, settings.Method, nil
}

// Disable turns MFA off after re-verifying the user's password (not an
// MFA code) and clears every MFA field.
func (s *MFAService) Disable(ctx context.Context, userID uuid.UUID, password string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFA.Enabled {
		return domain.ErrMFANotEnabled
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return domain.ErrInvalidCredentials
	}
	return s.users.UpdateMFA(ctx, userID, domain.MFASettings{})
}

// SendChallengeCode dispatches a login-time challenge code for the email
// or sms method. Dispatch carries its own rate limit.
func (s *MFAService) SendChallengeCode(ctx context.Context, userID uuid.UUID) error {
	result, err := s.limiter.Check(ctx, "mfa-send:"+userID.String(), s.config.SendCodePolicy)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return domain.ErrRateLimited
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.MFA.Enabled {
		return domain.ErrMFANotEnabled
	}

	code, err := GenerateNumericCode()
	if err != nil {
		return err
	}

	switch user.MFA.Method {
	case domain.MFAMethodEmail:
		if err := s.cache.Set(ctx, challengeEmailKeyPrefix+userID.String(), code, mfaChallengeTTL); err != nil {
			return fmt.Errorf("failed to stage challenge code: %w", err)
		}
		if err := s.mailer.SendMFACode(ctx, user.Email, code); err != nil {
			return fmt.Errorf("failed to deliver challenge code: %w", err)
		}
	case domain.MFAMethodSMS:
		if user.MFA.PhoneNumber == nil {
			return domain.ErrInvalidMFASettings
		}
		if err := s.cache.Set(ctx, challengeSMSKeyPrefix+userID.String(), code, mfaChallengeTTL); err != nil {
			return fmt.Errorf("failed to stage challenge code: %w", err)
		}
		if err := s.sms.Send(ctx, *user.MFA.PhoneNumber, "Your verification code is "+code); err != nil {
			return fmt.Errorf("failed to deliver challenge code: %w", err)
		}
	default:
		return domain.ErrUnsupportedMFAMethod
	}
	return nil
}

// VerifyChallenge answers a login-time MFA challenge. It reports the
// method used but never creates a session; session issuance is the
// caller's next step.
func (s *MFAService) VerifyChallenge(ctx context.Context, userID uuid.UUID, code string, useBackupCode bool) (*domain.MFAChallengeResult, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.MFA.Enabled {
		return nil, domain.ErrMFANotEnabled
	}

	if useBackupCode {
		return s.verifyBackupCode(ctx, user, code)
	}

	switch user.MFA.Method {
	case domain.MFAMethodAuthenticator:
		if user.MFA.Secret == nil || !verifyTOTP(*user.MFA.Secret, code) {
			return nil, domain.ErrInvalidMFACode
		}
	case domain.MFAMethodEmail:
		if err := s.consumeChallengeCode(ctx, challengeEmailKeyPrefix+userID.String(), code); err != nil {
			return nil, err
		}
	case domain.MFAMethodSMS:
		if err := s.consumeChallengeCode(ctx, challengeSMSKeyPrefix+userID.String(), code); err != nil {
			return nil, err
		}
	default:
		return nil, domain.ErrInvalidMFASettings
	}

	return &domain.MFAChallengeResult{Method: user.MFA.Method}, nil
}

func (s *MFAService) verifyBackupCode(ctx context.Context, user *domain.User, code string) (*domain.MFAChallengeResult, error) {
	if len(user.MFA.BackupCodes) == 0 {
		return nil, domain.ErrNoBackupCodesAvailable
	}

	normalized := strings.ToUpper(strings.TrimSpace(code))
	consumed, err := s.users.ConsumeBackupCode(ctx, user.ID, normalized)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, domain.ErrInvalidMFACode
	}
	return &domain.MFAChallengeResult{Method: user.MFA.Method, UsedBackupCode: true}, nil
}

// consumeChallengeCode compares code against the staged challenge entry
// and deletes it on match: challenge codes are single-use.
func (s *MFAService) consumeChallengeCode(ctx context.Context, key, code string) error {
	var staged string
	found, err := s.cache.Get(ctx, key, &staged)
	if err != nil {
		return err
	}
	if !found || !constantTimeEquals(staged, code) {
		return domain.ErrInvalidMFACode
	}
	return s.cache.Delete(ctx, key)
}

// Status reports whether MFA is enabled, the configured method, and how
// many backup codes remain.
func (s *MFAService) Status(ctx context.Context, userID uuid.UUID) (bool, domain.MFAMethod, int, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, domain.MFAMethodNone, 0, err
	}
	if !user.MFA.Enabled {
		return false, domain.MFAMethodNone, 0, nil
	}
	return true, user.MFA.Method, len(user.MFA.BackupCodes), nil
}

func verifyTOTP(secret, code string) bool {
	valid, err := totp.ValidateCustom(code, secret, time.Now(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}
