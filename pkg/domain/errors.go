package domain

import "errors"

// Authentication errors
var (
	ErrUserNotFound          = errors.New("user not found")
	ErrUserAlreadyExists     = errors.New("user already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrEmailNotVerified      = errors.New("email not verified")
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrTokenNotFound         = errors.New("token not found")
	ErrStoreUnavailable      = errors.New("store unavailable")
)

// Validation errors
var (
	ErrInvalidEmail = errors.New("invalid email address")
	ErrWeakPassword = errors.New("password does not meet requirements")
)

// MFA errors
var (
	ErrMFANotEnabled          = errors.New("MFA is not enabled for this account")
	ErrMFAAlreadyEnabled      = errors.New("MFA is already enabled")
	ErrInvalidMFACode         = errors.New("invalid MFA code")
	ErrInvalidMFASettings     = errors.New("invalid MFA settings")
	ErrUnsupportedMFAMethod   = errors.New("unsupported MFA method")
	ErrPhoneNumberRequired    = errors.New("phone number is required for SMS MFA")
	ErrNoBackupCodesAvailable = errors.New("no backup codes available")
	ErrMFASetupNotFound       = errors.New("no pending MFA setup found")
)
