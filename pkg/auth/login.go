package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/verigate/identity-core/pkg/domain"
	"github.com/verigate/identity-core/pkg/ratelimit"
)

// LoginStatus is the authentication decision. It deliberately carries no
// session material: session issuance is a separate stage owned by the
// transport layer.
type LoginStatus string

const (
	// LoginAuthenticated means the password check passed and no second
	// factor is required.
	LoginAuthenticated LoginStatus = "authenticated"
	// LoginMFARequired means the password check passed but the caller must
	// drive the MFA challenge before any session exists.
	LoginMFARequired LoginStatus = "mfa_required"
)

// LoginResult reports a successful first-factor decision.
type LoginResult struct {
	Status LoginStatus
	User   *domain.User
}

// RatePolicies is the per-action-class rate limit table. It is
// configuration, not logic; defaults live in internal/config.
type RatePolicies struct {
	Login         ratelimit.Policy
	Register      ratelimit.Policy
	PasswordReset ratelimit.Policy
}

// AuthConfig holds orchestrator configuration.
type AuthConfig struct {
	Policies RatePolicies
}

// AuthService composes the rate limiter, credential manager, and token
// lifecycle manager to answer "is this login allowed, and is MFA
// required" plus the registration and password-reset flows.
type AuthService struct {
	config  AuthConfig
	users   UserStore
	tokens  *TokenService
	limiter ratelimit.Limiter
	mailer  Mailer
	policy  *PasswordPolicy
}

// NewAuthService creates a new authentication orchestrator.
func NewAuthService(config AuthConfig, users UserStore, tokens *TokenService, limiter ratelimit.Limiter, mailer Mailer, policy *PasswordPolicy) *AuthService {
	if policy == nil {
		policy = DefaultPasswordPolicy()
	}
	return &AuthService{
		config:  config,
		users:   users,
		tokens:  tokens,
		limiter: limiter,
		mailer:  mailer,
		policy:  policy,
	}
}

// Login makes the first-factor authentication decision. clientKey
// identifies the caller for rate limiting (typically the client IP).
// Unknown user and wrong password both surface as ErrInvalidCredentials
// so responses cannot be used to enumerate accounts.
func (s *AuthService) Login(ctx context.Context, email, password, clientKey string) (*LoginResult, error) {
	if err := s.checkLimit(ctx, "login:"+clientKey, s.config.Policies.Login); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.EmailVerified {
		return nil, domain.ErrEmailNotVerified
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	if user.MFA.Enabled {
		return &LoginResult{Status: LoginMFARequired, User: user}, nil
	}
	return &LoginResult{Status: LoginAuthenticated, User: user}, nil
}

// Register creates a new unverified account and dispatches its email
// verification link.
func (s *AuthService) Register(ctx context.Context, email, password, name, clientKey string) (*domain.User, error) {
	if err := s.checkLimit(ctx, "register:"+clientKey, s.config.Policies.Register); err != nil {
		return nil, err
	}

	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	email = NormalizeEmail(email)

	if err := s.policy.ValidatePassword(password); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, domain.ErrUserAlreadyExists
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if name = SanitizeName(name); name != "" {
		user.Name = &name
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.CreateVerificationToken(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if err := s.mailer.SendVerification(ctx, user.Email, token); err != nil {
		return nil, fmt.Errorf("failed to send verification email: %w", err)
	}
	return user, nil
}

// VerifyEmail redeems a verification token and marks the subject's email
// as verified.
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken string) error {
	userID, err := s.tokens.RedeemVerificationToken(ctx, rawToken)
	if err != nil {
		return err
	}
	return s.users.SetEmailVerified(ctx, userID)
}

// ResendVerification issues a fresh verification token for an unverified
// account. It reports success whether or not the email exists.
func (s *AuthService) ResendVerification(ctx context.Context, email, clientKey string) error {
	if err := s.checkLimit(ctx, "resend-verification:"+clientKey, s.config.Policies.PasswordReset); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}
	if user.EmailVerified {
		return nil
	}

	token, err := s.tokens.CreateVerificationToken(ctx, user.ID)
	if err != nil {
		return err
	}
	return s.mailer.SendVerification(ctx, user.Email, token)
}

// RequestPasswordReset issues a reset token and emails it. It reports
// success whether or not the email exists, so neither response shape nor
// error can be used to enumerate accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email, clientKey string) error {
	if err := s.checkLimit(ctx, "password-reset:"+clientKey, s.config.Policies.PasswordReset); err != nil {
		return err
	}

	user, err := s.users.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil
		}
		return err
	}

	token, err := s.tokens.CreatePasswordResetToken(ctx, user.ID)
	if err != nil {
		return err
	}
	return s.mailer.SendPasswordReset(ctx, user.Email, token)
}

// ResetPassword redeems a reset token and installs the new password.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := s.policy.ValidatePassword(newPassword); err != nil {
		return err
	}

	userID, err := s.tokens.RedeemPasswordResetToken(ctx, rawToken)
	if err != nil {
		return err
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.users.UpdatePasswordHash(ctx, userID, hash)
}

func (s *AuthService) checkLimit(ctx context.Context, identifier string, policy ratelimit.Policy) error {
	result, err := s.limiter.Check(ctx, identifier, policy)
	if err != nil {
		return err
	}
	if !result.Allowed {
		return domain.ErrRateLimited
	}
	return nil
}
