package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/verigate/identity-core/pkg/domain"
)

// Default token lifetimes.
const (
	DefaultEmailVerificationTTL = 24 * time.Hour
	DefaultPasswordResetTTL     = time.Hour
)

// TokenConfig holds token lifetimes.
type TokenConfig struct {
	EmailVerificationTTL time.Duration
	PasswordResetTTL     time.Duration
}

// TokenService issues and redeems single-use, expiring tokens for email
// verification and password reset. Tokens are strictly single-use: a row
// is deleted on successful redemption, or lazily on the first redemption
// attempt past expiry.
type TokenService struct {
	config TokenConfig
	tokens TokenStore
}

// NewTokenService creates a new token service.
func NewTokenService(config TokenConfig, tokens TokenStore) *TokenService {
	if config.EmailVerificationTTL == 0 {
		config.EmailVerificationTTL = DefaultEmailVerificationTTL
	}
	if config.PasswordResetTTL == 0 {
		config.PasswordResetTTL = DefaultPasswordResetTTL
	}
	return &TokenService{config: config, tokens: tokens}
}

// CreateVerificationToken issues a new email verification token.
// Registration issues exactly one, so prior tokens are left alone.
func (s *TokenService) CreateVerificationToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.create(ctx, userID, domain.TokenKindEmailVerification, s.config.EmailVerificationTTL)
}

// CreatePasswordResetToken issues a new password reset token, deleting all
// of the subject's prior reset tokens first: at most one live reset token
// per subject at any time.
func (s *TokenService) CreatePasswordResetToken(ctx context.Context, userID uuid.UUID) (string, error) {
	if err := s.tokens.DeleteByUserAndKind(ctx, userID, domain.TokenKindPasswordReset); err != nil {
		return "", fmt.Errorf("failed to invalidate prior reset tokens: %w", err)
	}
	return s.create(ctx, userID, domain.TokenKindPasswordReset, s.config.PasswordResetTTL)
}

func (s *TokenService) create(ctx context.Context, userID uuid.UUID, kind domain.AuthTokenKind, ttl time.Duration) (string, error) {
	rawToken, err := GenerateToken(tokenByteLen)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	now := time.Now()
	token := &domain.AuthToken{
		ID:        uuid.New(),
		UserID:    userID,
		TokenHash: HashToken(rawToken),
		Kind:      kind,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return "", fmt.Errorf("failed to create token: %w", err)
	}
	return rawToken, nil
}

// RedeemVerificationToken redeems an email verification token and returns
// its subject.
func (s *TokenService) RedeemVerificationToken(ctx context.Context, rawToken string) (uuid.UUID, error) {
	return s.redeem(ctx, rawToken, domain.TokenKindEmailVerification)
}

// RedeemPasswordResetToken redeems a password reset token and returns its
// subject.
func (s *TokenService) RedeemPasswordResetToken(ctx context.Context, rawToken string) (uuid.UUID, error) {
	return s.redeem(ctx, rawToken, domain.TokenKindPasswordReset)
}

func (s *TokenService) redeem(ctx context.Context, rawToken string, kind domain.AuthTokenKind) (uuid.UUID, error) {
	token, err := s.tokens.FindByHash(ctx, HashToken(rawToken), kind)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return uuid.Nil, domain.ErrInvalidOrExpiredToken
		}
		return uuid.Nil, err
	}

	if token.IsExpired() {
		// Lazy cleanup; losing the delete race changes nothing.
		_ = s.tokens.Delete(ctx, token.ID)
		return uuid.Nil, domain.ErrInvalidOrExpiredToken
	}

	// The delete is the redemption: whichever caller deletes the row wins,
	// so concurrent redemptions of the same token cannot both succeed.
	if err := s.tokens.Delete(ctx, token.ID); err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return uuid.Nil, domain.ErrInvalidOrExpiredToken
		}
		return uuid.Nil, err
	}
	return token.UserID, nil
}
