package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthTokenKind distinguishes the two single-use token families.
type AuthTokenKind string

const (
	// TokenKindEmailVerification is a 24h token proving mailbox ownership.
	TokenKindEmailVerification AuthTokenKind = "email_verification"
	// TokenKindPasswordReset is a 1h token authorizing a password change.
	TokenKindPasswordReset AuthTokenKind = "password_reset"
)

// AuthToken is a single-use, expiring token. The raw value never touches
// durable storage; only its SHA-256 hash does. A token row is deleted on
// redemption or on the first redemption attempt past ExpiresAt.
type AuthToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	Kind      AuthTokenKind
	CreatedAt time.Time
	ExpiresAt time.Time
}

// IsExpired returns true if the token is past its expiry.
func (t *AuthToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
