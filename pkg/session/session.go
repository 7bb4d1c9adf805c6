// Package session mints and validates the access tokens the HTTP layer
// hands out after the authentication core reports a positive decision.
// It is deliberately separate from that decision: the core answers
// "authenticated yes/no, MFA required yes/no" and this package turns a
// yes into a bearer credential, never the other way around.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/verigate/identity-core/pkg/domain"
)

// DefaultTTL is the access token lifetime when none is configured.
const DefaultTTL = 15 * time.Minute

var (
	// ErrInvalidToken covers malformed, forged, and expired tokens.
	ErrInvalidToken = errors.New("invalid session token")
)

// Config holds session token configuration.
type Config struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Claims are the claims carried in an access token.
type Claims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	MFAVerified bool   `json:"mfa_verified,omitempty"`
}

// Manager issues and validates HS256-signed access tokens.
type Manager struct {
	config Config
}

// NewManager creates a session manager.
func NewManager(config Config) *Manager {
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	return &Manager{config: config}
}

// TTL returns the configured access token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.config.TTL
}

// Issue mints an access token for user. mfaVerified records whether the
// session was established through a completed MFA challenge.
func (m *Manager) Issue(user *domain.User, mfaVerified bool) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.TTL)),
		},
		Email:       user.Email,
		MFAVerified: mfaVerified,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.config.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses tokenString and returns its claims and subject.
func (m *Manager) Validate(tokenString string) (*Claims, uuid.UUID, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.config.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, uuid.Nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, uuid.Nil, ErrInvalidToken
	}
	return claims, userID, nil
}
