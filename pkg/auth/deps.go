package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/verigate/identity-core/pkg/domain"
)

// UserStore is the durable identity store this core consumes. Postgres
// implementations live in pkg/repository; tests supply in-memory fakes.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	// GetByEmail expects a normalized (lowercased) email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	SetEmailVerified(ctx context.Context, id uuid.UUID) error
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	UpdateMFA(ctx context.Context, id uuid.UUID, settings domain.MFASettings) error
	// ConsumeBackupCode atomically removes code from the user's backup-code
	// set and reports whether it was present. The removal and the success
	// determination are one operation: two concurrent redemptions of the
	// same code must not both succeed.
	ConsumeBackupCode(ctx context.Context, id uuid.UUID, code string) (bool, error)
}

// TokenStore persists single-use auth tokens, keyed by hash.
type TokenStore interface {
	Create(ctx context.Context, token *domain.AuthToken) error
	// FindByHash returns domain.ErrTokenNotFound on a lookup miss.
	FindByHash(ctx context.Context, tokenHash string, kind domain.AuthTokenKind) (*domain.AuthToken, error)
	// Delete returns domain.ErrTokenNotFound if the row was already gone,
	// which is how a concurrent redemption of the same token loses.
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByUserAndKind(ctx context.Context, userID uuid.UUID, kind domain.AuthTokenKind) error
}

// Mailer delivers account-lifecycle email. Implementations live in
// internal/notification; the core only decides when to send.
type Mailer interface {
	SendVerification(ctx context.Context, to, token string) error
	SendPasswordReset(ctx context.Context, to, token string) error
	SendMFACode(ctx context.Context, to, code string) error
}

// SMSSender delivers short text messages to a phone number.
type SMSSender interface {
	Send(ctx context.Context, phoneNumber, message string) error
}
