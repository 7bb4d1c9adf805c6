package domain

import (
	"time"

	"github.com/google/uuid"
)

// User represents the account.
type User struct {
	ID            uuid.UUID
	Email         string
	Name          *string
	PasswordHash  string
	EmailVerified bool
	MFA           MFASettings
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
