package auth

import (
	"fmt"
	"html"
	"net/mail"
	"strings"
	"unicode"

	"github.com/verigate/identity-core/pkg/domain"
)

const maxEmailLength = 254 // RFC 5321

// ValidateEmail validates an email address for format and length.
// Field-level validation failures are safe to report specifically.
func ValidateEmail(email string) error {
	if email == "" {
		return domain.ErrInvalidEmail
	}
	if len(email) > maxEmailLength {
		return domain.ErrInvalidEmail
	}
	if _, err := mail.ParseAddress(NormalizeEmail(email)); err != nil {
		return domain.ErrInvalidEmail
	}
	return nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
// All lookups and storage go through this, so "A@Example.com" and
// "a@example.com" are the same account.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SanitizeName sanitizes a display-name field: trims, strips control
// characters, and HTML-escapes.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	return html.EscapeString(name)
}

// PasswordPolicy defines password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
}

// DefaultPasswordPolicy returns the baseline policy.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{MinLength: 8}
}

// ValidatePassword checks if a password meets the policy requirements.
// The returned error names the failing requirement; unlike credential
// failures, field-level errors are safe to be specific.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	if p.MinLength > 0 && len(password) < p.MinLength {
		return fmt.Errorf("%w: must be at least %d characters long", domain.ErrWeakPassword, p.MinLength)
	}
	if p.RequireUppercase && !strings.ContainsFunc(password, unicode.IsUpper) {
		return fmt.Errorf("%w: must contain at least one uppercase letter", domain.ErrWeakPassword)
	}
	if p.RequireLowercase && !strings.ContainsFunc(password, unicode.IsLower) {
		return fmt.Errorf("%w: must contain at least one lowercase letter", domain.ErrWeakPassword)
	}
	if p.RequireNumber && !strings.ContainsFunc(password, unicode.IsNumber) {
		return fmt.Errorf("%w: must contain at least one number", domain.ErrWeakPassword)
	}
	return nil
}
