package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/verigate/identity-core/pkg/domain"
)

// UsersRepository handles user persistence.
type UsersRepository struct {
	db *sql.DB
}

// NewUsersRepository creates a new users repository.
func NewUsersRepository(db *sql.DB) *UsersRepository {
	return &UsersRepository{db: db}
}

const userColumns = `
	id, email, name, password_hash, email_verified,
	mfa_enabled, mfa_method, mfa_secret, mfa_phone_number, mfa_backup_codes, mfa_verified,
	created_at, updated_at
`

// Create creates a new user.
func (r *UsersRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, password_hash, email_verified, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash, user.EmailVerified,
		user.CreatedAt, user.UpdatedAt,
	)
	return err
}

// GetByID retrieves a user by ID.
func (r *UsersRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by normalized (lowercased) email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, email))
}

// ExistsByEmail checks whether an account exists for the email.
func (r *UsersRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	err := r.db.QueryRowContext(ctx, query, email).Scan(&exists)
	return exists, err
}

// SetEmailVerified marks the user's email as verified.
func (r *UsersRepository) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE users SET email_verified = true, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, id)
}

// UpdatePasswordHash installs a new password hash.
func (r *UsersRepository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.exec(ctx, query, id, hash)
}

// UpdateMFA replaces the user's MFA configuration. A zero-value settings
// struct clears every MFA field.
func (r *UsersRepository) UpdateMFA(ctx context.Context, id uuid.UUID, settings domain.MFASettings) error {
	query := `
		UPDATE users
		SET mfa_enabled = $2, mfa_method = $3, mfa_secret = $4,
		    mfa_phone_number = $5, mfa_backup_codes = $6, mfa_verified = $7,
		    updated_at = NOW()
		WHERE id = $1
	`
	return r.exec(ctx, query, id,
		settings.Enabled, string(settings.Method), settings.Secret,
		settings.PhoneNumber, pq.Array(settings.BackupCodes), settings.Verified,
	)
}

// ConsumeBackupCode removes code from the user's backup-code set. The
// single conditional UPDATE makes the membership test and the removal one
// atomic operation: of N concurrent redemptions of the same code, exactly
// one observes a row change.
func (r *UsersRepository) ConsumeBackupCode(ctx context.Context, id uuid.UUID, code string) (bool, error) {
	query := `
		UPDATE users
		SET mfa_backup_codes = array_remove(mfa_backup_codes, $2), updated_at = NOW()
		WHERE id = $1 AND $2 = ANY(mfa_backup_codes)
	`
	result, err := r.db.ExecContext(ctx, query, id, code)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

func (r *UsersRepository) exec(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UsersRepository) scanUser(row *sql.Row) (*domain.User, error) {
	user := &domain.User{}
	var method sql.NullString
	var backupCodes pq.StringArray
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.EmailVerified,
		&user.MFA.Enabled, &method, &user.MFA.Secret, &user.MFA.PhoneNumber,
		&backupCodes, &user.MFA.Verified,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if method.Valid {
		user.MFA.Method = domain.MFAMethod(method.String)
	}
	user.MFA.BackupCodes = backupCodes
	return user, nil
}
