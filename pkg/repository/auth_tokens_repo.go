package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/verigate/identity-core/pkg/domain"
)

// AuthTokensRepository handles single-use token persistence. Tokens are
// deleted, not flagged: a deleted row is what makes redemption
// exactly-once under concurrency.
type AuthTokensRepository struct {
	db *sql.DB
}

// NewAuthTokensRepository creates a new auth tokens repository.
func NewAuthTokensRepository(db *sql.DB) *AuthTokensRepository {
	return &AuthTokensRepository{db: db}
}

// Create creates a new token row.
func (r *AuthTokensRepository) Create(ctx context.Context, token *domain.AuthToken) error {
	query := `
		INSERT INTO auth_tokens (id, user_id, token_hash, kind, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		token.ID, token.UserID, token.TokenHash, token.Kind,
		token.CreatedAt, token.ExpiresAt,
	)
	return err
}

// FindByHash retrieves a token by hash and kind.
func (r *AuthTokensRepository) FindByHash(ctx context.Context, tokenHash string, kind domain.AuthTokenKind) (*domain.AuthToken, error) {
	query := `
		SELECT id, user_id, token_hash, kind, created_at, expires_at
		FROM auth_tokens
		WHERE token_hash = $1 AND kind = $2
	`
	token := &domain.AuthToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash, kind).Scan(
		&token.ID, &token.UserID, &token.TokenHash, &token.Kind,
		&token.CreatedAt, &token.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// Delete removes a token row. It returns domain.ErrTokenNotFound if the
// row was already gone, which is how the loser of a concurrent
// redemption race finds out.
func (r *AuthTokensRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM auth_tokens WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.ErrTokenNotFound
	}
	return nil
}

// DeleteByUserAndKind removes all of a user's tokens of one kind.
func (r *AuthTokensRepository) DeleteByUserAndKind(ctx context.Context, userID uuid.UUID, kind domain.AuthTokenKind) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM auth_tokens WHERE user_id = $1 AND kind = $2`, userID, kind)
	return err
}
