package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/media-auth-service/internal/domain"
)

// RefreshTokenRepository manages persisted refresh tokens. Rotate is the
// critical operation: it must admit at most one winner per token even when
// two redemption attempts race across process instances.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	// FindActive returns the row only when it is neither revoked nor expired;
	// all other cases come back as ErrNotFound so callers cannot tell which.
	FindActive(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Rotate atomically revokes oldToken and inserts newToken on the same
	// chain. On reuse of an already-revoked token it revokes the whole chain
	// and returns the stale row together with ErrReuseDetected.
	Rotate(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*domain.RefreshToken, error)
	// Revoke marks the token revoked. Idempotent; unknown tokens are a no-op.
	Revoke(ctx context.Context, token string) error
	RevokeChain(ctx context.Context, chainID string) error
	RevokeAllForAccount(ctx context.Context, accountID string) error
}

type refreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenRepository returns a Postgres-backed implementation.
func NewRefreshTokenRepository(pool *pgxpool.Pool) RefreshTokenRepository {
	return &refreshTokenRepository{pool: pool}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	const query = `
        INSERT INTO refresh_tokens (token, account_id, chain_id, expires_at)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at`

	return r.pool.QueryRow(ctx, query,
		token.Token,
		token.AccountID,
		token.ChainID,
		token.ExpiresAt,
	).Scan(&token.CreatedAt)
}

func (r *refreshTokenRepository) FindActive(ctx context.Context, tokenStr string) (*domain.RefreshToken, error) {
	const query = `
        SELECT token, account_id, chain_id, created_at, expires_at, revoked
        FROM refresh_tokens
        WHERE token=$1 AND revoked=FALSE AND expires_at > NOW()`

	var token domain.RefreshToken
	if err := r.pool.QueryRow(ctx, query, tokenStr).Scan(
		&token.Token,
		&token.AccountID,
		&token.ChainID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Revoked,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &token, nil
}

// Rotate runs the whole redeem inside one transaction. The conditional UPDATE
// is the linearization point: of two concurrent redemptions of the same token,
// exactly one sees a row matching revoked=FALSE; the loser falls through to
// classification and observes the revoked row.
func (r *refreshTokenRepository) Rotate(ctx context.Context, oldToken, newToken string, expiresAt time.Time) (*domain.RefreshToken, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin rotate: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const consume = `
        UPDATE refresh_tokens SET revoked=TRUE
        WHERE token=$1 AND revoked=FALSE AND expires_at > NOW()
        RETURNING account_id, chain_id`

	var accountID, chainID string
	err = tx.QueryRow(ctx, consume, oldToken).Scan(&accountID, &chainID)
	if errors.Is(err, pgx.ErrNoRows) {
		return r.classifyDeadToken(ctx, tx, oldToken)
	}
	if err != nil {
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}

	successor := &domain.RefreshToken{
		Token:     newToken,
		AccountID: accountID,
		ChainID:   chainID,
		ExpiresAt: expiresAt,
	}

	const insert = `
        INSERT INTO refresh_tokens (token, account_id, chain_id, expires_at)
        VALUES ($1, $2, $3, $4)
        RETURNING created_at`
	if err := tx.QueryRow(ctx, insert,
		successor.Token,
		successor.AccountID,
		successor.ChainID,
		successor.ExpiresAt,
	).Scan(&successor.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert successor token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit rotate: %w", err)
	}
	return successor, nil
}

// classifyDeadToken decides why the conditional update matched nothing.
// Redeeming a revoked token is the theft signal: the entire chain gets
// revoked before the error is returned.
func (r *refreshTokenRepository) classifyDeadToken(ctx context.Context, tx pgx.Tx, tokenStr string) (*domain.RefreshToken, error) {
	const query = `
        SELECT token, account_id, chain_id, created_at, expires_at, revoked
        FROM refresh_tokens WHERE token=$1`

	var token domain.RefreshToken
	err := tx.QueryRow(ctx, query, tokenStr).Scan(
		&token.Token,
		&token.AccountID,
		&token.ChainID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.Revoked,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("classify refresh token: %w", err)
	}

	if token.Revoked {
		const revokeChain = `
            UPDATE refresh_tokens SET revoked=TRUE
            WHERE chain_id=$1 AND revoked=FALSE`
		if _, err := tx.Exec(ctx, revokeChain, token.ChainID); err != nil {
			return nil, fmt.Errorf("revoke chain: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit chain revoke: %w", err)
		}
		return &token, ErrReuseDetected
	}
	return nil, ErrExpired
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, token string) error {
	const query = `
        UPDATE refresh_tokens SET revoked=TRUE
        WHERE token=$1 AND revoked=FALSE`
	_, err := r.pool.Exec(ctx, query, token)
	return err
}

func (r *refreshTokenRepository) RevokeChain(ctx context.Context, chainID string) error {
	const query = `
        UPDATE refresh_tokens SET revoked=TRUE
        WHERE chain_id=$1 AND revoked=FALSE`
	_, err := r.pool.Exec(ctx, query, chainID)
	return err
}

func (r *refreshTokenRepository) RevokeAllForAccount(ctx context.Context, accountID string) error {
	const query = `
        UPDATE refresh_tokens SET revoked=TRUE
        WHERE account_id=$1 AND revoked=FALSE`
	_, err := r.pool.Exec(ctx, query, accountID)
	return err
}
