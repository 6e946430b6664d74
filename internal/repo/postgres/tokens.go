package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/taskhub/taskhub/internal/observability"
)

var ErrTokenNotFound = errors.New("token not found")

type TokenRow struct {
	ID         string
	UserID     string
	TokenHash  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

type TokensRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewTokensRepo(pool *pgxpool.Pool, prom *observability.Prom) *TokensRepo {
	return &TokensRepo{pool: pool, prom: prom}
}

func (r *TokensRepo) observe(op string, fn func() error) error {
	if r.prom == nil {
		return fn()
	}
	return r.prom.ObserveDB(op, fn)
}

func (r *TokensRepo) Insert(ctx context.Context, row TokenRow) error {
	return r.observe("tokens.insert", func() error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO api_tokens (id, user_id, token_hash, created_at)
			VALUES ($1,$2,$3,$4)
			`,
			row.ID, row.UserID, row.TokenHash, row.CreatedAt,
		)
		return err
	})
}

func (r *TokensRepo) GetByID(ctx context.Context, id string) (TokenRow, error) {
	var row TokenRow

	err := r.observe("tokens.get_by_id", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT id, user_id, token_hash, created_at, last_used_at
			FROM api_tokens
			WHERE id = $1
		`, id).Scan(
			&row.ID,
			&row.UserID,
			&row.TokenHash,
			&row.CreatedAt,
			&row.LastUsedAt,
		)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return TokenRow{}, ErrTokenNotFound
		}

		return TokenRow{}, err
	}

	return row, nil
}

// Delete revokes a single token (logout path).
func (r *TokensRepo) Delete(ctx context.Context, id string) error {
	return r.observe("tokens.delete", func() error {
		_, err := r.pool.Exec(ctx, `DELETE FROM api_tokens WHERE id = $1`, id)
		return err
	})
}

// Touch records when the token last authenticated a request. Best effort,
// callers ignore the error.
func (r *TokensRepo) Touch(ctx context.Context, id string) error {
	return r.observe("tokens.touch", func() error {
		_, err := r.pool.Exec(ctx, `UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1`, id)
		return err
	})
}

// ReplaceForUser rotates a user's session on login: every existing token is
// revoked and the replacement inserted in one transaction, so the user never
// ends up with zero or two live sessions.
func (r *TokensRepo) ReplaceForUser(ctx context.Context, userID string, row TokenRow) error {
	return r.observe("tokens.replace_for_user", func() error {
		tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})

		if err != nil {
			return err
		}

		defer func() { _ = tx.Rollback(ctx) }()

		_, err = tx.Exec(ctx, `DELETE FROM api_tokens WHERE user_id = $1`, userID)

		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO api_tokens (id, user_id, token_hash, created_at)
			VALUES ($1,$2,$3,$4)
			`,
			row.ID, row.UserID, row.TokenHash, row.CreatedAt,
		)

		if err != nil {
			return err
		}

		return tx.Commit(ctx)
	})
}
