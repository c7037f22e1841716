package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/graph"
)

// MSTokenRepository persists per-user Microsoft OAuth tokens. It
// implements graph.TokenStore.
type MSTokenRepository struct {
	db dbtx
}

func NewMSTokenRepository(pool *pgxpool.Pool) *MSTokenRepository {
	return &MSTokenRepository{db: pool}
}

func (r *MSTokenRepository) GetTokens(ctx context.Context, userEmail string) (*graph.Tokens, error) {
	var t graph.Tokens
	err := r.db.QueryRow(ctx,
		`SELECT access_token, refresh_token, expires_at FROM ms_tokens WHERE user_email = $1`,
		userEmail,
	).Scan(&t.AccessToken, &t.RefreshToken, &t.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOriginNotAuthorized
		}
		return nil, err
	}
	return &t, nil
}

func (r *MSTokenRepository) SaveTokens(ctx context.Context, userEmail string, tokens *graph.Tokens) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO ms_tokens (user_email, access_token, refresh_token, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_email) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at`,
		userEmail, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt, time.Now().UTC(),
	)
	return err
}
