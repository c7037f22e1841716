package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fathom-labs/corpus/internal/domain"
)

type UserRepository struct {
	db dbtx
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: pool}
}

func (r *UserRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO users (email, name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		u.Email, u.Name, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx,
		`SELECT email, name, created_at, updated_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) SetTokenHash(ctx context.Context, email, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET token_hash = $1, updated_at = $2 WHERE email = $3`,
		hash, time.Now().UTC(), email,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) GetByTokenHash(ctx context.Context, hash string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRow(ctx,
		`SELECT email, name, created_at, updated_at FROM users WHERE token_hash = $1`,
		hash,
	).Scan(&u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ShareGrantRepository handles persistence of share grants.
type ShareGrantRepository struct {
	db dbtx
}

func NewShareGrantRepository(pool *pgxpool.Pool) *ShareGrantRepository {
	return &ShareGrantRepository{db: pool}
}

// Upsert creates the grant or updates an existing grant's level.
// Sharing the same source with the same user twice is not an error.
func (r *ShareGrantRepository) Upsert(ctx context.Context, grant *domain.ShareGrant) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO share_grants (knowledge_source_id, user_email, shared_by, access_level, shared_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (knowledge_source_id, user_email) DO UPDATE SET
			access_level = EXCLUDED.access_level,
			shared_by = EXCLUDED.shared_by,
			shared_at = EXCLUDED.shared_at`,
		grant.KnowledgeSourceID, grant.UserEmail, grant.SharedBy, grant.AccessLevel, grant.SharedAt,
	)
	return err
}

// Get returns (nil, nil) when no grant exists for the pair.
func (r *ShareGrantRepository) Get(ctx context.Context, knowledgeSourceID, userEmail string) (*domain.ShareGrant, error) {
	var g domain.ShareGrant
	err := r.db.QueryRow(ctx,
		`SELECT knowledge_source_id, user_email, shared_by, access_level, shared_at
		 FROM share_grants WHERE knowledge_source_id = $1 AND user_email = $2`,
		knowledgeSourceID, userEmail,
	).Scan(&g.KnowledgeSourceID, &g.UserEmail, &g.SharedBy, &g.AccessLevel, &g.SharedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &g, nil
}

func (r *ShareGrantRepository) ListBySource(ctx context.Context, knowledgeSourceID string) ([]*domain.ShareGrant, error) {
	rows, err := r.db.Query(ctx,
		`SELECT knowledge_source_id, user_email, shared_by, access_level, shared_at
		 FROM share_grants WHERE knowledge_source_id = $1 ORDER BY shared_at DESC`,
		knowledgeSourceID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []*domain.ShareGrant
	for rows.Next() {
		var g domain.ShareGrant
		if err := rows.Scan(&g.KnowledgeSourceID, &g.UserEmail, &g.SharedBy, &g.AccessLevel, &g.SharedAt); err != nil {
			return nil, err
		}
		grants = append(grants, &g)
	}
	return grants, rows.Err()
}
