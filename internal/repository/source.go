package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/pagination"
)

type SourceRepository struct {
	db dbtx
}

func NewSourceRepository(pool *pgxpool.Pool) *SourceRepository {
	return &SourceRepository{db: pool}
}

func (r *SourceRepository) Create(ctx context.Context, s *domain.KnowledgeSource) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_sources (id, name, description, source_type, source_url, created_by, status, error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		s.ID, s.Name, s.Description, s.SourceType, s.SourceURL, s.CreatedBy, s.Status, nullableString(s.Error), s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *SourceRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeSource, error) {
	return r.getOne(ctx,
		`SELECT id, name, description, source_type, source_url, created_by, status, error, created_at, updated_at
		 FROM knowledge_sources WHERE id = $1`,
		id,
	)
}

func (r *SourceRepository) GetByNameAndOwner(ctx context.Context, name, owner string) (*domain.KnowledgeSource, error) {
	return r.getOne(ctx,
		`SELECT id, name, description, source_type, source_url, created_by, status, error, created_at, updated_at
		 FROM knowledge_sources WHERE name = $1 AND created_by = $2`,
		name, owner,
	)
}

func (r *SourceRepository) getOne(ctx context.Context, query string, args ...any) (*domain.KnowledgeSource, error) {
	var s domain.KnowledgeSource
	var errMsg *string
	err := r.db.QueryRow(ctx, query, args...).Scan(
		&s.ID, &s.Name, &s.Description, &s.SourceType, &s.SourceURL,
		&s.CreatedBy, &s.Status, &errMsg, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSourceNotFound
		}
		return nil, err
	}
	if errMsg != nil {
		s.Error = *errMsg
	}
	return &s, nil
}

// ListAccessible returns sources the user owns or holds a share grant
// for, newest first, with keyset pagination on (created_at, id).
func (r *SourceRepository) ListAccessible(ctx context.Context, userEmail, nameContains string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.KnowledgeSource], error) {
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT s.id, s.name, s.description, s.source_type, s.source_url, s.created_by, s.status, s.error, s.created_at, s.updated_at
		FROM knowledge_sources s
		WHERE (s.created_by = $1
		       OR EXISTS (
		           SELECT 1 FROM share_grants g
		           WHERE g.knowledge_source_id = s.id AND g.user_email = $1
		       ))`
	args := []any{userEmail}

	if nameContains != "" {
		args = append(args, "%"+nameContains+"%")
		query += ` AND s.name ILIKE $2`
	}

	if cursor != nil {
		args = append(args, cursor.CreatedAt, cursor.LastID)
		query += ` AND (s.created_at, s.id) < ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`
	}

	args = append(args, limit+1)
	query += `
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items, err := scanSourceRows(rows)
	if err != nil {
		return nil, err
	}

	hasMore := len(items) > limit
	if hasMore {
		items = items[:limit]
	}

	var nextCursor string
	if hasMore {
		nextCursor = pagination.CreateNextCursor(items, limit,
			func(s *domain.KnowledgeSource) string { return s.ID },
			func(s *domain.KnowledgeSource) time.Time { return s.CreatedAt })
	}

	return &pagination.PageResult[*domain.KnowledgeSource]{
		Items:   items,
		Cursor:  nextCursor,
		HasMore: hasMore,
	}, nil
}

// ListStale returns ready sources last ingested before the cutoff,
// oldest first. The refresh worker uses this to pick re-ingestion
// candidates.
func (r *SourceRepository) ListStale(ctx context.Context, olderThan time.Time) ([]*domain.KnowledgeSource, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, name, description, source_type, source_url, created_by, status, error, created_at, updated_at
		 FROM knowledge_sources
		 WHERE status = $1 AND updated_at < $2
		 ORDER BY updated_at ASC`,
		domain.SourceStatusReady, olderThan,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSourceRows(rows)
}

func (r *SourceRepository) SetStatus(ctx context.Context, id string, status domain.SourceStatus, errMsg string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE knowledge_sources SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		status, nullableString(errMsg), time.Now().UTC(), id,
	)
	return err
}

func (r *SourceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM knowledge_sources WHERE id = $1`, id)
	return err
}

func scanSourceRows(rows pgx.Rows) ([]*domain.KnowledgeSource, error) {
	var items []*domain.KnowledgeSource
	for rows.Next() {
		var s domain.KnowledgeSource
		var errMsg *string
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Description, &s.SourceType, &s.SourceURL,
			&s.CreatedBy, &s.Status, &errMsg, &s.CreatedAt, &s.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if errMsg != nil {
			s.Error = *errMsg
		}
		items = append(items, &s)
	}
	return items, rows.Err()
}
