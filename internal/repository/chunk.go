package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/service"
)

// ChunkRepository handles persistence of embedded document chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

// InsertChunks stores a batch of embedded chunks. A conflicting
// (source, file, index) row is replaced so a re-run of a file during
// the same ingestion never duplicates chunks.
func (r *ChunkRepository) InsertChunks(ctx context.Context, chunks []domain.EmbeddedChunk) error {
	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO embedded_chunks
				(knowledge_source_id, file_id, file_name, file_path, chunk_index, content, embedding, mime_type, last_modified, size, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (knowledge_source_id, file_id, chunk_index) DO UPDATE SET
				content = EXCLUDED.content,
				embedding = EXCLUDED.embedding,
				file_name = EXCLUDED.file_name,
				file_path = EXCLUDED.file_path,
				mime_type = EXCLUDED.mime_type,
				last_modified = EXCLUDED.last_modified,
				size = EXCLUDED.size`,
			c.KnowledgeSourceID,
			c.FileID,
			c.FileName,
			c.FilePath,
			c.ChunkIndex,
			c.Text,
			pgvector.NewVector(c.Embedding),
			nullableString(c.MimeType),
			nullableTime(c.LastModified),
			c.Size,
			createdAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *ChunkRepository) DeleteBySource(ctx context.Context, knowledgeSourceID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM embedded_chunks WHERE knowledge_source_id = $1`, knowledgeSourceID)
	return err
}

// SearchSimilar returns the chunks of one source nearest to the query
// embedding, best first.
func (r *ChunkRepository) SearchSimilar(ctx context.Context, embedding []float32, knowledgeSourceID string, limit int) ([]*service.ChunkMatch, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT file_id, file_name, file_path, chunk_index, content,
		        1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM embedded_chunks
		 WHERE knowledge_source_id = $2
		 ORDER BY score DESC
		 LIMIT $3`,
		pgvector.NewVector(embedding), knowledgeSourceID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*service.ChunkMatch, 0)
	for rows.Next() {
		var m service.ChunkMatch
		if err := rows.Scan(&m.FileID, &m.FileName, &m.FilePath, &m.ChunkIndex, &m.Text, &m.Score); err != nil {
			return nil, err
		}
		results = append(results, &m)
	}

	return results, rows.Err()
}

// CountBySource reports how many chunks a source currently holds.
func (r *ChunkRepository) CountBySource(ctx context.Context, knowledgeSourceID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM embedded_chunks WHERE knowledge_source_id = $1`,
		knowledgeSourceID,
	).Scan(&n)
	return n, err
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
