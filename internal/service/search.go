package service

import (
	"context"
	"fmt"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/telemetry"
)

const defaultSearchLimit = 5

// ChunkMatch is one retrieved chunk with its similarity score.
type ChunkMatch struct {
	FileID     string  `json:"file_id"`
	FileName   string  `json:"file_name"`
	FilePath   string  `json:"file_path"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// SearchInput represents the input for a similarity search
type SearchInput struct {
	UserEmail         string
	KnowledgeSourceID string
	Query             string
	Limit             int
	Skip              int
	MinScore          *float64
}

// SearchOutput is a ranked page of matches plus the qualifying total.
//
// Total counts qualifying matches within the fetched candidate window
// (skip+limit candidates), not across the whole store; with a MinScore
// filter it is an approximation of the true total.
type SearchOutput struct {
	Results   []*ChunkMatch `json:"results"`
	Total     int           `json:"total"`
	Limit     int           `json:"limit"`
	Skip      int           `json:"skip"`
	Message   string        `json:"message"`
	NextSteps string        `json:"next_steps,omitempty"`
}

// SearchService embeds a query and retrieves the nearest chunks of one
// knowledge source, gated by read access.
type SearchService struct {
	sourceRepo SourceRepositoryInterface
	chunkRepo  ChunkRepositoryInterface
	access     *AccessService
	embedder   EmbeddingClient
}

func NewSearchService(
	sourceRepo SourceRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	access *AccessService,
	embedder EmbeddingClient,
) *SearchService {
	return &SearchService{
		sourceRepo: sourceRepo,
		chunkRepo:  chunkRepo,
		access:     access,
		embedder:   embedder,
	}
}

// Search returns the page [skip, skip+limit) of chunks ranked by cosine
// similarity to the query. The store has no server-side skip, so the
// engine fetches skip+limit candidates and slices. An optional MinScore
// drops candidates below it before the total is computed and the page
// sliced.
func (s *SearchService) Search(ctx context.Context, input SearchInput) (*SearchOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		UserEmail: input.UserEmail,
		SourceID:  input.KnowledgeSourceID,
		Operation: "search",
	})
	defer span.End()

	if input.Query == "" || input.KnowledgeSourceID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation,
			"both query and knowledge source ID are required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	skip := input.Skip
	if skip < 0 {
		skip = 0
	}

	source, err := s.sourceRepo.GetByID(ctx, input.KnowledgeSourceID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, input.UserEmail, source, domain.AccessLevelRead); err != nil {
		return nil, err
	}

	embedding, err := s.embedder.GenerateEmbedding(ctx, input.Query)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to embed query", err)
	}

	// One row beyond the page window so a full page can signal that
	// more qualifying matches exist.
	candidates, err := s.chunkRepo.SearchSimilar(ctx, embedding, source.ID, skip+limit+1)
	if err != nil {
		return nil, err
	}

	matches := candidates
	if input.MinScore != nil {
		matches = matches[:0:0]
		for _, c := range candidates {
			if c.Score >= *input.MinScore {
				matches = append(matches, c)
			}
		}
	}

	total := len(matches)
	pageStart := skip
	if pageStart > total {
		pageStart = total
	}
	pageEnd := skip + limit
	if pageEnd > total {
		pageEnd = total
	}
	page := matches[pageStart:pageEnd]

	out := &SearchOutput{
		Results: page,
		Total:   total,
		Limit:   limit,
		Skip:    skip,
		Message: fmt.Sprintf("Found %d relevant chunks. Showing %d results from %d to %d.",
			total, len(page), skip+1, skip+len(page)),
	}
	if skip+limit < total {
		out.NextSteps = fmt.Sprintf(
			"If the information you need is not in these results, re-submit with skip=%d to receive the next batch.",
			skip+limit)
	}
	return out, nil
}
