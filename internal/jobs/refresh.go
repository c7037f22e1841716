package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/service"
)

// StaleSourceLister finds ready sources whose last ingestion predates
// the cutoff.
type StaleSourceLister interface {
	ListStale(ctx context.Context, olderThan time.Time) ([]*domain.KnowledgeSource, error)
}

// Reingester re-runs ingestion for one knowledge source on behalf of a
// user.
type Reingester interface {
	Refresh(ctx context.Context, knowledgeSourceID, userEmail string, progress service.ProgressFunc) (*service.IngestOutcome, error)
}

// SourceRefresher re-ingests knowledge sources that have not been
// updated within maxAge. Refreshes run as the source owner, so sources
// whose owner lost origin authorization are skipped until the owner
// re-authorizes.
type SourceRefresher struct {
	sources StaleSourceLister
	ingest  Reingester
	maxAge  time.Duration
	now     func() time.Time
}

func NewSourceRefresher(sources StaleSourceLister, ingest Reingester, maxAge time.Duration) *SourceRefresher {
	return &SourceRefresher{
		sources: sources,
		ingest:  ingest,
		maxAge:  maxAge,
		now:     time.Now,
	}
}

// Run implements the Task interface.
func (r *SourceRefresher) Run(ctx context.Context) error {
	cutoff := r.now().UTC().Add(-r.maxAge)

	stale, err := r.sources.ListStale(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to list stale sources: %w", err)
	}

	if len(stale) == 0 {
		return nil
	}

	log.Printf("refreshing %d stale knowledge sources", len(stale))

	for _, source := range stale {
		r.refreshOne(ctx, source)
	}

	return nil
}

func (r *SourceRefresher) refreshOne(ctx context.Context, source *domain.KnowledgeSource) {
	outcome, err := r.ingest.Refresh(ctx, source.ID, source.CreatedBy, nil)
	if err != nil {
		if errors.Is(err, domain.ErrIngestionInProgress) {
			return
		}
		log.Printf("refresh of %s failed: %v", source.Name, err)
		return
	}

	// Enumeration rejected by the origin surfaces as an outcome with an
	// auth URL, not an error.
	if outcome.AuthURL != "" {
		log.Printf("skipping refresh of %s: owner %s must re-authorize the origin", source.Name, source.CreatedBy)
		return
	}

	log.Printf("refreshed %s: %d files processed, %d chunks stored", source.Name, outcome.Processed, outcome.ChunkCount)
}
