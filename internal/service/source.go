package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/extract"
	"github.com/fathom-labs/corpus/internal/pagination"
	"github.com/fathom-labs/corpus/internal/telemetry"
	"github.com/google/uuid"
)

// defaultIngestWorkers bounds concurrent download/extract/chunk work in
// phase 1. Files are independent; failure isolation is per file.
const defaultIngestWorkers = 4

// SourceRepositoryInterface defines the repository interface for knowledge source persistence
type SourceRepositoryInterface interface {
	Create(ctx context.Context, s *domain.KnowledgeSource) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeSource, error)
	GetByNameAndOwner(ctx context.Context, name, owner string) (*domain.KnowledgeSource, error)
	ListAccessible(ctx context.Context, userEmail, nameContains string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.KnowledgeSource], error)
	SetStatus(ctx context.Context, id string, status domain.SourceStatus, errMsg string) error
	Delete(ctx context.Context, id string) error
}

// ChunkRepositoryInterface defines the repository interface for embedded chunk persistence
type ChunkRepositoryInterface interface {
	InsertChunks(ctx context.Context, chunks []domain.EmbeddedChunk) error
	DeleteBySource(ctx context.Context, knowledgeSourceID string) error
	SearchSimilar(ctx context.Context, embedding []float32, knowledgeSourceID string, limit int) ([]*ChunkMatch, error)
}

// FileOrigin enumerates and downloads files from one kind of external
// origin (OneDrive, S3). The user email selects the credential used for
// origins with per-user authorization.
type FileOrigin interface {
	ListFiles(ctx context.Context, userEmail, rootPath string) ([]domain.RemoteFile, error)
	DownloadFile(ctx context.Context, userEmail, fileID string) ([]byte, error)
}

// ProgressFunc receives incremental progress during an ingestion run:
// after each file in phase 1 and after each batch in phase 2.
type ProgressFunc func(current, total int, message string)

// FailedFile records one file that could not be processed during a run.
type FailedFile struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// IngestOutcome is the structured result of one ingestion run.
type IngestOutcome struct {
	Processed  int                 `json:"processed"`
	Succeeded  int                 `json:"success"`
	Failed     []FailedFile        `json:"failed"`
	ChunkCount int                 `json:"chunk_count"`
	Status     domain.SourceStatus `json:"status"`
	Message    string              `json:"message"`
	NextSteps  string              `json:"next_steps,omitempty"`
	// AuthURL is set when the origin rejected the user's credentials;
	// the caller should authorize there and retry.
	AuthURL string `json:"auth_url,omitempty"`
}

// DeleteOutcome is the result of deleting a knowledge source by name.
// Deleting a source that does not exist is not an error.
type DeleteOutcome struct {
	Found             bool   `json:"found"`
	KnowledgeSourceID string `json:"knowledge_source_id,omitempty"`
	Name              string `json:"name"`
	Message           string `json:"message"`
}

// SourceService owns the knowledge-source lifecycle: create with
// synchronous ingestion, refresh (cleanup before rebuild), idempotent
// delete, and listing.
type SourceService struct {
	sourceRepo SourceRepositoryInterface
	chunkRepo  ChunkRepositoryInterface
	userRepo   UserRepositoryInterface
	access     *AccessService
	embedder   EmbeddingClient
	origins    map[domain.SourceType]FileOrigin
	uuidGen    UUIDGenerator
	chunkCfg   ChunkConfig
	workers    int

	// extractText is swapped in tests; defaults to extract.Text
	extractText func(buf []byte, filename, mimeType string) (string, error)

	mu         sync.Mutex
	inProgress map[string]struct{}
}

func NewSourceService(
	sourceRepo SourceRepositoryInterface,
	chunkRepo ChunkRepositoryInterface,
	userRepo UserRepositoryInterface,
	access *AccessService,
	embedder EmbeddingClient,
	origins map[domain.SourceType]FileOrigin,
) *SourceService {
	return &SourceService{
		sourceRepo:  sourceRepo,
		chunkRepo:   chunkRepo,
		userRepo:    userRepo,
		access:      access,
		embedder:    embedder,
		origins:     origins,
		uuidGen:     &DefaultUUIDGenerator{},
		chunkCfg:    DefaultChunkConfig(),
		workers:     defaultIngestWorkers,
		extractText: extract.Text,
		inProgress:  make(map[string]struct{}),
	}
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// AddSourceInput represents the input for creating a knowledge source
type AddSourceInput struct {
	Name        string
	Description string
	SourceType  domain.SourceType
	SourceURL   string
	UserEmail   string
	UserName    string
	Progress    ProgressFunc
}

// Add creates a knowledge source and runs ingestion synchronously. The
// source record is created in the processing state before any remote
// work so the caller can observe the lifecycle.
func (s *SourceService) Add(ctx context.Context, input AddSourceInput) (*domain.KnowledgeSource, *IngestOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "SourceService.Add", telemetry.SpanAttributes{
		UserEmail: input.UserEmail,
		Operation: "add",
	})
	defer span.End()

	if input.Name == "" || input.Description == "" || input.SourceURL == "" {
		return nil, nil, domain.NewDomainError(domain.ErrCodeValidation,
			"missing required parameters: name, description, and path are required")
	}
	if input.UserEmail == "" {
		return nil, nil, domain.NewDomainError(domain.ErrCodeValidation,
			"user email is required to create a knowledge source")
	}
	sourceType := input.SourceType
	if sourceType == "" {
		sourceType = domain.SourceTypeOneDrive
	}
	if _, ok := s.origins[sourceType]; !ok {
		return nil, nil, domain.ErrInvalidSourceType
	}

	if err := s.ensureUser(ctx, input.UserEmail, input.UserName); err != nil {
		return nil, nil, err
	}

	// Name uniqueness per owner
	if _, err := s.sourceRepo.GetByNameAndOwner(ctx, input.Name, input.UserEmail); err == nil {
		return nil, nil, domain.ErrSourceAlreadyExists
	} else if !errors.Is(err, domain.ErrSourceNotFound) {
		return nil, nil, err
	}

	now := time.Now().UTC()
	source := domain.NewKnowledgeSource(
		s.uuidGen.NewString(), input.Name, input.Description,
		sourceType, input.SourceURL, input.UserEmail, now,
	)
	if err := domain.ValidateKnowledgeSource(source); err != nil {
		return nil, nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid knowledge source", err)
	}

	if err := s.sourceRepo.Create(ctx, source); err != nil {
		return nil, nil, err
	}

	outcome, err := s.runIngestion(ctx, source, input.UserEmail, input.Progress, false)
	if err != nil {
		return source, nil, err
	}
	source.Status = outcome.Status
	return source, outcome, nil
}

// Refresh deletes all prior chunks for the source and re-runs ingestion.
// Requires write access (ownership or a write grant).
func (s *SourceService) Refresh(ctx context.Context, knowledgeSourceID, userEmail string, progress ProgressFunc) (*IngestOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "SourceService.Refresh", telemetry.SpanAttributes{
		UserEmail: userEmail,
		SourceID:  knowledgeSourceID,
		Operation: "refresh",
	})
	defer span.End()

	if knowledgeSourceID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "knowledge source ID is required")
	}

	source, err := s.sourceRepo.GetByID(ctx, knowledgeSourceID)
	if err != nil {
		return nil, err
	}

	if err := s.access.RequireAccess(ctx, userEmail, source, domain.AccessLevelWrite); err != nil {
		return nil, err
	}

	return s.runIngestion(ctx, source, userEmail, progress, true)
}

// Delete removes a source and all its chunks, looked up by (name, owner).
// A missing source yields a not-found outcome, not an error, so deletion
// is idempotent for the caller.
func (s *SourceService) Delete(ctx context.Context, name, userEmail string) (*DeleteOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "SourceService.Delete", telemetry.SpanAttributes{
		UserEmail: userEmail,
		Operation: "delete",
	})
	defer span.End()

	if name == "" || userEmail == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation,
			"both name and user email are required to delete a knowledge source")
	}

	source, err := s.sourceRepo.GetByNameAndOwner(ctx, name, userEmail)
	if err != nil {
		if errors.Is(err, domain.ErrSourceNotFound) {
			return &DeleteOutcome{
				Found:   false,
				Name:    name,
				Message: fmt.Sprintf("no knowledge source named %q found for this user", name),
			}, nil
		}
		return nil, err
	}

	if err := s.sourceRepo.Delete(ctx, source.ID); err != nil {
		return nil, err
	}
	if err := s.chunkRepo.DeleteBySource(ctx, source.ID); err != nil {
		return nil, err
	}

	return &DeleteOutcome{
		Found:             true,
		KnowledgeSourceID: source.ID,
		Name:              name,
		Message:           fmt.Sprintf("knowledge source %q and all associated data deleted", name),
	}, nil
}

type ListSourcesInput struct {
	UserEmail    string
	NameContains string
	Cursor       string
	Limit        int
}

type ListSourcesOutput struct {
	Items   []*domain.KnowledgeSource
	Cursor  string
	HasMore bool
}

// List returns the knowledge sources the user owns or has been granted
// access to, newest first, with cursor pagination.
func (s *SourceService) List(ctx context.Context, input ListSourcesInput) (*ListSourcesOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "SourceService.List", telemetry.SpanAttributes{
		UserEmail: input.UserEmail,
		Operation: "list",
	})
	defer span.End()

	if input.UserEmail == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "user email is required to list knowledge sources")
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	result, err := s.sourceRepo.ListAccessible(ctx, input.UserEmail, input.NameContains, cursor, limit)
	if err != nil {
		return nil, err
	}

	return &ListSourcesOutput{
		Items:   result.Items,
		Cursor:  result.Cursor,
		HasMore: result.HasMore,
	}, nil
}

// GetByID looks up a knowledge source, enforcing read access.
func (s *SourceService) GetByID(ctx context.Context, knowledgeSourceID, userEmail string) (*domain.KnowledgeSource, error) {
	source, err := s.sourceRepo.GetByID(ctx, knowledgeSourceID)
	if err != nil {
		return nil, err
	}
	if err := s.access.RequireAccess(ctx, userEmail, source, domain.AccessLevelRead); err != nil {
		return nil, err
	}
	return source, nil
}

func (s *SourceService) ensureUser(ctx context.Context, email, name string) error {
	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return err
	}
	return s.userRepo.Create(ctx, domain.NewUser(email, name, time.Now().UTC()))
}

// pendingFile holds one file's chunks between phase 1 and phase 2.
type pendingFile struct {
	index  int
	chunks []domain.EmbeddedChunk
}

// runIngestion executes enumerate, then the two-phase pipeline:
// phase 1 downloads, extracts and chunks each file (failures recorded
// per file); phase 2 embeds and persists chunks in fixed-size batches
// spanning file boundaries (failures recorded per batch, attributed to
// the originating files). The source always ends in a terminal state.
func (s *SourceService) runIngestion(ctx context.Context, source *domain.KnowledgeSource, userEmail string, progress ProgressFunc, cleanupFirst bool) (*IngestOutcome, error) {
	if !s.tryLock(source.ID) {
		return nil, domain.ErrIngestionInProgress
	}
	defer s.unlock(source.ID)

	if progress == nil {
		progress = func(int, int, string) {}
	}

	if cleanupFirst {
		// Cleanup before rebuild: a full re-ingest, not incremental
		// diffing. Held under the per-source lock so a concurrent run
		// cannot interleave with the delete.
		if err := s.sourceRepo.SetStatus(ctx, source.ID, domain.SourceStatusProcessing, ""); err != nil {
			return nil, err
		}
		if err := s.chunkRepo.DeleteBySource(ctx, source.ID); err != nil {
			s.writeTerminalStatus(ctx, source.ID, domain.SourceStatusError, err.Error())
			return nil, err
		}
	}

	origin, ok := s.origins[source.SourceType]
	if !ok {
		return nil, domain.NewDomainError(domain.ErrCodeInternalError,
			fmt.Sprintf("no file origin registered for source type %q", source.SourceType))
	}

	files, err := origin.ListFiles(ctx, userEmail, source.SourceURL)
	if err != nil {
		var authErr *domain.OriginAuthError
		if errors.As(err, &authErr) {
			s.writeTerminalStatus(ctx, source.ID, domain.SourceStatusError, "origin authorization required")
			return &IngestOutcome{
				Status:    domain.SourceStatusError,
				Message:   fmt.Sprintf("failed to list files: %v", err),
				NextSteps: "Authorize access at the provided URL, then retry.",
				AuthURL:   authErr.AuthURL,
			}, nil
		}
		s.writeTerminalStatus(ctx, source.ID, domain.SourceStatusError, err.Error())
		return nil, fmt.Errorf("failed to list files: %w", err)
	}

	// Phase 1: download, extract, chunk. Per-file failures are recorded
	// and do not abort the run.
	pending := make([]*pendingFile, 0, len(files))
	failed := make(map[string]string)
	var mu sync.Mutex
	var done int

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pf, ferr := s.processFile(gctx, origin, source, userEmail, i, file)
			mu.Lock()
			defer mu.Unlock()
			if ferr != nil {
				failed[file.Name] = ferr.Error()
			} else {
				pending = append(pending, pf)
			}
			done++
			progress(done, len(files), fmt.Sprintf("processed file %s", file.Name))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.writeTerminalStatus(ctx, source.ID, domain.SourceStatusError, err.Error())
		return nil, err
	}

	// Workers finish out of order; restore enumeration order so chunk
	// batches are deterministic.
	sort.Slice(pending, func(a, b int) bool { return pending[a].index < pending[b].index })

	var allChunks []domain.EmbeddedChunk
	for _, pf := range pending {
		allChunks = append(allChunks, pf.chunks...)
	}

	// Phase 2: embed and persist in batches across file boundaries. A
	// failed batch marks its files failed; other batches proceed.
	inserted := 0
	totalBatches := (len(allChunks) + embeddingBatchSize - 1) / embeddingBatchSize
	for b := 0; b < totalBatches; b++ {
		if err := ctx.Err(); err != nil {
			s.writeTerminalStatus(ctx, source.ID, domain.SourceStatusError, err.Error())
			return nil, err
		}

		start := b * embeddingBatchSize
		end := start + embeddingBatchSize
		if end > len(allChunks) {
			end = len(allChunks)
		}
		batch := allChunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		embeddings, err := s.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			s.failBatch(batch, fmt.Sprintf("embedding error: %v", err), failed)
			progress(b+1, totalBatches, fmt.Sprintf("batch %d/%d failed", b+1, totalBatches))
			continue
		}
		for i := range batch {
			batch[i].Embedding = embeddings[i]
		}

		if err := s.chunkRepo.InsertChunks(ctx, batch); err != nil {
			s.failBatch(batch, fmt.Sprintf("failed to store chunks: %v", err), failed)
			progress(b+1, totalBatches, fmt.Sprintf("batch %d/%d failed", b+1, totalBatches))
			continue
		}

		inserted += len(batch)
		progress(b+1, totalBatches, fmt.Sprintf("stored batch %d/%d (%d chunks)", b+1, totalBatches, len(batch)))
	}

	outcome := s.buildOutcome(len(files), failed, inserted)
	s.writeTerminalStatus(ctx, source.ID, outcome.Status, statusError(outcome))
	return outcome, nil
}

func (s *SourceService) processFile(ctx context.Context, origin FileOrigin, source *domain.KnowledgeSource, userEmail string, index int, file domain.RemoteFile) (*pendingFile, error) {
	buf, err := origin.DownloadFile(ctx, userEmail, file.ID)
	if err != nil {
		return nil, fmt.Errorf("download failed: %w", err)
	}

	text, err := s.extractText(buf, file.Name, file.MimeType)
	if err != nil {
		return nil, err
	}

	chunks, err := chunkText(text, s.chunkCfg)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, errors.New("no text chunks produced")
	}

	now := time.Now().UTC()
	out := make([]domain.EmbeddedChunk, len(chunks))
	for i, chunk := range chunks {
		out[i] = domain.EmbeddedChunk{
			KnowledgeSourceID: source.ID,
			FileID:            file.ID,
			FileName:          file.Name,
			FilePath:          file.Path,
			ChunkIndex:        i,
			Text:              chunk,
			MimeType:          file.MimeType,
			LastModified:      file.LastModified,
			Size:              file.Size,
			CreatedAt:         now,
		}
	}
	return &pendingFile{index: index, chunks: out}, nil
}

// failBatch attributes a batch-level failure back to every file with a
// chunk in the batch. A file already failed keeps its first error.
func (s *SourceService) failBatch(batch []domain.EmbeddedChunk, msg string, failed map[string]string) {
	for _, c := range batch {
		if _, ok := failed[c.FileName]; !ok {
			failed[c.FileName] = msg
		}
	}
}

func (s *SourceService) buildOutcome(processed int, failed map[string]string, inserted int) *IngestOutcome {
	failedList := make([]FailedFile, 0, len(failed))
	for file, msg := range failed {
		failedList = append(failedList, FailedFile{File: file, Error: msg})
	}
	sort.Slice(failedList, func(a, b int) bool { return failedList[a].File < failedList[b].File })

	status := domain.SourceStatusReady
	if len(failedList) > 0 {
		status = domain.SourceStatusError
	}

	outcome := &IngestOutcome{
		Processed:  processed,
		Succeeded:  processed - len(failedList),
		Failed:     failedList,
		ChunkCount: inserted,
		Status:     status,
		Message: fmt.Sprintf("Processed %d files, %d succeeded, %d failed. %d chunks stored.",
			processed, processed-len(failedList), len(failedList), inserted),
	}
	if len(failedList) > 0 {
		outcome.NextSteps = "Review failed files and try again."
	}
	return outcome
}

func statusError(outcome *IngestOutcome) string {
	if outcome.Status != domain.SourceStatusError {
		return ""
	}
	return fmt.Sprintf("%d file(s) failed to process", len(outcome.Failed))
}

// writeTerminalStatus is best effort: a failed status write is logged
// but never changes the returned result. The write must land even when
// the run was aborted by cancellation, so it detaches from the caller's
// cancellation while keeping its values.
func (s *SourceService) writeTerminalStatus(ctx context.Context, sourceID string, status domain.SourceStatus, errMsg string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.sourceRepo.SetStatus(ctx, sourceID, status, errMsg); err != nil {
		log.Printf("ingest: failed to update status for source %s: %v", sourceID, err)
		telemetry.CaptureError(ctx, err)
	}
}

func (s *SourceService) tryLock(sourceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inProgress[sourceID]; busy {
		return false
	}
	s.inProgress[sourceID] = struct{}{}
	return true
}

func (s *SourceService) unlock(sourceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inProgress, sourceID)
}
