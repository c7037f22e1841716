package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/service"
)

type MockTask struct {
	mock.Mock
}

func (m *MockTask) Run(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockStaleSourceLister struct {
	mock.Mock
}

func (m *MockStaleSourceLister) ListStale(ctx context.Context, olderThan time.Time) ([]*domain.KnowledgeSource, error) {
	args := m.Called(ctx, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeSource), args.Error(1)
}

type MockReingester struct {
	mock.Mock
}

func (m *MockReingester) Refresh(ctx context.Context, knowledgeSourceID, userEmail string, progress service.ProgressFunc) (*service.IngestOutcome, error) {
	args := m.Called(ctx, knowledgeSourceID, userEmail, progress)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestOutcome), args.Error(1)
}

func staleSource(id, name, owner string) *domain.KnowledgeSource {
	return &domain.KnowledgeSource{
		ID:        id,
		Name:      name,
		CreatedBy: owner,
		Status:    domain.SourceStatusReady,
	}
}

func TestWorker_StartStop(t *testing.T) {
	task := new(MockTask)
	task.On("Run", mock.Anything).Return(nil)

	worker := NewWorker(task, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(70 * time.Millisecond)
	worker.Stop()
	wg.Wait()

	task.AssertCalled(t, "Run", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	task := new(MockTask)
	task.On("Run", mock.Anything).Return(nil)

	worker := NewWorker(task, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		worker.Start(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after context cancellation")
	}
}

func TestWorker_ContinuesAfterTaskError(t *testing.T) {
	task := new(MockTask)
	task.On("Run", mock.Anything).Return(assert.AnError)

	worker := NewWorker(task, 20*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(70 * time.Millisecond)
	worker.Stop()
	wg.Wait()

	assert.GreaterOrEqual(t, len(task.Calls), 2)
}

func TestSourceRefresher_RefreshesStaleSources(t *testing.T) {
	lister := new(MockStaleSourceLister)
	ingest := new(MockReingester)
	refresher := NewSourceRefresher(lister, ingest, 24*time.Hour)

	fixedNow := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	refresher.now = func() time.Time { return fixedNow }

	lister.On("ListStale", mock.Anything, fixedNow.Add(-24*time.Hour)).Return([]*domain.KnowledgeSource{
		staleSource("src-1", "docs", "alice@example.com"),
		staleSource("src-2", "specs", "bob@example.com"),
	}, nil)

	ingest.On("Refresh", mock.Anything, "src-1", "alice@example.com", mock.Anything).
		Return(&service.IngestOutcome{Processed: 3, ChunkCount: 10}, nil)
	ingest.On("Refresh", mock.Anything, "src-2", "bob@example.com", mock.Anything).
		Return(&service.IngestOutcome{Processed: 1, ChunkCount: 2}, nil)

	err := refresher.Run(context.Background())

	assert.NoError(t, err)
	ingest.AssertExpectations(t)
}

func TestSourceRefresher_NoStaleSources(t *testing.T) {
	lister := new(MockStaleSourceLister)
	ingest := new(MockReingester)
	refresher := NewSourceRefresher(lister, ingest, 24*time.Hour)

	lister.On("ListStale", mock.Anything, mock.Anything).Return([]*domain.KnowledgeSource{}, nil)

	err := refresher.Run(context.Background())

	assert.NoError(t, err)
	ingest.AssertNotCalled(t, "Refresh")
}

func TestSourceRefresher_ListFailure(t *testing.T) {
	lister := new(MockStaleSourceLister)
	ingest := new(MockReingester)
	refresher := NewSourceRefresher(lister, ingest, 24*time.Hour)

	lister.On("ListStale", mock.Anything, mock.Anything).Return(nil, assert.AnError)

	err := refresher.Run(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list stale sources")
}

func TestSourceRefresher_OneFailureDoesNotStopOthers(t *testing.T) {
	lister := new(MockStaleSourceLister)
	ingest := new(MockReingester)
	refresher := NewSourceRefresher(lister, ingest, 24*time.Hour)

	lister.On("ListStale", mock.Anything, mock.Anything).Return([]*domain.KnowledgeSource{
		staleSource("src-1", "docs", "alice@example.com"),
		staleSource("src-2", "specs", "bob@example.com"),
	}, nil)

	ingest.On("Refresh", mock.Anything, "src-1", "alice@example.com", mock.Anything).
		Return(nil, assert.AnError)
	ingest.On("Refresh", mock.Anything, "src-2", "bob@example.com", mock.Anything).
		Return(&service.IngestOutcome{Processed: 1, ChunkCount: 2}, nil)

	err := refresher.Run(context.Background())

	assert.NoError(t, err)
	ingest.AssertExpectations(t)
}

func TestSourceRefresher_SkipsUnauthorizedOrigin(t *testing.T) {
	lister := new(MockStaleSourceLister)
	ingest := new(MockReingester)
	refresher := NewSourceRefresher(lister, ingest, 24*time.Hour)

	lister.On("ListStale", mock.Anything, mock.Anything).Return([]*domain.KnowledgeSource{
		staleSource("src-1", "docs", "alice@example.com"),
		staleSource("src-2", "specs", "bob@example.com"),
	}, nil)

	// An origin that rejects the owner's credentials reports an auth
	// URL on the outcome rather than failing the call.
	ingest.On("Refresh", mock.Anything, "src-1", "alice@example.com", mock.Anything).
		Return(&service.IngestOutcome{
			Status:  domain.SourceStatusError,
			AuthURL: "https://login.microsoftonline.com/consent",
		}, nil)
	ingest.On("Refresh", mock.Anything, "src-2", "bob@example.com", mock.Anything).
		Return(&service.IngestOutcome{Processed: 1, ChunkCount: 2}, nil)

	err := refresher.Run(context.Background())

	assert.NoError(t, err)
	ingest.AssertExpectations(t)
}

func TestSourceRefresher_SkipsInProgress(t *testing.T) {
	lister := new(MockStaleSourceLister)
	ingest := new(MockReingester)
	refresher := NewSourceRefresher(lister, ingest, time.Hour)

	lister.On("ListStale", mock.Anything, mock.Anything).Return([]*domain.KnowledgeSource{
		staleSource("src-1", "docs", "alice@example.com"),
	}, nil)

	ingest.On("Refresh", mock.Anything, "src-1", "alice@example.com", mock.Anything).
		Return(nil, domain.ErrIngestionInProgress)

	err := refresher.Run(context.Background())

	assert.NoError(t, err)
}
