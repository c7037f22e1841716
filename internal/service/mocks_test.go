package service

import (
	"context"
	"fmt"

	"github.com/stretchr/testify/mock"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/pagination"
)

// MockSourceRepository is a mock implementation of SourceRepositoryInterface
type MockSourceRepository struct {
	mock.Mock
}

func (m *MockSourceRepository) Create(ctx context.Context, s *domain.KnowledgeSource) error {
	args := m.Called(ctx, s)
	return args.Error(0)
}

func (m *MockSourceRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeSource, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeSource), args.Error(1)
}

func (m *MockSourceRepository) GetByNameAndOwner(ctx context.Context, name, owner string) (*domain.KnowledgeSource, error) {
	args := m.Called(ctx, name, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeSource), args.Error(1)
}

func (m *MockSourceRepository) ListAccessible(ctx context.Context, userEmail, nameContains string, cursor *pagination.Cursor, limit int) (*pagination.PageResult[*domain.KnowledgeSource], error) {
	args := m.Called(ctx, userEmail, nameContains, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*pagination.PageResult[*domain.KnowledgeSource]), args.Error(1)
}

func (m *MockSourceRepository) SetStatus(ctx context.Context, id string, status domain.SourceStatus, errMsg string) error {
	args := m.Called(ctx, id, status, errMsg)
	return args.Error(0)
}

func (m *MockSourceRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockChunkRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) InsertChunks(ctx context.Context, chunks []domain.EmbeddedChunk) error {
	args := m.Called(ctx, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) DeleteBySource(ctx context.Context, knowledgeSourceID string) error {
	args := m.Called(ctx, knowledgeSourceID)
	return args.Error(0)
}

func (m *MockChunkRepository) SearchSimilar(ctx context.Context, embedding []float32, knowledgeSourceID string, limit int) ([]*ChunkMatch, error) {
	args := m.Called(ctx, embedding, knowledgeSourceID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ChunkMatch), args.Error(1)
}

// MockUserRepository is a mock implementation of UserRepositoryInterface
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) SetTokenHash(ctx context.Context, email, hash string) error {
	args := m.Called(ctx, email, hash)
	return args.Error(0)
}

func (m *MockUserRepository) GetByTokenHash(ctx context.Context, hash string) (*domain.User, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockShareGrantRepository is a mock implementation of ShareGrantRepositoryInterface
type MockShareGrantRepository struct {
	mock.Mock
}

func (m *MockShareGrantRepository) Upsert(ctx context.Context, grant *domain.ShareGrant) error {
	args := m.Called(ctx, grant)
	return args.Error(0)
}

func (m *MockShareGrantRepository) Get(ctx context.Context, knowledgeSourceID, userEmail string) (*domain.ShareGrant, error) {
	args := m.Called(ctx, knowledgeSourceID, userEmail)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShareGrant), args.Error(1)
}

func (m *MockShareGrantRepository) ListBySource(ctx context.Context, knowledgeSourceID string) ([]*domain.ShareGrant, error) {
	args := m.Called(ctx, knowledgeSourceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.ShareGrant), args.Error(1)
}

// MockUUIDGenerator returns a fixed sequence of IDs
type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		id := m.uuids[m.callCount]
		m.callCount++
		return id
	}
	return "default-uuid"
}

// stubOrigin is a canned FileOrigin for orchestrator tests.
type stubOrigin struct {
	files        []domain.RemoteFile
	listErr      error
	contents     map[string][]byte
	downloadErrs map[string]error
}

func (o *stubOrigin) ListFiles(_ context.Context, _ string, _ string) ([]domain.RemoteFile, error) {
	if o.listErr != nil {
		return nil, o.listErr
	}
	return o.files, nil
}

func (o *stubOrigin) DownloadFile(_ context.Context, _ string, fileID string) ([]byte, error) {
	if err := o.downloadErrs[fileID]; err != nil {
		return nil, err
	}
	data, ok := o.contents[fileID]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", fileID)
	}
	return data, nil
}

// stubEmbedder returns fixed-size vectors and can fail selected batches.
type stubEmbedder struct {
	batchCalls  int
	failBatches map[int]error // 1-based batch call number
	singleErr   error
	queryVector []float32
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.batchCalls++
	if err := e.failBatches[e.batchCalls]; err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, 1536)
	}
	return out, nil
}

func (e *stubEmbedder) GenerateEmbedding(_ context.Context, _ string) ([]float32, error) {
	if e.singleErr != nil {
		return nil, e.singleErr
	}
	if e.queryVector != nil {
		return e.queryVector, nil
	}
	return make([]float32, 1536), nil
}
