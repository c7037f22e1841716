package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/service"
)

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SearchOutput), args.Error(1)
}

func TestSearchHandler_Success(t *testing.T) {
	svc := new(MockSearchService)
	handler := NewSearchHandler(svc)

	svc.On("Search", mock.Anything, mock.MatchedBy(func(input service.SearchInput) bool {
		return input.UserEmail == "alice@example.com" &&
			input.KnowledgeSourceID == "src-123" &&
			input.Query == "vacation policy" &&
			input.Limit == 3 &&
			input.Skip == 0
	})).Return(&service.SearchOutput{
		Results: []*service.ChunkMatch{
			{FileName: "handbook.pdf", FilePath: "/hr/handbook.pdf", Text: "Vacation days accrue monthly.", Score: 0.91},
		},
		Total:   1,
		Limit:   3,
		Message: "Found 1 relevant chunks. Showing 1 results from 1 to 1.",
	}, nil)

	body := `{"knowledge_source_id":"src-123","query":"vacation policy","limit":3}`
	req := requestWithUser(http.MethodPost, "/search", []byte(body))
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data service.SearchOutput `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data.Results, 1)
	assert.Equal(t, "handbook.pdf", resp.Data.Results[0].FileName)
	assert.InDelta(t, 0.91, resp.Data.Results[0].Score, 1e-9)
	svc.AssertExpectations(t)
}

func TestSearchHandler_MinScoreForwarded(t *testing.T) {
	svc := new(MockSearchService)
	handler := NewSearchHandler(svc)

	svc.On("Search", mock.Anything, mock.MatchedBy(func(input service.SearchInput) bool {
		return input.MinScore != nil && *input.MinScore == 0.85
	})).Return(&service.SearchOutput{Results: []*service.ChunkMatch{}, Limit: 5}, nil)

	body := `{"knowledge_source_id":"src-123","query":"q","min_score":0.85}`
	req := requestWithUser(http.MethodPost, "/search", []byte(body))
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestSearchHandler_Unauthenticated(t *testing.T) {
	handler := NewSearchHandler(new(MockSearchService))

	req := httptest.NewRequest(http.MethodPost, "/search", nil)
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSearchHandler_InvalidBody(t *testing.T) {
	handler := NewSearchHandler(new(MockSearchService))

	req := requestWithUser(http.MethodPost, "/search", []byte(`{not json`))
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestSearchHandler_AccessDenied(t *testing.T) {
	svc := new(MockSearchService)
	handler := NewSearchHandler(svc)

	svc.On("Search", mock.Anything, mock.Anything).Return(nil, domain.ErrAccessDenied)

	body := `{"knowledge_source_id":"src-123","query":"q"}`
	req := requestWithUser(http.MethodPost, "/search", []byte(body))
	w := httptest.NewRecorder()

	handler.Search(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}
