package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fathom-labs/corpus/internal/api"
	"github.com/fathom-labs/corpus/internal/api/middleware"
	"github.com/fathom-labs/corpus/internal/service"
)

type SearchService interface {
	Search(ctx context.Context, input service.SearchInput) (*service.SearchOutput, error)
}

type SearchHandler struct {
	svc SearchService
}

func NewSearchHandler(svc SearchService) *SearchHandler {
	return &SearchHandler{svc: svc}
}

type SearchRequest struct {
	KnowledgeSourceID string   `json:"knowledge_source_id"`
	Query             string   `json:"query"`
	Limit             int      `json:"limit"`
	Skip              int      `json:"skip"`
	MinScore          *float64 `json:"min_score"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	userEmail := middleware.GetUserEmail(r.Context())
	if userEmail == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	out, err := h.svc.Search(r.Context(), service.SearchInput{
		UserEmail:         userEmail,
		KnowledgeSourceID: req.KnowledgeSourceID,
		Query:             req.Query,
		Limit:             req.Limit,
		Skip:              req.Skip,
		MinScore:          req.MinScore,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, out)
}
