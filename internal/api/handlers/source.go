package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fathom-labs/corpus/internal/api"
	"github.com/fathom-labs/corpus/internal/api/middleware"
	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/service"
)

type SourceService interface {
	Add(ctx context.Context, input service.AddSourceInput) (*domain.KnowledgeSource, *service.IngestOutcome, error)
	Refresh(ctx context.Context, knowledgeSourceID, userEmail string, progress service.ProgressFunc) (*service.IngestOutcome, error)
	Delete(ctx context.Context, name, userEmail string) (*service.DeleteOutcome, error)
	List(ctx context.Context, input service.ListSourcesInput) (*service.ListSourcesOutput, error)
	GetByID(ctx context.Context, knowledgeSourceID, userEmail string) (*domain.KnowledgeSource, error)
}

type ShareService interface {
	Share(ctx context.Context, input service.ShareInput) (*domain.ShareGrant, error)
}

// ChunkCounter reports how many chunks a source holds.
type ChunkCounter interface {
	CountBySource(ctx context.Context, knowledgeSourceID string) (int, error)
}

type SourceHandler struct {
	svc    SourceService
	share  ShareService
	chunks ChunkCounter
}

func NewSourceHandler(svc SourceService, share ShareService, chunks ChunkCounter) *SourceHandler {
	return &SourceHandler{svc: svc, share: share, chunks: chunks}
}

type CreateSourceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	SourceType  string `json:"source_type"`
	Path        string `json:"path"`
}

type ShareRequest struct {
	UserEmail   string `json:"user_email"`
	AccessLevel string `json:"access_level"`
}

type SourceResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	SourceType  string `json:"source_type"`
	Path        string `json:"path"`
	CreatedBy   string `json:"created_by"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	ChunkCount  *int   `json:"chunk_count,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

type CreateSourceResponse struct {
	Source  *SourceResponse        `json:"source"`
	Outcome *service.IngestOutcome `json:"outcome"`
}

type ListSourcesResponse struct {
	Items   []*SourceResponse `json:"items"`
	Cursor  string            `json:"cursor,omitempty"`
	HasMore bool              `json:"has_more"`
}

type ShareResponse struct {
	KnowledgeSourceID string `json:"knowledge_source_id"`
	UserEmail         string `json:"user_email"`
	AccessLevel       string `json:"access_level"`
	SharedAt          string `json:"shared_at"`
}

func sourceToResponse(s *domain.KnowledgeSource) *SourceResponse {
	return &SourceResponse{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		SourceType:  string(s.SourceType),
		Path:        s.SourceURL,
		CreatedBy:   s.CreatedBy,
		Status:      string(s.Status),
		Error:       s.Error,
		CreatedAt:   s.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   s.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

// Create registers a knowledge source and ingests it synchronously; the
// response carries both the source record and the ingestion outcome.
func (h *SourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userEmail := middleware.GetUserEmail(r.Context())
	if userEmail == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	source, outcome, err := h.svc.Add(r.Context(), service.AddSourceInput{
		Name:        req.Name,
		Description: req.Description,
		SourceType:  domain.SourceType(req.SourceType),
		SourceURL:   req.Path,
		UserEmail:   userEmail,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, CreateSourceResponse{
		Source:  sourceToResponse(source),
		Outcome: outcome,
	})
}

func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	userEmail := middleware.GetUserEmail(r.Context())
	if userEmail == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			api.Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	out, err := h.svc.List(r.Context(), service.ListSourcesInput{
		UserEmail:    userEmail,
		NameContains: r.URL.Query().Get("name"),
		Cursor:       r.URL.Query().Get("cursor"),
		Limit:        limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]*SourceResponse, 0, len(out.Items))
	for _, s := range out.Items {
		items = append(items, sourceToResponse(s))
	}

	api.Success(w, http.StatusOK, ListSourcesResponse{
		Items:   items,
		Cursor:  out.Cursor,
		HasMore: out.HasMore,
	})
}

func (h *SourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userEmail := middleware.GetUserEmail(r.Context())
	if userEmail == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	source, err := h.svc.GetByID(r.Context(), id, userEmail)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := sourceToResponse(source)
	if n, err := h.chunks.CountBySource(r.Context(), source.ID); err == nil {
		resp.ChunkCount = &n
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *SourceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	userEmail := middleware.GetUserEmail(r.Context())
	if userEmail == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	outcome, err := h.svc.Refresh(r.Context(), id, userEmail, nil)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, outcome)
}

func (h *SourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userEmail := middleware.GetUserEmail(r.Context())
	if userEmail == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	name := chi.URLParam(r, "name")
	if name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	outcome, err := h.svc.Delete(r.Context(), name, userEmail)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, outcome)
}

func (h *SourceHandler) Share(w http.ResponseWriter, r *http.Request) {
	userEmail := middleware.GetUserEmail(r.Context())
	if userEmail == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ShareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	grant, err := h.share.Share(r.Context(), service.ShareInput{
		KnowledgeSourceID: id,
		OwnerEmail:        userEmail,
		TargetEmail:       req.UserEmail,
		AccessLevel:       domain.AccessLevel(req.AccessLevel),
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, ShareResponse{
		KnowledgeSourceID: grant.KnowledgeSourceID,
		UserEmail:         grant.UserEmail,
		AccessLevel:       string(grant.AccessLevel),
		SharedAt:          grant.SharedAt.Format("2006-01-02T15:04:05Z"),
	})
}
