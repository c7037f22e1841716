package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fathom-labs/corpus/internal/api"
	"github.com/fathom-labs/corpus/internal/api/middleware"
	"github.com/fathom-labs/corpus/internal/domain"
)

type AuthService interface {
	Register(ctx context.Context, email, name string) (*domain.User, string, error)
	IssueToken(ctx context.Context, email string) (string, error)
}

// OriginAuthenticator drives the Microsoft OAuth flow for OneDrive access.
type OriginAuthenticator interface {
	AuthURL(userEmail string) string
	ExchangeCode(ctx context.Context, userEmail, code string) error
}

type AuthHandler struct {
	svc    AuthService
	origin OriginAuthenticator
}

func NewAuthHandler(svc AuthService, origin OriginAuthenticator) *AuthHandler {
	return &AuthHandler{svc: svc, origin: origin}
}

type RegisterRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type RegisterResponse struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Token string `json:"token"`
}

type IssueTokenRequest struct {
	Email string `json:"email"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type AuthURLResponse struct {
	AuthURL string `json:"auth_url"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" {
		api.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	user, token, err := h.svc.Register(r.Context(), req.Email, req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, RegisterResponse{
		Email: user.Email,
		Name:  user.Name,
		Token: token,
	})
}

// IssueToken rotates a user's bearer token, invalidating the old one.
func (h *AuthHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req IssueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" {
		api.Error(w, http.StatusBadRequest, "email is required")
		return
	}

	token, err := h.svc.IssueToken(r.Context(), req.Email)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, TokenResponse{Token: token})
}

// MicrosoftAuthURL returns the consent URL the signed-in user must visit
// to authorize OneDrive access.
func (h *AuthHandler) MicrosoftAuthURL(w http.ResponseWriter, r *http.Request) {
	userEmail := middleware.GetUserEmail(r.Context())
	if userEmail == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	api.Success(w, http.StatusOK, AuthURLResponse{AuthURL: h.origin.AuthURL(userEmail)})
}

// MicrosoftCallback completes the OAuth flow. The state parameter
// carries the user email set when the auth URL was issued.
func (h *AuthHandler) MicrosoftCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		api.Error(w, http.StatusBadRequest, "code and state are required")
		return
	}

	if err := h.origin.ExchangeCode(r.Context(), state, code); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{
		"message": "OneDrive access authorized",
	})
}
