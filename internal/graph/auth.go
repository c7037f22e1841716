package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fathom-labs/corpus/internal/domain"
)

const (
	defaultLoginBaseURL = "https://login.microsoftonline.com"
	// Scopes requested during authorization. offline_access is required
	// to receive a refresh token.
	oauthScopes = "offline_access Files.ReadWrite.All User.Read"

	// refreshMargin refreshes access tokens this long before they expire
	refreshMargin = time.Minute
)

// Tokens holds a user's Microsoft OAuth credentials.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// TokenStore persists per-user Microsoft tokens. GetTokens returns
// domain.ErrOriginNotAuthorized when the user has never completed the
// OAuth flow.
type TokenStore interface {
	GetTokens(ctx context.Context, userEmail string) (*Tokens, error)
	SaveTokens(ctx context.Context, userEmail string, tokens *Tokens) error
}

// AuthConfig holds the Microsoft OAuth application settings.
type AuthConfig struct {
	ClientID     string
	ClientSecret string
	TenantID     string
	RedirectURI  string
}

// Authenticator manages the Microsoft OAuth2 flow: building authorization
// URLs, exchanging codes for tokens, and keeping access tokens fresh.
type Authenticator struct {
	cfg        AuthConfig
	store      TokenStore
	httpClient *http.Client
	loginBase  string
	now        func() time.Time
}

func NewAuthenticator(cfg AuthConfig, store TokenStore) *Authenticator {
	return &Authenticator{
		cfg:        cfg,
		store:      store,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		loginBase:  defaultLoginBaseURL,
		now:        time.Now,
	}
}

func (a *Authenticator) authority() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0", a.loginBase, a.cfg.TenantID)
}

// AuthURL builds the authorization URL the user must visit to grant
// OneDrive access. The user email rides along as OAuth state so the
// callback can associate tokens with the right user.
func (a *Authenticator) AuthURL(userEmail string) string {
	params := url.Values{}
	params.Set("client_id", a.cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("redirect_uri", a.cfg.RedirectURI)
	params.Set("response_mode", "query")
	params.Set("scope", oauthScopes)
	params.Set("state", userEmail)
	return a.authority() + "/authorize?" + params.Encode()
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ExchangeCode exchanges an authorization code for tokens and stores
// them for the user.
func (a *Authenticator) ExchangeCode(ctx context.Context, userEmail, code string) error {
	params := url.Values{}
	params.Set("client_id", a.cfg.ClientID)
	params.Set("client_secret", a.cfg.ClientSecret)
	params.Set("grant_type", "authorization_code")
	params.Set("code", code)
	params.Set("redirect_uri", a.cfg.RedirectURI)
	params.Set("scope", oauthScopes)

	tokens, err := a.requestTokens(ctx, params)
	if err != nil {
		return fmt.Errorf("failed to exchange code for tokens: %w", err)
	}
	return a.store.SaveTokens(ctx, userEmail, tokens)
}

// AccessToken returns a valid access token for the user, refreshing it
// when it is within refreshMargin of expiry. A user with no stored
// tokens, or whose refresh is rejected, gets an OriginAuthError carrying
// the authorization URL to visit.
func (a *Authenticator) AccessToken(ctx context.Context, userEmail string) (string, error) {
	tokens, err := a.store.GetTokens(ctx, userEmail)
	if err != nil {
		return "", domain.NewOriginAuthError(a.AuthURL(userEmail), err)
	}

	if a.now().Before(tokens.ExpiresAt.Add(-refreshMargin)) {
		return tokens.AccessToken, nil
	}

	params := url.Values{}
	params.Set("client_id", a.cfg.ClientID)
	params.Set("client_secret", a.cfg.ClientSecret)
	params.Set("grant_type", "refresh_token")
	params.Set("refresh_token", tokens.RefreshToken)
	params.Set("scope", oauthScopes)

	refreshed, err := a.requestTokens(ctx, params)
	if err != nil {
		return "", domain.NewOriginAuthError(a.AuthURL(userEmail),
			fmt.Errorf("failed to refresh Microsoft token: %w", err))
	}
	if err := a.store.SaveTokens(ctx, userEmail, refreshed); err != nil {
		return "", fmt.Errorf("failed to save refreshed tokens: %w", err)
	}
	return refreshed.AccessToken, nil
}

func (a *Authenticator) requestTokens(ctx context.Context, params url.Values) (*Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.authority()+"/token", strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	return &Tokens{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    a.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
