// Package graph talks to the Microsoft Graph API on behalf of users:
// OAuth token management plus OneDrive file enumeration and download.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fathom-labs/corpus/internal/domain"
)

const defaultGraphBaseURL = "https://graph.microsoft.com/v1.0"

// AccessTokenProvider supplies a valid Graph access token for a user.
type AccessTokenProvider interface {
	AccessToken(ctx context.Context, userEmail string) (string, error)
	AuthURL(userEmail string) string
}

// Client reads OneDrive contents through the Microsoft Graph API.
type Client struct {
	tokens     AccessTokenProvider
	httpClient *http.Client
	baseURL    string
}

func NewClient(tokens AccessTokenProvider) *Client {
	return &Client{
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    defaultGraphBaseURL,
	}
}

type driveItem struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	Size                 int64  `json:"size"`
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
	Folder               *struct {
		ChildCount int `json:"childCount"`
	} `json:"folder"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
}

type childrenPage struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

// ListFilesRecursive walks the user's OneDrive folder at the given path
// and returns every file beneath it, folders descended depth-first. Paths
// in the result are absolute within the drive, so a source rooted at "/"
// yields "/report.docx" and one rooted at "/Projects" yields
// "/Projects/report.docx".
func (c *Client) ListFilesRecursive(ctx context.Context, userEmail, folderPath string) ([]domain.RemoteFile, error) {
	parent := folderPath
	if folderPath == "/" {
		parent = ""
	}
	return c.listFiles(ctx, userEmail, folderPath, parent)
}

func (c *Client) listFiles(ctx context.Context, userEmail, folderPath, parentPath string) ([]domain.RemoteFile, error) {
	endpoint := fmt.Sprintf("/me/drive/root:%s:/children", encodeDrivePath(folderPath))

	var files []domain.RemoteFile
	for endpoint != "" {
		var page childrenPage
		if err := c.getJSON(ctx, userEmail, endpoint, &page); err != nil {
			return nil, err
		}

		for _, item := range page.Value {
			itemPath := parentPath + "/" + item.Name
			switch {
			case item.Folder != nil:
				sub, err := c.listFiles(ctx, userEmail, itemPath, itemPath)
				if err != nil {
					return nil, err
				}
				files = append(files, sub...)
			case item.File != nil:
				lastModified, _ := time.Parse(time.RFC3339, item.LastModifiedDateTime)
				files = append(files, domain.RemoteFile{
					ID:           item.ID,
					Name:         item.Name,
					Path:         itemPath,
					Size:         item.Size,
					MimeType:     item.File.MimeType,
					LastModified: lastModified,
				})
			}
		}
		endpoint = page.NextLink
	}
	return files, nil
}

// DownloadFile fetches a OneDrive file's content by item id.
func (c *Client) DownloadFile(ctx context.Context, userEmail, fileID string) ([]byte, error) {
	resp, err := c.do(ctx, userEmail, fmt.Sprintf("/me/drive/items/%s/content", url.PathEscape(fileID)))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// GetFileMetadata fetches a single OneDrive item's metadata.
func (c *Client) GetFileMetadata(ctx context.Context, userEmail, fileID string) (*domain.RemoteFile, error) {
	var item driveItem
	if err := c.getJSON(ctx, userEmail, fmt.Sprintf("/me/drive/items/%s", url.PathEscape(fileID)), &item); err != nil {
		return nil, err
	}
	file := &domain.RemoteFile{
		ID:   item.ID,
		Name: item.Name,
		Size: item.Size,
	}
	if item.File != nil {
		file.MimeType = item.File.MimeType
	}
	file.LastModified, _ = time.Parse(time.RFC3339, item.LastModifiedDateTime)
	return file, nil
}

func (c *Client) getJSON(ctx context.Context, userEmail, endpoint string, out any) error {
	resp, err := c.do(ctx, userEmail, endpoint)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode Graph response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, userEmail, endpoint string) (*http.Response, error) {
	token, err := c.tokens.AccessToken(ctx, userEmail)
	if err != nil {
		return nil, err
	}

	// nextLink continuations come back as absolute URLs
	reqURL := endpoint
	if len(endpoint) == 0 || endpoint[0] == '/' {
		reqURL = c.baseURL + endpoint
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, domain.NewOriginAuthError(c.tokens.AuthURL(userEmail),
			fmt.Errorf("Microsoft Graph API error: %s", string(body)))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("Microsoft Graph API error: status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// encodeDrivePath escapes a drive path for the root:{path}: addressing
// form. The bare root path "/" is passed through unescaped.
func encodeDrivePath(folderPath string) string {
	if folderPath == "/" {
		return "/"
	}
	return url.PathEscape(folderPath)
}
