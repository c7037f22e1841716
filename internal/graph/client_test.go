package graph

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathom-labs/corpus/internal/domain"
)

type staticTokenProvider struct {
	token   string
	authURL string
	err     error
}

func (p *staticTokenProvider) AccessToken(_ context.Context, _ string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.token, nil
}

func (p *staticTokenProvider) AuthURL(_ string) string {
	return p.authURL
}

func newTestClient(serverURL string) *Client {
	client := NewClient(&staticTokenProvider{token: "tok-1", authURL: "https://login.example.com/authorize"})
	client.baseURL = serverURL
	return client
}

func TestClient_ListFilesRecursive(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/me/drive/root:/:/children":
			fmt.Fprint(w, `{"value":[
				{"id":"file-1","name":"readme.txt","size":12,"lastModifiedDateTime":"2026-05-01T10:00:00Z","file":{"mimeType":"text/plain"}},
				{"id":"folder-1","name":"Projects","folder":{"childCount":1}}
			]}`)
		case "/me/drive/root:/Projects:/children":
			fmt.Fprint(w, `{"value":[
				{"id":"folder-2","name":"Q2","folder":{"childCount":1}},
				{"id":"file-2","name":"plan.docx","size":2048,"lastModifiedDateTime":"2026-05-02T11:00:00Z","file":{"mimeType":"application/vnd.openxmlformats-officedocument.wordprocessingml.document"}}
			]}`)
		case "/me/drive/root:/Projects/Q2:/children":
			fmt.Fprint(w, `{"value":[
				{"id":"file-3","name":"notes.md","size":64,"lastModifiedDateTime":"2026-05-03T12:00:00Z","file":{"mimeType":"text/markdown"}}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	files, err := client.ListFilesRecursive(context.Background(), "alice@example.com", "/")

	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth)
	require.Len(t, files, 3)

	assert.Equal(t, "file-1", files[0].ID)
	assert.Equal(t, "/readme.txt", files[0].Path)
	assert.Equal(t, "text/plain", files[0].MimeType)

	assert.Equal(t, "file-3", files[1].ID)
	assert.Equal(t, "/Projects/Q2/notes.md", files[1].Path)

	assert.Equal(t, "file-2", files[2].ID)
	assert.Equal(t, "/Projects/plan.docx", files[2].Path)
	assert.Equal(t, int64(2048), files[2].Size)
}

func TestClient_ListFilesRecursive_Subfolder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/me/drive/root:/Documents:/children":
			fmt.Fprint(w, `{"value":[
				{"id":"file-1","name":"spec.pdf","size":100,"lastModifiedDateTime":"2026-05-01T10:00:00Z","file":{"mimeType":"application/pdf"}}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	files, err := client.ListFilesRecursive(context.Background(), "alice@example.com", "/Documents")

	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/Documents/spec.pdf", files[0].Path)
}

func TestClient_ListFilesRecursive_FollowsNextLink(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/me/drive/root:/:/children" && r.URL.RawQuery == "":
			fmt.Fprintf(w, `{"value":[
				{"id":"file-1","name":"a.txt","size":1,"lastModifiedDateTime":"2026-05-01T10:00:00Z","file":{"mimeType":"text/plain"}}
			],"@odata.nextLink":"%s/me/drive/root:/:/children?page=2"}`, server.URL)
		case r.URL.RawQuery == "page=2":
			fmt.Fprint(w, `{"value":[
				{"id":"file-2","name":"b.txt","size":1,"lastModifiedDateTime":"2026-05-01T10:00:00Z","file":{"mimeType":"text/plain"}}
			]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	files, err := client.ListFilesRecursive(context.Background(), "alice@example.com", "/")

	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.txt", files[0].Name)
	assert.Equal(t, "b.txt", files[1].Name)
}

func TestClient_ListFilesRecursive_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":"InvalidAuthenticationToken"}}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	files, err := client.ListFilesRecursive(context.Background(), "alice@example.com", "/")

	assert.Nil(t, files)
	var authErr *domain.OriginAuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "https://login.example.com/authorize", authErr.AuthURL)
}

func TestClient_DownloadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/drive/items/file-1/content" {
			w.Write([]byte("file body"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	data, err := client.DownloadFile(context.Background(), "alice@example.com", "file-1")

	require.NoError(t, err)
	assert.Equal(t, []byte("file body"), data)
}

func TestClient_GetFileMetadata(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/drive/items/file-1" {
			fmt.Fprint(w, `{"id":"file-1","name":"readme.txt","size":12,"lastModifiedDateTime":"2026-05-01T10:00:00Z","file":{"mimeType":"text/plain"}}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := newTestClient(server.URL)

	file, err := client.GetFileMetadata(context.Background(), "alice@example.com", "file-1")

	require.NoError(t, err)
	assert.Equal(t, "file-1", file.ID)
	assert.Equal(t, "readme.txt", file.Name)
	assert.Equal(t, "text/plain", file.MimeType)
	assert.False(t, file.LastModified.IsZero())
}
