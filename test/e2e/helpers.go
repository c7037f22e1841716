//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fathom-labs/corpus/internal/api/handlers"
	"github.com/fathom-labs/corpus/internal/domain"
	"github.com/fathom-labs/corpus/internal/repository"
	"github.com/fathom-labs/corpus/internal/server"
	"github.com/fathom-labs/corpus/internal/service"
	"github.com/fathom-labs/corpus/internal/testutil"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	Origin       *memoryOrigin
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with a database
// container and an in-process server. File listing and download are
// served from an in-memory origin, and embeddings are computed with a
// deterministic word-hash embedder so search ranking is reproducible
// without external services.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	origin := newMemoryOrigin()

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, origin, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		Origin:       origin,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// RegisterUser registers a user through the API and returns their token.
func (e *E2ETestEnv) RegisterUser(email, name string) string {
	resp, err := e.Post("/auth/register", map[string]string{"email": email, "name": name}, "")
	if err != nil {
		e.T.Fatalf("failed to register %s: %v", email, err)
	}

	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		e.T.Fatalf("failed to parse register response: %v", err)
	}
	return data.Token
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// memoryOrigin is an in-memory FileOrigin. Tests add and replace files
// to simulate the remote store changing between ingestion runs.
type memoryOrigin struct {
	mu    sync.Mutex
	files map[string]memoryFile
}

type memoryFile struct {
	name    string
	path    string
	content []byte
}

func newMemoryOrigin() *memoryOrigin {
	return &memoryOrigin{files: make(map[string]memoryFile)}
}

// SetFile adds or replaces a file.
func (o *memoryOrigin) SetFile(id, name, path string, content []byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.files[id] = memoryFile{name: name, path: path, content: content}
}

func (o *memoryOrigin) RemoveFile(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.files, id)
}

func (o *memoryOrigin) ListFiles(ctx context.Context, userEmail, rootPath string) ([]domain.RemoteFile, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var files []domain.RemoteFile
	for id, f := range o.files {
		if rootPath != "" && !strings.HasPrefix(f.path, rootPath) {
			continue
		}
		files = append(files, domain.RemoteFile{
			ID:       id,
			Name:     f.name,
			Path:     f.path,
			MimeType: "text/plain",
			Size:     int64(len(f.content)),
		})
	}
	return files, nil
}

func (o *memoryOrigin) DownloadFile(ctx context.Context, userEmail, fileID string) ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, ok := o.files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return f.content, nil
}

// hashEmbedder maps each word to a dimension by hash and counts
// occurrences, then normalizes. Texts sharing words land close together
// under cosine distance, which is enough signal for ranking assertions.
type hashEmbedder struct{}

const embedderDims = 1536

func (hashEmbedder) embed(text string) []float32 {
	vec := make([]float32, embedderDims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		sum := sha256.Sum256([]byte(word))
		dim := binary.BigEndian.Uint32(sum[:4]) % embedderDims
		vec[dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func (h hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h hashEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

// startServer starts the HTTP server with all handlers
func startServer(t *testing.T, pool *pgxpool.Pool, origin *memoryOrigin, port int) (string, func()) {
	sourceRepo := repository.NewSourceRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	userRepo := repository.NewUserRepository(pool)
	grantRepo := repository.NewShareGrantRepository(pool)

	embedder := hashEmbedder{}
	origins := map[domain.SourceType]service.FileOrigin{
		domain.SourceTypeOneDrive: origin,
	}

	accessSvc := service.NewAccessService(sourceRepo, grantRepo, userRepo)
	authSvc := service.NewAuthService(userRepo)
	sourceSvc := service.NewSourceService(sourceRepo, chunkRepo, userRepo, accessSvc, embedder, origins)
	searchSvc := service.NewSearchService(sourceRepo, chunkRepo, accessSvc, embedder)

	cfg := server.RouterConfig{
		TokenValidator: authSvc,
		SourceHandler:  handlers.NewSourceHandler(sourceSvc, accessSvc, chunkRepo),
		SearchHandler:  handlers.NewSearchHandler(searchSvc),
		AuthHandler:    handlers.NewAuthHandler(authSvc, &noOrigin{}),
	}

	router := server.NewRouter(cfg)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

type noOrigin struct{}

func (noOrigin) AuthURL(userEmail string) string { return "" }

func (noOrigin) ExchangeCode(ctx context.Context, userEmail, code string) error {
	return fmt.Errorf("oauth not configured in e2e environment")
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not become ready at %s", url)
}

func getFreePort() (int, error) {
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
