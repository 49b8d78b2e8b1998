//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloo-solutions/reviewpulse/internal/api/handlers"
	"github.com/cloo-solutions/reviewpulse/internal/domain"
	"github.com/cloo-solutions/reviewpulse/internal/repository"
	"github.com/cloo-solutions/reviewpulse/internal/server"
	"github.com/cloo-solutions/reviewpulse/internal/service"
	"github.com/cloo-solutions/reviewpulse/internal/storage"
	"github.com/cloo-solutions/reviewpulse/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const testBucket = "reviewpulse-e2e"

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	ModelServer  *FakeModelServer
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers, a fake
// model server and the read API.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC)

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSSecretKey,
		Bucket:          testBucket,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	serverURL, serverCloser := startServer(t, pool, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		ModelServer:  NewFakeModelServer(),
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.ModelServer != nil {
		e.ModelServer.Close()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinary builds pulsed into a temp dir.
func (e *E2ETestEnv) BuildBinary() {
	tmpDir, err := os.MkdirTemp("", "pulsed-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "pulsed"), "./cmd/pulsed")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build pulsed: %v\n%s", err, out)
	}
}

// RunPulsed runs the pulsed binary against the test environment and returns
// stdout. Logs go to stderr and are only shown on failure.
func (e *E2ETestEnv) RunPulsed(env map[string]string, args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "pulsed"), args...)
	cmd.Env = append(os.Environ(), e.pulsedEnv(env)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		e.T.Logf("pulsed %s stderr:\n%s", strings.Join(args, " "), stderr.String())
	}
	return stdout.String(), err
}

func (e *E2ETestEnv) pulsedEnv(overrides map[string]string) []string {
	vars := map[string]string{
		"PULSE_DATABASE_URL":         e.PostgresC.ConnectionString(),
		"PULSE_OPENAI_API_KEY":       "test",
		"PULSE_OPENAI_BASE_URL":      e.ModelServer.URL() + "/v1",
		"PULSE_ENABLE_LLM":           "true",
		"PULSE_SYNTHESIS_TIMEOUT":    "10s",
		"PULSE_S3_ENDPOINT":          e.RustFSC.Endpoint(),
		"PULSE_S3_ACCESS_KEY_ID":     testutil.RustFSAccessKey,
		"PULSE_S3_SECRET_ACCESS_KEY": testutil.RustFSSecretKey,
		"PULSE_S3_BUCKET":            testBucket,
	}
	for k, v := range overrides {
		vars[k] = v
	}

	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, k+"="+v)
	}
	return out
}

// APIResponse wraps the data envelope of the read API.
type APIResponse struct {
	StatusCode int
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Code       string          `json:"code"`
}

// Get calls the read API.
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	resp, err := e.HTTPClient.Get(e.ServerURL + path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w (%s)", path, err, body)
	}
	return apiResp, nil
}

func startServer(t *testing.T, pool *pgxpool.Pool, port int) (string, func()) {
	logger := zerolog.Nop()
	router := server.NewRouter(server.RouterConfig{
		Logger:         &logger,
		HealthHandler:  handlers.NewHealthHandler(pool),
		InsightHandler: handlers.NewInsightHandler(repository.NewInsightRepository(pool)),
	})

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
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// Themes map a keyword to an embedding direction so related reviews land
// close together.
var themes = []string{"login", "checkout", "battery"}

// FakeModelServer answers the OpenAI-compatible embeddings and chat
// completion endpoints the pipeline calls.
type FakeModelServer struct {
	srv *httptest.Server

	mu           sync.Mutex
	brokenBrands map[string]bool
	chatCalls    int
}

func NewFakeModelServer() *FakeModelServer {
	f := &FakeModelServer{brokenBrands: map[string]bool{}}
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/embeddings", f.embeddings)
	mux.HandleFunc("/v1/chat/completions", f.chat)
	f.srv = httptest.NewServer(mux)
	return f
}

func (f *FakeModelServer) URL() string { return f.srv.URL }

func (f *FakeModelServer) Close() { f.srv.Close() }

// BreakBrand makes synthesis answer brand with a structurally invalid document.
func (f *FakeModelServer) BreakBrand(brand string, broken bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.brokenBrands[brand] = broken
}

func (f *FakeModelServer) ChatCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls
}

func themeVector(text string) []float32 {
	v := make([]float32, domain.DefaultEmbeddingDimensions)
	for i, theme := range themes {
		if strings.Contains(strings.ToLower(text), theme) {
			v[i*10] = 1
		}
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	v[100+int(h.Sum32()%200)] = 0.05
	return v
}

func (f *FakeModelServer) embeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type item struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	}
	data := make([]item, len(req.Input))
	for i, text := range req.Input {
		data[i] = item{Object: "embedding", Embedding: themeVector(text), Index: i}
	}

	writeJSON(w, map[string]interface{}{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage":  map[string]int{"prompt_tokens": 0, "total_tokens": 0},
	})
}

func (f *FakeModelServer) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) < 2 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var doc service.SynthesisRequest
	if err := json.Unmarshal([]byte(strings.TrimPrefix(req.Messages[1].Content, "Input:\n")), &doc); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.chatCalls++
	broken := f.brokenBrands[doc.Brand]
	f.mu.Unlock()

	content := synthesize(doc)
	if broken {
		content = `{"brand": "` + doc.Brand + `", "summaries": []}`
	}

	writeJSON(w, map[string]interface{}{
		"id":      "chatcmpl-e2e",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   req.Model,
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func synthesize(doc service.SynthesisRequest) string {
	type entry struct {
		ClusterID    int    `json:"cluster_id"`
		Summary      string `json:"summary"`
		PrimaryIssue string `json:"primary_issue"`
		UserImpact   string `json:"user_impact"`
	}
	resp := struct {
		Brand            string  `json:"brand"`
		ClusterSummaries []entry `json:"cluster_summaries"`
	}{Brand: doc.Brand, ClusterSummaries: []entry{}}

	for _, c := range doc.Clusters {
		issue := "general feedback"
		for _, theme := range themes {
			if strings.Contains(strings.ToLower(c.Examples[0]), theme) {
				issue = theme + " problems"
			}
		}
		resp.ClusterSummaries = append(resp.ClusterSummaries, entry{
			ClusterID:    c.ClusterID,
			Summary:      fmt.Sprintf("A %s cluster, trend %s: %s", c.Size, c.Trend, c.Examples[0]),
			PrimaryIssue: issue,
			UserImpact:   "high",
		})
	}

	b, _ := json.Marshal(resp)
	return string(b)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
