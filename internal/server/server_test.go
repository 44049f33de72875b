// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pdiddy/grant-engine/internal/chunk"
	"github.com/pdiddy/grant-engine/internal/corpus"
	"github.com/pdiddy/grant-engine/internal/embed"
	"github.com/pdiddy/grant-engine/internal/retrieve"
	"github.com/pdiddy/grant-engine/internal/vecindex"
	"github.com/pdiddy/grant-engine/pkg/types"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const kelpMD = `# Cover Page

Project Title: Mechanisms of Kelp Forest Resilience

## Specific Aims

Kelp forests are declining across temperate coastlines. We will identify the
genomic basis of thermal tolerance in giant kelp. Tolerant genotypes can seed
restoration programs.
`

const virusMD = `# Cover Page

Project Title: Broadly Protective Influenza Vaccines

## Specific Aims

Seasonal influenza vaccines fail against drifted strains. We will engineer
stabilized hemagglutinin stem immunogens and measure antibody breadth.
`

// mockDraftBackend returns a canned draft.
type mockDraftBackend struct {
	output string
	calls  int
}

func (m *mockDraftBackend) Name() string { return "mock" }

func (m *mockDraftBackend) Draft(_ context.Context, _ string) (string, error) {
	m.calls++
	return m.output, nil
}

// fakeConverter turns any "PDF" into fixed markdown.
type fakeConverter struct {
	output string
}

func (f *fakeConverter) Name() string { return "fake" }

func (f *fakeConverter) Convert(string) (string, error) { return f.output, nil }

// newTestServer builds a server over a corpus seeded with the given
// markdown files (name → content), fully embedded with TF-IDF.
func newTestServer(t *testing.T, seed map[string]string) (*Server, types.Layout) {
	t.Helper()
	layout := types.NewLayout(t.TempDir())

	if err := os.MkdirAll(layout.FullMarkdown(), 0o755); err != nil {
		t.Fatal(err)
	}
	for name, content := range seed {
		if err := os.WriteFile(filepath.Join(layout.FullMarkdown(), name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	cfg := types.PipelineConfig{
		DataDir:    layout.Root,
		Chunking:   types.ChunkingConfig{SentencesPerChunk: 2},
		Retrieval:  types.RetrievalConfig{MaxResults: 10},
		Generation: types.GenerationConfig{ExemplarCount: 2},
	}

	store, err := corpus.NewStore(layout, cfg.Retrieval)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if len(seed) > 0 {
		splitter := chunk.NewSplitter(cfg.Chunking)
		if _, err := store.Ingest(context.Background(), splitter, corpus.IngestOptions{}, io.Discard); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	index, err := vecindex.Open(layout.VectorDB())
	if err != nil {
		t.Fatalf("opening index: %v", err)
	}
	t.Cleanup(func() { index.Close() })

	embedder, err := embed.NewTFIDF(layout.TFIDFState())
	if err != nil {
		t.Fatalf("building embedder: %v", err)
	}
	if len(seed) > 0 {
		if _, err := embed.EmbedCorpus(context.Background(), store, index, embedder, embed.Options{}, io.Discard); err != nil {
			t.Fatalf("embedding: %v", err)
		}
	}

	s := New(Deps{
		Store:     store,
		Index:     index,
		Embedder:  embedder,
		Retriever: retrieve.New(store, index, embedder, cfg.Retrieval),
		Backend:   &mockDraftBackend{output: "## Significance\n\nDrafted."},
		Converter: &fakeConverter{output: kelpMD},
		Layout:    layout,
		Config:    cfg,
	})
	return s, layout
}

func seedFiles() map[string]string {
	return map[string]string{
		"R21-ES654321.md": kelpMD,
		"R01-AI123456.md": virusMD,
	}
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// --- basic routes ---

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, seedFiles())

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Status  string `json:"status"`
		Grants  int    `json:"grants"`
		Vectors int    `json:"vectors"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Grants != 2 || resp.Vectors == 0 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodGet, "/health", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not set")
	}

	// A caller-supplied ID is echoed back.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "caller-id")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "caller-id" {
		t.Errorf("X-Request-ID = %q", got)
	}
}

func TestIndexPage(t *testing.T) {
	s, _ := newTestServer(t, nil)

	w := doJSON(t, s, http.MethodGet, "/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "grant-engine") {
		t.Error("index page missing title")
	}
	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
}

func TestListGrants(t *testing.T) {
	s, _ := newTestServer(t, seedFiles())

	w := doJSON(t, s, http.MethodGet, "/api/grants", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count  int                 `json:"count"`
		Grants []types.GrantRecord `json:"grants"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 2 {
		t.Errorf("count = %d, want 2", resp.Count)
	}
}

// --- retrieval ---

func TestRetrieveEndpoint(t *testing.T) {
	s, _ := newTestServer(t, seedFiles())

	w := doJSON(t, s, http.MethodPost, "/api/retrieve", map[string]any{
		"query": "kelp forest thermal tolerance",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count   int              `json:"count"`
		Results []types.Exemplar `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count == 0 {
		t.Fatal("no results")
	}
	if resp.Results[0].GrantID != "R21-ES654321" {
		t.Errorf("top hit = %s", resp.Results[0].GrantID)
	}
}

func TestRetrieveEndpointMissingQuery(t *testing.T) {
	s, _ := newTestServer(t, seedFiles())

	w := doJSON(t, s, http.MethodPost, "/api/retrieve", map[string]any{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// --- drafting ---

func TestDraftEndpoint(t *testing.T) {
	s, layout := newTestServer(t, seedFiles())

	w := doJSON(t, s, http.MethodPost, "/api/draft", map[string]any{
		"topic":      "kelp forest restoration genomics",
		"hypothesis": "Tolerant genotypes improve restoration outcomes",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var result types.DraftResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Text, "Drafted.") {
		t.Errorf("text = %q", result.Text)
	}
	if result.Meta.Backend != "mock" {
		t.Errorf("backend = %q", result.Meta.Backend)
	}
	if len(result.Meta.Exemplars) == 0 {
		t.Error("no exemplars recorded")
	}

	// The draft was persisted under the drafts directory.
	if result.Path == "" || !strings.HasPrefix(result.Path, layout.Drafts()) {
		t.Errorf("path = %q", result.Path)
	}
	if _, err := os.Stat(result.Path); err != nil {
		t.Errorf("draft file: %v", err)
	}
}

func TestDraftEndpointNoTopic(t *testing.T) {
	s, _ := newTestServer(t, seedFiles())

	w := doJSON(t, s, http.MethodPost, "/api/draft", map[string]any{"topic": "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestDraftEndpointNoBackend(t *testing.T) {
	s, _ := newTestServer(t, seedFiles())
	s.deps.Backend = nil

	w := doJSON(t, s, http.MethodPost, "/api/draft", map[string]any{"topic": "anything"})
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

// --- upload ---

func TestUploadGrant(t *testing.T) {
	// Empty corpus: the uploaded grant is the first one.
	s, layout := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "R21-ES654321.pdf")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("fake pdf bytes"))
	mw.WriteField("grant_id", "R21-ES654321")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/grants", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		GrantID  string `json:"grant_id"`
		Ingested int    `json:"ingested"`
		Embedded int    `json:"embedded"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.GrantID != "R21-ES654321" || resp.Ingested != 1 || resp.Embedded == 0 {
		t.Errorf("resp = %+v", resp)
	}

	// PDF and converted markdown landed in the data directory.
	if _, err := os.Stat(filepath.Join(layout.RawPDFs(), "R21-ES654321.pdf")); err != nil {
		t.Errorf("raw PDF: %v", err)
	}
	if _, err := os.Stat(filepath.Join(layout.FullMarkdown(), "R21-ES654321.md")); err != nil {
		t.Errorf("converted markdown: %v", err)
	}

	// The grant is immediately retrievable.
	rw := doJSON(t, s, http.MethodPost, "/api/retrieve", map[string]any{
		"query": "kelp forest thermal tolerance",
	})
	if rw.Code != http.StatusOK {
		t.Fatalf("retrieve status = %d: %s", rw.Code, rw.Body.String())
	}
	if !strings.Contains(rw.Body.String(), "R21-ES654321") {
		t.Errorf("uploaded grant not retrievable: %s", rw.Body.String())
	}
}

func TestUploadGrantMissingFile(t *testing.T) {
	s, _ := newTestServer(t, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("grant_id", "R01-AI123456")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/grants", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}
