// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the corpus and the drafting pipeline over a local
// HTTP API with a small demo page. It is meant for one researcher on one
// machine; there is no authentication and writes go straight to the data
// directory.
package server

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pdiddy/grant-engine/internal/aims"
	"github.com/pdiddy/grant-engine/internal/chunk"
	"github.com/pdiddy/grant-engine/internal/convert"
	"github.com/pdiddy/grant-engine/internal/corpus"
	"github.com/pdiddy/grant-engine/internal/embed"
	"github.com/pdiddy/grant-engine/internal/generate"
	"github.com/pdiddy/grant-engine/internal/retrieve"
	"github.com/pdiddy/grant-engine/internal/vecindex"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// maxUploadBytes caps PDF uploads at 32 MB.
const maxUploadBytes = 32 << 20

// Deps are the pipeline pieces the server serves. All fields are required
// except Backend, without which POST /api/draft returns 503.
type Deps struct {
	Store     *corpus.Store
	Index     *vecindex.Index
	Embedder  embed.Embedder
	Retriever *retrieve.Retriever
	Backend   generate.DraftBackend
	Converter convert.Converter
	Layout    types.Layout
	Config    types.PipelineConfig
}

// Server wires the pipeline behind a gin engine.
type Server struct {
	deps   Deps
	engine *gin.Engine
}

// New builds the server and registers its routes.
func New(deps Deps) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestID())

	s := &Server{deps: deps, engine: engine}

	engine.GET("/", s.handleIndex)
	engine.GET("/health", s.handleHealth)

	api := engine.Group("/api")
	api.GET("/grants", s.handleListGrants)
	api.POST("/grants", s.handleUploadGrant)
	api.POST("/retrieve", s.handleRetrieve)
	api.POST("/draft", s.handleDraft)

	return s
}

// Handler returns the underlying HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until the listener fails.
func (s *Server) Run(addr string) error {
	if addr == "" {
		addr = "localhost:8080"
	}
	return s.engine.Run(addr)
}

// requestID tags every request with a UUID, echoed in the X-Request-ID
// response header.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}

func (s *Server) handleHealth(c *gin.Context) {
	grants, err := s.deps.Store.CountGrants(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"grants":  grants,
		"vectors": s.deps.Index.Len(),
	})
}

func (s *Server) handleListGrants(c *gin.Context) {
	grants, err := s.deps.Store.ListGrants(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"grants": grants, "count": len(grants)})
}

// retrieveRequest is the body of POST /api/retrieve.
type retrieveRequest struct {
	Query      string `json:"query" binding:"required"`
	MaxResults int    `json:"max_results"`
	Keyword    string `json:"keyword"`
}

func (s *Server) handleRetrieve(c *gin.Context) {
	var req retrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := s.deps.Retriever.Retrieve(c.Request.Context(), retrieve.Options{
		Query:      req.Query,
		MaxResults: req.MaxResults,
		Keyword:    req.Keyword,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if results == nil {
		results = []types.Exemplar{}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results)})
}

func (s *Server) handleDraft(c *gin.Context) {
	if s.deps.Backend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no drafting backend configured (set an API key)"})
		return
	}

	var req types.DraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Topic) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic is required"})
		return
	}

	query := req.Topic
	if req.Hypothesis != "" {
		query += " " + req.Hypothesis
	}

	count := req.ExemplarCount
	if count <= 0 {
		count = s.deps.Config.Generation.ExemplarCount
	}
	if count <= 0 {
		count = 3
	}

	exemplars, err := s.deps.Retriever.Retrieve(c.Request.Context(), retrieve.Options{
		Query:      query,
		MaxResults: count,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("retrieving exemplars: %v", err)})
		return
	}

	result, err := generate.Generate(c.Request.Context(), s.deps.Backend, req, exemplars, s.deps.Config.Generation)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if err := generate.WriteDraft(&result, s.deps.Layout); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleUploadGrant accepts a multipart PDF, converts it, re-ingests the
// corpus, and embeds any new chunks, so the grant is retrievable as soon as
// the request returns.
func (s *Server) handleUploadGrant(c *gin.Context) {
	if err := c.Request.ParseMultipartForm(maxUploadBytes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parsing upload form: " + err.Error()})
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	defer file.Close()

	grantID := c.PostForm("grant_id")
	if grantID == "" {
		stem := strings.TrimSuffix(filepath.Base(header.Filename), filepath.Ext(header.Filename))
		grantID = aims.NormalizeGrantID(stem)
	}
	if grantID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot derive a grant ID from the filename; pass grant_id"})
		return
	}

	if err := os.MkdirAll(s.deps.Layout.RawPDFs(), 0o755); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	pdfPath := filepath.Join(s.deps.Layout.RawPDFs(), grantID+".pdf")
	dst, err := os.Create(pdfPath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "saving PDF: " + err.Error()})
		return
	}
	if err := dst.Close(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	status := convert.ConvertGrant(s.deps.Converter, pdfPath, s.deps.Layout, io.Discard)
	if status == types.ConversionFailed {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "PDF conversion failed", "grant_id": grantID})
		return
	}

	splitter := chunk.NewSplitter(s.deps.Config.Chunking)
	ingested, err := s.deps.Store.Ingest(c.Request.Context(), splitter, corpus.IngestOptions{}, io.Discard)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "ingesting: " + err.Error()})
		return
	}

	embedded, err := embed.EmbedCorpus(c.Request.Context(), s.deps.Store, s.deps.Index, s.deps.Embedder, embed.Options{}, io.Discard)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "embedding: " + err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"grant_id": grantID,
		"ingested": ingested.Indexed,
		"skipped":  ingested.Skipped,
		"embedded": embedded.Embedded,
	})
}
