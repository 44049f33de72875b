// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retrieve answers queries against the embedded corpus: the query
// is vectorized, scored against the nearest-neighbor index, and the winning
// chunks come back joined with their grant metadata. Queries that cannot be
// vectorized fall back to lexical search over the full-text index.
package retrieve

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/pdiddy/grant-engine/internal/corpus"
	"github.com/pdiddy/grant-engine/internal/embed"
	"github.com/pdiddy/grant-engine/internal/vecindex"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// Retriever runs retrieval queries over one corpus and vector index.
type Retriever struct {
	store    *corpus.Store
	index    *vecindex.Index
	embedder embed.Embedder
	cfg      types.RetrievalConfig
}

// New builds a Retriever. The embedder must be the one the index was built
// with; mismatches surface as dimension errors at query time.
func New(store *corpus.Store, index *vecindex.Index, embedder embed.Embedder, cfg types.RetrievalConfig) *Retriever {
	return &Retriever{store: store, index: index, embedder: embedder, cfg: cfg}
}

// Options holds the parameters of one retrieval query.
type Options struct {
	// Query is the free-text research description to match against.
	Query string

	// MaxResults caps the number of exemplars returned. Zero means the
	// configured default.
	MaxResults int

	// Keyword, when set, narrows candidates to chunks matching this FTS5
	// query before cosine ranking.
	Keyword string

	// MinSimilarity drops hits below this score. Zero means the
	// configured default.
	MinSimilarity float64
}

// Retrieve returns the best-matching exemplars for the query, highest
// similarity first.
func (r *Retriever) Retrieve(ctx context.Context, opts Options) ([]types.Exemplar, error) {
	if strings.TrimSpace(opts.Query) == "" {
		return nil, fmt.Errorf("query is empty")
	}

	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = r.cfg.MaxResults
	}
	if maxResults <= 0 {
		maxResults = 10
	}
	minSim := opts.MinSimilarity
	if minSim == 0 {
		minSim = r.cfg.MinSimilarity
	}

	if r.index.Len() == 0 {
		return r.lexical(ctx, opts.Query, maxResults)
	}

	vecs, err := r.embedder.Embed(ctx, []string{opts.Query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	if isZero(vecs[0]) {
		// The query shares no vocabulary with the corpus; cosine scores
		// would be meaningless.
		return r.lexical(ctx, opts.Query, maxResults)
	}

	var allowed map[string]bool
	if opts.Keyword != "" {
		ids, err := r.store.KeywordChunkIDs(ctx, opts.Keyword, r.index.Len())
		if err != nil {
			return nil, fmt.Errorf("keyword filter: %w", err)
		}
		if len(ids) == 0 {
			return nil, nil
		}
		allowed = make(map[string]bool, len(ids))
		for _, id := range ids {
			allowed[id] = true
		}
	}

	// With a keyword filter in play the top hits may be filtered out, so
	// rank everything and cut afterwards.
	topK := maxResults
	if allowed != nil {
		topK = r.index.Len()
	}

	hits, err := r.index.Search(vecs[0], topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	var kept []vecindex.Hit
	for _, h := range hits {
		if allowed != nil && !allowed[h.ChunkID] {
			continue
		}
		if h.Score < minSim {
			continue
		}
		kept = append(kept, h)
		if len(kept) == maxResults {
			break
		}
	}
	if len(kept) == 0 {
		return nil, nil
	}

	chunkIDs := make([]string, len(kept))
	for i, h := range kept {
		chunkIDs[i] = h.ChunkID
	}
	byID, err := r.store.ExemplarsByChunkIDs(ctx, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("joining grant metadata: %w", err)
	}

	results := make([]types.Exemplar, 0, len(kept))
	for _, h := range kept {
		ex, ok := byID[h.ChunkID]
		if !ok {
			// Vector survived a corpus re-ingest that dropped its chunk.
			continue
		}
		ex.Similarity = h.Score
		results = append(results, ex)
	}
	return results, nil
}

// lexical is the no-vector fallback: token-overlap ranking over the
// full-text index.
func (r *Retriever) lexical(ctx context.Context, query string, maxResults int) ([]types.Exemplar, error) {
	results, err := r.store.LexicalSearch(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("lexical fallback: %w", err)
	}
	return results, nil
}

func isZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// FormatTable writes exemplars as a human-readable table to w.
func FormatTable(results []types.Exemplar, w io.Writer) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-14s  %-50s  %-6s  %-5s  %s\n",
		"Rank", "Grant", "Title", "Score", "Sim", "Excerpt")
	fmt.Fprintln(w, strings.Repeat("-", 120))

	for i, ex := range results {
		title := truncate(ex.Title, 50)
		score := ""
		if ex.ImpactScore != nil {
			score = fmt.Sprintf("%.0f", *ex.ImpactScore)
		}
		excerpt := truncate(strings.Join(strings.Fields(ex.Excerpt), " "), 40)
		fmt.Fprintf(w, "%-4d  %-14s  %-50s  %-6s  %.3f  %s\n",
			i+1, truncate(ex.GrantID, 14), title, score, ex.Similarity, excerpt)
	}

	fmt.Fprintf(w, "\n%d results\n", len(results))
}

// FormatJSON writes exemplars as indented JSON to w.
func FormatJSON(results []types.Exemplar, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
