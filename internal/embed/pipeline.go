// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/pdiddy/grant-engine/internal/corpus"
	"github.com/pdiddy/grant-engine/internal/vecindex"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// Options adjusts an embedding run.
type Options struct {
	// Rebuild clears the vector index first. Required when switching
	// embedding models or after a TF-IDF refit changes dimensions.
	Rebuild bool
}

// Summary holds per-grant counts from an embedding run.
type Summary struct {
	Embedded int
	Skipped  int
	Failed   int
}

// Total returns the number of grants processed.
func (s Summary) Total() int {
	return s.Embedded + s.Skipped + s.Failed
}

// HasFailures reports whether any grants failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// EmbedCorpus vectorizes every chunk in the corpus and stores the vectors
// in the index, grant by grant. Chunks already indexed are skipped unless
// Rebuild is set. Backends that learn from the corpus are fitted on all
// chunk texts first.
func EmbedCorpus(ctx context.Context, store *corpus.Store, idx *vecindex.Index, embedder Embedder, opts Options, w io.Writer) (Summary, error) {
	chunks, err := store.ListChunks(ctx)
	if err != nil {
		return Summary{}, err
	}
	if len(chunks) == 0 {
		fmt.Fprintln(w, "no chunks in corpus; run ingest first")
		return Summary{}, nil
	}

	if opts.Rebuild {
		if err := idx.Reset(); err != nil {
			return Summary{}, fmt.Errorf("resetting vector index: %w", err)
		}
	}

	if idx.Len() > 0 && idx.Model() != embedder.Model() {
		return Summary{}, fmt.Errorf("index holds %q vectors but backend produces %q; rerun with --rebuild",
			idx.Model(), embedder.Model())
	}

	if fitter, ok := embedder.(Fitter); ok {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		if err := fitter.Fit(texts); err != nil {
			return Summary{}, fmt.Errorf("fitting embedder: %w", err)
		}
	}

	var summary Summary
	for _, grant := range groupByGrant(chunks) {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		pending := grant.chunks
		if !opts.Rebuild {
			pending = nil
			for _, ch := range grant.chunks {
				if !idx.Has(ch.ID) {
					pending = append(pending, ch)
				}
			}
		}
		if len(pending) == 0 {
			fmt.Fprintf(w, "skipped %s\n", grant.id)
			summary.Skipped++
			continue
		}

		texts := make([]string, len(pending))
		for i, ch := range pending {
			texts[i] = ch.Text
		}

		vecs, err := embedder.Embed(ctx, texts)
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", grant.id, err)
			summary.Failed++
			continue
		}
		if len(vecs) != len(pending) {
			fmt.Fprintf(w, "failed  %s: got %d vectors for %d chunks\n", grant.id, len(vecs), len(pending))
			summary.Failed++
			continue
		}

		entries := make([]vecindex.Entry, len(pending))
		for i, ch := range pending {
			entries[i] = vecindex.Entry{ChunkID: ch.ID, GrantID: ch.GrantID, Vector: vecs[i]}
		}
		if err := idx.Add(embedder.Model(), entries); err != nil {
			// A dimension or model clash poisons the whole run, not just
			// this grant.
			if errors.Is(err, vecindex.ErrDimensionMismatch) || errors.Is(err, vecindex.ErrModelMismatch) {
				return summary, fmt.Errorf("storing vectors for %s: %w; rerun with --rebuild", grant.id, err)
			}
			fmt.Fprintf(w, "failed  %s: %v\n", grant.id, err)
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "embedded %s (%d chunks)\n", grant.id, len(pending))
		summary.Embedded++
	}

	fmt.Fprintf(w, "\nembedded: %d, skipped: %d, failed: %d\n",
		summary.Embedded, summary.Skipped, summary.Failed)
	return summary, nil
}

// grantChunks is one grant's chunks in sequence order.
type grantChunks struct {
	id     string
	chunks []types.Chunk
}

// groupByGrant splits the corpus chunk list, which arrives ordered by
// grant, into per-grant groups.
func groupByGrant(chunks []types.Chunk) []grantChunks {
	var groups []grantChunks
	for _, ch := range chunks {
		if len(groups) == 0 || groups[len(groups)-1].id != ch.GrantID {
			groups = append(groups, grantChunks{id: ch.GrantID})
		}
		groups[len(groups)-1].chunks = append(groups[len(groups)-1].chunks, ch)
	}
	return groups
}
