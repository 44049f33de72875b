// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package embed turns chunk text into vectors. Two backends implement the
// Embedder strategy: a hosted OpenAI-compatible API and a local TF-IDF
// model for offline runs.
package embed

import (
	"context"
	"fmt"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// Embedder produces one vector per input text, in input order. Every
// vector from one Embedder has the same dimension count.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model identifies the embedding model. The vector index records it
	// and rejects vectors from a different model.
	Model() string
}

// Fitter is implemented by embedders that learn parameters from the
// corpus before embedding. The embed stage fits on all chunk texts.
type Fitter interface {
	Fit(texts []string) error
}

// New selects the embedding backend from config. The hosted backend is
// the default.
func New(cfg types.EmbeddingConfig, layout types.Layout) (Embedder, error) {
	switch cfg.Backend {
	case types.EmbedOpenAI, "":
		return NewOpenAIEmbedder(cfg), nil
	case types.EmbedTFIDF:
		return NewTFIDF(layout.TFIDFState())
	default:
		return nil, fmt.Errorf("unknown embedding backend %q", cfg.Backend)
	}
}
