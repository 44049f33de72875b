// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/corpus"
	"github.com/pdiddy/grant-engine/internal/embed"
	"github.com/pdiddy/grant-engine/internal/vecindex"
	"github.com/pdiddy/grant-engine/pkg/types"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Vectorize ingested aims chunks into the vector index",
	Long: `Embed turns every ingested chunk into a vector and stores it in the
vector index. Chunks already indexed are skipped. Use --rebuild after
switching embedding backends or models; the index refuses mixed dimensions.

Backends: tfidf (local, default) or openai (hosted API; responses are
cached on disk so re-embedding unchanged chunks is free).`,
	RunE: runEmbed,
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg, layout := pipelineConfig(cmd)
	rebuild, _ := cmd.Flags().GetBool("rebuild")

	store, err := corpus.NewStore(layout, cfg.Retrieval)
	if err != nil {
		return err
	}
	defer store.Close()

	index, err := vecindex.Open(layout.VectorDB())
	if err != nil {
		return err
	}
	defer index.Close()

	embedder, cleanup, err := newEmbedder(cfg, layout)
	if err != nil {
		return err
	}
	defer cleanup()

	summary, err := embed.EmbedCorpus(context.Background(), store, index, embedder, embed.Options{Rebuild: rebuild}, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d grant(s) failed embedding", summary.Failed)
	}
	return nil
}

// newEmbedder builds the configured embedder. Hosted backends are wrapped
// in the on-disk cache; the returned cleanup closes it.
func newEmbedder(cfg types.PipelineConfig, layout types.Layout) (embed.Embedder, func() error, error) {
	inner, err := embed.New(cfg.Embedding, layout)
	if err != nil {
		return nil, nil, err
	}

	if cfg.Embedding.Backend == types.EmbedTFIDF {
		return inner, func() error { return nil }, nil
	}

	cached, err := embed.NewCached(inner, layout.EmbedCache())
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}

func init() {
	embedCmd.Flags().Bool("rebuild", false, "clear the index and re-embed everything")

	rootCmd.AddCommand(embedCmd)
}
