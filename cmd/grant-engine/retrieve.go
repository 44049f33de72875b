// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/corpus"
	"github.com/pdiddy/grant-engine/internal/retrieve"
	"github.com/pdiddy/grant-engine/internal/vecindex"
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve [query...]",
	Short: "Find exemplar aims sections matching a research topic",
	Long: `Retrieve embeds the query, ranks every indexed chunk by cosine
similarity, and prints the best exemplars with their grant metadata. When
the vector index is empty the query falls back to lexical full-text search.

--keyword narrows candidates with an FTS5 match (e.g. a required term)
before similarity ranking.`,
	RunE: runRetrieve,
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	if query == "" && len(args) > 0 {
		query = strings.Join(args, " ")
	}
	if query == "" {
		return fmt.Errorf("query required: pass it as arguments or --query")
	}

	cfg, layout := pipelineConfig(cmd)

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

	keyword, _ := cmd.Flags().GetString("keyword")
	limit, _ := cmd.Flags().GetInt("limit")
	minSim, _ := cmd.Flags().GetFloat64("min-similarity")

	r := retrieve.New(store, index, embedder, cfg.Retrieval)
	results, err := r.Retrieve(context.Background(), retrieve.Options{
		Query:         query,
		MaxResults:    limit,
		Keyword:       keyword,
		MinSimilarity: minSim,
	})
	if err != nil {
		return err
	}

	if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
		return retrieve.FormatJSON(results, os.Stdout)
	}
	retrieve.FormatTable(results, os.Stdout)
	return nil
}

func init() {
	retrieveCmd.Flags().String("query", "", "research topic to match against")
	retrieveCmd.Flags().String("keyword", "", "FTS5 keyword filter applied before ranking")
	retrieveCmd.Flags().Int("limit", 0, "maximum results (0 = use default)")
	retrieveCmd.Flags().Float64("min-similarity", 0, "drop hits below this cosine similarity")
	retrieveCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(retrieveCmd)
}
