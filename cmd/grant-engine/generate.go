// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/corpus"
	"github.com/pdiddy/grant-engine/internal/generate"
	"github.com/pdiddy/grant-engine/internal/retrieve"
	"github.com/pdiddy/grant-engine/internal/vecindex"
	"github.com/pdiddy/grant-engine/pkg/types"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Draft a Specific Aims section from the best-matching exemplars",
	Long: `Generate retrieves the exemplars closest to your topic, builds a prompt
around them, and asks the drafting model for a one-page Specific Aims
section. The draft is written to data/06_drafts/ with provenance
frontmatter naming the exemplars used.

The topic is required; a hypothesis and planned aims sharpen both
retrieval and the draft.`,
	RunE: runGenerate,
}

func runGenerate(cmd *cobra.Command, args []string) error {
	topic, _ := cmd.Flags().GetString("topic")
	if topic == "" && len(args) > 0 {
		topic = strings.Join(args, " ")
	}
	if topic == "" {
		return fmt.Errorf("topic required: pass it as arguments or --topic")
	}

	cfg, layout := pipelineConfig(cmd)

	if backendName, _ := cmd.Flags().GetString("backend"); backendName != "" {
		cfg.Generation.Backend = types.GenerationBackend(backendName)
	}
	if cfg.Generation.APIKey == "" {
		return fmt.Errorf("no API key for the %s backend: add it to .secrets/ or the config file", cfg.Generation.Backend)
	}

	hypothesis, _ := cmd.Flags().GetString("hypothesis")
	aimsList, _ := cmd.Flags().GetStringArray("aim")
	count, _ := cmd.Flags().GetInt("exemplars")

	req := types.DraftRequest{
		Topic:         topic,
		Hypothesis:    hypothesis,
		Aims:          aimsList,
		ExemplarCount: count,
	}

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

	ctx := context.Background()

	query := topic
	if hypothesis != "" {
		query += " " + hypothesis
	}
	exemplarCount := count
	if exemplarCount <= 0 {
		exemplarCount = cfg.Generation.ExemplarCount
	}

	r := retrieve.New(store, index, embedder, cfg.Retrieval)
	exemplars, err := r.Retrieve(ctx, retrieve.Options{Query: query, MaxResults: exemplarCount})
	if err != nil {
		return fmt.Errorf("retrieving exemplars: %w", err)
	}
	if len(exemplars) == 0 {
		fmt.Fprintln(os.Stderr, "warning: no exemplars matched; drafting from the request alone")
	}

	backend, err := generate.New(cfg.Generation)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "drafting with %s from %d exemplar(s)\n", backend.Name(), len(exemplars))
	result, err := generate.Generate(ctx, backend, req, exemplars, cfg.Generation)
	if err != nil {
		return err
	}
	if err := generate.WriteDraft(&result, layout); err != nil {
		return err
	}

	// Flag hallucinated citations: grant IDs the corpus has never seen.
	grants, err := store.ListGrants(ctx)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(grants))
	for _, g := range grants {
		known[g.ID] = true
	}
	if missing := generate.ValidateCitations(result.Text, known); len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "warning: draft cites unknown grants: %s\n", strings.Join(missing, ", "))
	}

	fmt.Fprintf(os.Stdout, "draft written to %s\n", result.Path)
	return nil
}

func init() {
	generateCmd.Flags().String("topic", "", "research topic in one or two sentences")
	generateCmd.Flags().String("hypothesis", "", "central hypothesis")
	generateCmd.Flags().StringArray("aim", nil, "planned aim (repeatable, in order)")
	generateCmd.Flags().Int("exemplars", 0, "number of exemplars in the prompt (0 = use default)")
	generateCmd.Flags().String("backend", "", "drafting backend: claude or openai")

	rootCmd.AddCommand(generateCmd)
}
