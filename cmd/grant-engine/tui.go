// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/corpus"
	"github.com/pdiddy/grant-engine/internal/generate"
	"github.com/pdiddy/grant-engine/internal/retrieve"
	"github.com/pdiddy/grant-engine/internal/tui"
	"github.com/pdiddy/grant-engine/internal/vecindex"
	"github.com/pdiddy/grant-engine/pkg/types"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Browse exemplars interactively in the terminal",
	Long: `Tui opens a terminal browser over the exemplar corpus: type a topic,
walk the retrieved aims excerpts with the arrow keys, and press g to draft
a Specific Aims section from the current query.`,
	RunE: runTUI,
}

// tuiSearch adapts the retriever to the TUI's search port.
type tuiSearch struct {
	r *retrieve.Retriever
}

func (s tuiSearch) Retrieve(ctx context.Context, query string, maxResults int) ([]types.Exemplar, error) {
	return s.r.Retrieve(ctx, retrieve.Options{Query: query, MaxResults: maxResults})
}

// tuiDrafter adapts the generation pipeline to the TUI's draft port.
type tuiDrafter struct {
	r       *retrieve.Retriever
	backend generate.DraftBackend
	cfg     types.GenerationConfig
	layout  types.Layout
}

func (d tuiDrafter) DraftFromTopic(ctx context.Context, topic string) (types.DraftResult, error) {
	count := d.cfg.ExemplarCount
	if count <= 0 {
		count = 3
	}
	exemplars, err := d.r.Retrieve(ctx, retrieve.Options{Query: topic, MaxResults: count})
	if err != nil {
		return types.DraftResult{}, err
	}
	result, err := generate.Generate(ctx, d.backend, types.DraftRequest{Topic: topic}, exemplars, d.cfg)
	if err != nil {
		return types.DraftResult{}, err
	}
	if err := generate.WriteDraft(&result, d.layout); err != nil {
		return types.DraftResult{}, err
	}
	return result, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
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

	grants, err := store.CountGrants(context.Background())
	if err != nil {
		return err
	}
	banner := fmt.Sprintf("%d grants, %d vectors indexed", grants, index.Len())

	retriever := retrieve.New(store, index, embedder, cfg.Retrieval)

	var drafter tui.DraftPort
	if cfg.Generation.APIKey != "" {
		backend, err := generate.New(cfg.Generation)
		if err != nil {
			return err
		}
		drafter = tuiDrafter{r: retriever, backend: backend, cfg: cfg.Generation, layout: layout}
	}

	p := tea.NewProgram(tui.New(tuiSearch{r: retriever}, drafter, banner), tea.WithAltScreen())
	_, err = p.Run()
	return err
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}
