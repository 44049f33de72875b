// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/convert"
	"github.com/pdiddy/grant-engine/internal/corpus"
	"github.com/pdiddy/grant-engine/internal/generate"
	"github.com/pdiddy/grant-engine/internal/retrieve"
	"github.com/pdiddy/grant-engine/internal/server"
	"github.com/pdiddy/grant-engine/internal/vecindex"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the corpus and drafting pipeline over local HTTP",
	Long: `Serve starts a local HTTP server with a small demo page and a JSON API:
search the corpus, upload new grant PDFs, and draft Specific Aims sections
from a browser. The server is single-user and unauthenticated; keep it on
localhost.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, layout := pipelineConfig(cmd)

	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
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

	converter, err := convert.New(cfg.Conversion)
	if err != nil {
		return err
	}

	// Drafting is optional: without an API key the draft endpoint reports
	// itself unavailable and everything else still works.
	var backend generate.DraftBackend
	if cfg.Generation.APIKey != "" {
		backend, err = generate.New(cfg.Generation)
		if err != nil {
			return err
		}
	} else {
		fmt.Fprintln(os.Stderr, "no drafting API key configured; /api/draft disabled")
	}

	s := server.New(server.Deps{
		Store:     store,
		Index:     index,
		Embedder:  embedder,
		Retriever: retrieve.New(store, index, embedder, cfg.Retrieval),
		Backend:   backend,
		Converter: converter,
		Layout:    layout,
		Config:    cfg,
	})

	fmt.Fprintf(os.Stdout, "serving on http://%s\n", cfg.Server.Addr)
	return s.Run(cfg.Server.Addr)
}

func init() {
	serveCmd.Flags().String("addr", "", "listen address (default localhost:8080)")

	rootCmd.AddCommand(serveCmd)
}
