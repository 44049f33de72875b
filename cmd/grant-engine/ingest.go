// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/chunk"
	"github.com/pdiddy/grant-engine/internal/corpus"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Structure converted grants into the corpus database",
	Long: `Ingest scans converted markdown in data/02_full_md/ and reviewed aims in
data/04_reviewed_aims_md/, extracts each grant's Specific Aims section, and
populates the SQLite corpus. Reviewed files override machine extraction for
the same grant. Unchanged grants are skipped; --force re-ingests everything,
which is needed after changing the chunking configuration.`,
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, layout := pipelineConfig(cmd)
	force, _ := cmd.Flags().GetBool("force")

	store, err := corpus.NewStore(layout, cfg.Retrieval)
	if err != nil {
		return err
	}
	defer store.Close()

	splitter := chunk.NewSplitter(cfg.Chunking)
	summary, err := store.Ingest(context.Background(), splitter, corpus.IngestOptions{Force: force}, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d grant(s) failed ingest", summary.Failed)
	}
	return nil
}

func init() {
	ingestCmd.Flags().Bool("force", false, "re-ingest grants whose source files have not changed")

	rootCmd.AddCommand(ingestCmd)
}
