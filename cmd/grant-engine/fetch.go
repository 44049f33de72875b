// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/fetch"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download exemplar grant PDFs listed in the manifest",
	Long: `Fetch downloads the exemplar PDFs named in the grants manifest into
data/00_raw_pdfs/ and records per-grant metadata. PDFs already on disk are
skipped, so re-running after adding manifest entries only downloads the new
ones.`,
	RunE: runFetch,
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, layout := pipelineConfig(cmd)

	if manifest, _ := cmd.Flags().GetString("manifest"); manifest != "" {
		cfg.Fetch.Manifest = manifest
	}

	entries, err := fetch.LoadManifest(cfg.Fetch.Manifest)
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: cfg.Fetch.Timeout}
	result := fetch.FetchBatch(client, entries, layout, cfg.Fetch, os.Stdout)
	if result.HasFailures() {
		return fmt.Errorf("%d download(s) failed", result.Failed)
	}
	return nil
}

func init() {
	fetchCmd.Flags().String("manifest", "", "manifest path (default: grants.yaml or the configured one)")

	rootCmd.AddCommand(fetchCmd)
}
