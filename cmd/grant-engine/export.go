// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/corpus"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the corpus to YAML, JSON, or JSONL",
	Long: `Export writes the structured corpus to disk: yaml and json produce a
per-grant summary under data/index/, jsonl rewrites the clean training rows
under data/05_clean_jsonl/ (one aims section per line).`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")

	cfg, layout := pipelineConfig(cmd)
	store, err := corpus.NewStore(layout, cfg.Retrieval)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	switch format {
	case "yaml", "":
		if err := store.ExportYAML(ctx); err != nil {
			return err
		}
		fmt.Printf("Exported to %s/export.yaml\n", layout.Index())
	case "json":
		if err := store.ExportJSON(ctx); err != nil {
			return err
		}
		fmt.Printf("Exported to %s/export.json\n", layout.Index())
	case "jsonl":
		if err := store.ExportJSONL(ctx); err != nil {
			return err
		}
		fmt.Printf("Exported to %s/aims.jsonl\n", layout.CleanJSONL())
	default:
		return fmt.Errorf("unsupported format %q: use yaml, json, or jsonl", format)
	}
	return nil
}

func init() {
	exportCmd.Flags().String("format", "yaml", "export format: yaml, json, or jsonl")

	rootCmd.AddCommand(exportCmd)
}
