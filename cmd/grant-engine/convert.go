// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/convert"
	"github.com/pdiddy/grant-engine/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [pdfs...]",
	Short: "Convert grant PDFs to markdown",
	Long: `Convert extracts text from grant PDFs in data/00_raw_pdfs/ and writes
markdown with provenance frontmatter to data/02_full_md/. With no arguments
every PDF in the raw directory is processed; markdown newer than its PDF is
skipped.

Backends: native (pure Go, default), grobid (running GROBID service, best
section structure), pdftotext (poppler, direct or containerized).`,
	RunE: runConvert,
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg, layout := pipelineConfig(cmd)

	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Conversion.Backend = types.ConversionBackend(backend)
	}

	converter, err := convert.New(cfg.Conversion)
	if err != nil {
		return err
	}

	var result convert.BatchResult
	if len(args) > 0 {
		result = convert.ConvertBatch(converter, args, layout, os.Stdout)
	} else {
		result, err = convert.ConvertDir(converter, layout, os.Stdout)
		if err != nil {
			return err
		}
	}

	if result.HasFailures() {
		return fmt.Errorf("%d conversion(s) failed", result.Failed)
	}
	return nil
}

func init() {
	convertCmd.Flags().String("backend", "", "conversion backend: native, grobid, or pdftotext")

	rootCmd.AddCommand(convertCmd)
}
