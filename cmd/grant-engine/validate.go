// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/grant-engine/internal/aims"
	"github.com/pdiddy/grant-engine/internal/corpus"
)

var validateCmd = &cobra.Command{
	Use:   "validate [grant-ids...]",
	Short: "Check ingested aims sections for extraction problems",
	Long: `Validate inspects each ingested Specific Aims section and reports likely
extraction problems: sections that are suspiciously short or long, missing
aim subheadings, or heading-only bodies. Fix flagged grants by placing a
corrected copy in data/04_reviewed_aims_md/ and re-running ingest.`,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, layout := pipelineConfig(cmd)

	store, err := corpus.NewStore(layout, cfg.Retrieval)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	ids := args
	if len(ids) == 0 {
		grants, err := store.ListGrants(ctx)
		if err != nil {
			return err
		}
		for _, g := range grants {
			ids = append(ids, g.ID)
		}
	}

	flagged := 0
	for _, id := range ids {
		section, err := store.GetAims(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stdout, "%-16s error: %v\n", id, err)
			flagged++
			continue
		}

		issues := aims.Validate(&aims.Section{
			Heading:     section.Heading,
			Text:        section.Text,
			RawMarkdown: section.RawMarkdown,
		})
		if len(issues) == 0 {
			fmt.Fprintf(os.Stdout, "%-16s ok (%s)\n", id, section.Review)
			continue
		}

		flagged++
		for _, issue := range issues {
			fmt.Fprintf(os.Stdout, "%-16s %s\n", id, issue)
		}
	}

	fmt.Fprintf(os.Stdout, "\n%d of %d grant(s) flagged\n", flagged, len(ids))
	if flagged > 0 {
		return fmt.Errorf("%d grant(s) need review", flagged)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
