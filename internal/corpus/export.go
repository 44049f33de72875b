// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// exportLimit caps export size as a sanity bound.
const exportLimit = 100000

// ExportEntry is one grant in the human-readable corpus export.
type ExportEntry struct {
	GrantID       string   `yaml:"grant_id" json:"grant_id"`
	Title         string   `yaml:"title,omitempty" json:"title,omitempty"`
	PI            string   `yaml:"pi,omitempty" json:"pi,omitempty"`
	Institution   string   `yaml:"institution,omitempty" json:"institution,omitempty"`
	ProjectNumber string   `yaml:"project_number,omitempty" json:"project_number,omitempty"`
	IC            string   `yaml:"ic,omitempty" json:"ic,omitempty"`
	FiscalYear    int      `yaml:"fy,omitempty" json:"fy,omitempty"`
	ImpactScore   *float64 `yaml:"impact_score,omitempty" json:"impact_score,omitempty"`
	Review        string   `yaml:"review" json:"review"`
	Heading       string   `yaml:"heading" json:"heading"`
	Chunks        int      `yaml:"chunks" json:"chunks"`
}

// ExportJSONL writes the clean training rows, one JSON object per line,
// to the clean JSONL directory. Rows are ordered by grant ID so reruns
// produce identical files.
func (s *Store) ExportJSONL(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT a.grant_id, a.heading, a.text, a.raw_md, g.impact_score
		 FROM aims a JOIN grants g ON g.id = a.grant_id
		 ORDER BY a.grant_id LIMIT ?`, exportLimit)
	if err != nil {
		return fmt.Errorf("querying aims for export: %w", err)
	}
	defer rows.Close()

	if err := os.MkdirAll(s.layout.CleanJSONL(), 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(s.layout.CleanJSONL(), "aims.jsonl")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for rows.Next() {
		var row types.AimsRow
		var score *float64
		if err := rows.Scan(&row.GrantID, &row.Heading, &row.Text, &row.RawMarkdown, &score); err != nil {
			return fmt.Errorf("scanning export row: %w", err)
		}
		row.Section = types.AimsSectionName
		row.Score = score
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encoding export row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	return f.Close()
}

// ExportYAML writes the corpus summary as YAML into the index directory.
func (s *Store) ExportYAML(ctx context.Context) error {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling export: %w", err)
	}
	return s.writeExport("export.yaml", data)
}

// ExportJSON writes the corpus summary as JSON into the index directory.
func (s *Store) ExportJSON(ctx context.Context) error {
	entries, err := s.exportEntries(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling export: %w", err)
	}
	return s.writeExport("export.json", append(data, '\n'))
}

func (s *Store) exportEntries(ctx context.Context) ([]ExportEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.title, g.pi, g.institution, g.project_number, g.ic,
			g.fiscal_year, g.impact_score, a.review, a.heading,
			(SELECT count(*) FROM chunks c WHERE c.grant_id = g.id)
		 FROM grants g JOIN aims a ON a.grant_id = g.id
		 ORDER BY g.id LIMIT ?`, exportLimit)
	if err != nil {
		return nil, fmt.Errorf("querying export entries: %w", err)
	}
	defer rows.Close()

	var entries []ExportEntry
	for rows.Next() {
		var e ExportEntry
		if err := rows.Scan(&e.GrantID, &e.Title, &e.PI, &e.Institution,
			&e.ProjectNumber, &e.IC, &e.FiscalYear, &e.ImpactScore,
			&e.Review, &e.Heading, &e.Chunks); err != nil {
			return nil, fmt.Errorf("scanning export entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) writeExport(name string, data []byte) error {
	if err := os.MkdirAll(s.layout.Index(), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}
	path := filepath.Join(s.layout.Index(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
