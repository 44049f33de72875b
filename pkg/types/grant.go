// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// ConversionStatus indicates the state of PDF-to-markdown conversion for a grant.
type ConversionStatus string

const (
	ConversionNone   ConversionStatus = "none"
	ConversionDone   ConversionStatus = "converted"
	ConversionFailed ConversionStatus = "failed"
)

// ReviewStatus records whether an aims section is machine output or has been
// corrected by a human reviewer.
type ReviewStatus string

const (
	ReviewExtracted ReviewStatus = "extracted"
	ReviewReviewed  ReviewStatus = "reviewed"
)

// GrantRecord holds metadata and file paths for one exemplar grant.
// Records are created at ingest and read during retrieval; pipeline stages
// never mutate or delete them.
type GrantRecord struct {
	// ID is a slug derived from the source filename (e.g. "R01-AI123456").
	ID string `json:"grant_id" yaml:"grant_id"`

	// Title is the project title, scraped from the cover page or supplied
	// by the fetch manifest.
	Title string `json:"title" yaml:"title"`

	// PI is the principal investigator named on the cover page.
	PI string `json:"pi,omitempty" yaml:"pi,omitempty"`

	// Institution is the applicant organization.
	Institution string `json:"institution,omitempty" yaml:"institution,omitempty"`

	// ProjectNumber is the full NIH project number (e.g. "1-R01-AI123456").
	ProjectNumber string `json:"project_number,omitempty" yaml:"project_number,omitempty"`

	// IC is the funding institute or center code (e.g. "NIAID").
	IC string `json:"ic,omitempty" yaml:"ic,omitempty"`

	// FiscalYear is the award fiscal year.
	FiscalYear int `json:"fy,omitempty" yaml:"fy,omitempty"`

	// ImpactScore is the review impact score, when known. Nil means unscored.
	ImpactScore *float64 `json:"impact_score,omitempty" yaml:"impact_score,omitempty"`

	// SHA256 is the hex digest of the source PDF.
	SHA256 string `json:"sha256,omitempty" yaml:"sha256,omitempty"`

	// SourcePDF is the local path of the source PDF.
	SourcePDF string `json:"source_pdf,omitempty" yaml:"source_pdf,omitempty"`

	// MarkdownPath is the local path of the converted markdown.
	MarkdownPath string `json:"markdown_path,omitempty" yaml:"markdown_path,omitempty"`

	// ConversionStatus tracks whether the PDF has been converted.
	ConversionStatus ConversionStatus `json:"conversion_status" yaml:"conversion_status"`
}

// AimsSection is the extracted Specific Aims text of one grant.
type AimsSection struct {
	// GrantID matches the owning GrantRecord.
	GrantID string `json:"grant_id" yaml:"grant_id"`

	// Heading is the section heading as it appears in the document.
	Heading string `json:"heading" yaml:"heading"`

	// Text is the section body with single newlines squashed so each
	// paragraph is one line.
	Text string `json:"text" yaml:"text"`

	// RawMarkdown preserves the section exactly as extracted.
	RawMarkdown string `json:"raw_md" yaml:"raw_md"`

	// Review records whether a human has corrected this section.
	Review ReviewStatus `json:"review" yaml:"review"`
}

// Chunk is a contiguous sentence window of an aims section, the unit of
// embedding and retrieval. A grant maps to one or more chunks; every chunk
// names its grant so stored vectors trace back to exactly one source document.
type Chunk struct {
	// ID is "<grantID>:<seq>".
	ID string `json:"id" yaml:"id"`

	// GrantID matches the owning GrantRecord.
	GrantID string `json:"grant_id" yaml:"grant_id"`

	// Seq is the zero-based chunk position within the section.
	Seq int `json:"seq" yaml:"seq"`

	// Text is the chunk content.
	Text string `json:"text" yaml:"text"`
}

// GrantMeta is the per-grant metadata YAML written under data/metadata/.
// Fetch creates it; ingest merges in the scraped cover-page fields.
type GrantMeta struct {
	GrantID       string     `json:"grant_id" yaml:"grant_id"`
	Title         string     `json:"title,omitempty" yaml:"title,omitempty"`
	SourceURL     string     `json:"source_url,omitempty" yaml:"source_url,omitempty"`
	SourcePDF     string     `json:"source_pdf,omitempty" yaml:"source_pdf,omitempty"`
	SHA256        string     `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	ImpactScore   *float64   `json:"impact_score,omitempty" yaml:"impact_score,omitempty"`
	PI            string     `json:"pi,omitempty" yaml:"pi,omitempty"`
	Institution   string     `json:"institution,omitempty" yaml:"institution,omitempty"`
	ProjectNumber string     `json:"project_number,omitempty" yaml:"project_number,omitempty"`
	IC            string     `json:"ic,omitempty" yaml:"ic,omitempty"`
	FiscalYear    int        `json:"fy,omitempty" yaml:"fy,omitempty"`
	FetchedAt     *time.Time `json:"fetched_at,omitempty" yaml:"fetched_at,omitempty"`
	ExtractedAt   *time.Time `json:"extracted_at,omitempty" yaml:"extracted_at,omitempty"`
}

// AimsRow is the row-oriented export record, one JSON object per line in
// 05_clean_jsonl/aims.jsonl.
type AimsRow struct {
	GrantID     string   `json:"grant_id"`
	Section     string   `json:"section"`
	Heading     string   `json:"heading"`
	Text        string   `json:"text"`
	RawMarkdown string   `json:"raw_md"`
	Score       *float64 `json:"score,omitempty"`
}

// AimsSectionName is the canonical section label used in export rows.
const AimsSectionName = "Specific Aims"
