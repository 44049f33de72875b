// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "path/filepath"

// Layout resolves the numbered pipeline directories under a data root.
// The stage prefixes record processing order: raw PDFs flow left to right
// until they end up as clean JSONL rows and draft output.
type Layout struct {
	// Root is the data directory (e.g. "data").
	Root string
}

// NewLayout returns a Layout rooted at dataDir, defaulting to "data".
func NewLayout(dataDir string) Layout {
	if dataDir == "" {
		dataDir = "data"
	}
	return Layout{Root: dataDir}
}

// RawPDFs is where fetched exemplar PDFs land.
func (l Layout) RawPDFs() string { return filepath.Join(l.Root, "00_raw_pdfs") }

// FullJSON holds the per-grant structured extraction dumps.
func (l Layout) FullJSON() string { return filepath.Join(l.Root, "01_full_json") }

// FullMarkdown holds the converted full-document markdown.
func (l Layout) FullMarkdown() string { return filepath.Join(l.Root, "02_full_md") }

// AimsMarkdown holds the machine-extracted Specific Aims sections.
func (l Layout) AimsMarkdown() string { return filepath.Join(l.Root, "03_specific_aims_md") }

// ReviewedAims holds human-reviewed aims that override extraction.
func (l Layout) ReviewedAims() string { return filepath.Join(l.Root, "04_reviewed_aims_md") }

// CleanJSONL holds the row-oriented corpus export.
func (l Layout) CleanJSONL() string { return filepath.Join(l.Root, "05_clean_jsonl") }

// Drafts holds generated Specific Aims drafts.
func (l Layout) Drafts() string { return filepath.Join(l.Root, "06_drafts") }

// Metadata holds the per-grant metadata YAML files.
func (l Layout) Metadata() string { return filepath.Join(l.Root, "metadata") }

// Index holds the SQLite corpus and the vector store.
func (l Layout) Index() string { return filepath.Join(l.Root, "index") }

// CorpusDB is the SQLite database path.
func (l Layout) CorpusDB() string { return filepath.Join(l.Index(), "corpus.db") }

// VectorDB is the bbolt vector store path.
func (l Layout) VectorDB() string { return filepath.Join(l.Index(), "vectors.db") }

// EmbedCache is the bbolt embedding cache path.
func (l Layout) EmbedCache() string { return filepath.Join(l.Index(), "embedcache.db") }

// TFIDFState is where the fitted TF-IDF model is persisted.
func (l Layout) TFIDFState() string { return filepath.Join(l.Index(), "tfidf.json") }

// All lists every directory the pipeline expects to exist.
func (l Layout) All() []string {
	return []string{
		l.RawPDFs(),
		l.FullJSON(),
		l.FullMarkdown(),
		l.AimsMarkdown(),
		l.ReviewedAims(),
		l.CleanJSONL(),
		l.Drafts(),
		l.Metadata(),
		l.Index(),
	}
}
