// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package corpus persists grant records, aims sections, and chunks in a
// SQLite database and maintains the full-text index used for keyword
// retrieval. Grant records are created at ingest and read afterwards;
// pipeline stages never mutate or delete them.
package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/internal/aims"
	"github.com/pdiddy/grant-engine/internal/chunk"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// Store manages the corpus SQLite database.
type Store struct {
	db         *sql.DB
	layout     types.Layout
	maxResults int
}

// NewStore opens or creates the corpus database under the layout's index
// directory, creating the schema if it does not exist.
func NewStore(layout types.Layout, cfg types.RetrievalConfig) (*Store, error) {
	if err := os.MkdirAll(layout.Index(), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	db, err := sql.Open("sqlite3", layout.CorpusDB()+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}

	s := &Store{db: db, layout: layout, maxResults: maxResults}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS grants (
			id TEXT PRIMARY KEY,
			title TEXT,
			pi TEXT,
			institution TEXT,
			project_number TEXT,
			ic TEXT,
			fiscal_year INTEGER,
			impact_score REAL,
			sha256 TEXT,
			source_pdf TEXT,
			markdown_path TEXT,
			conversion_status TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS aims (
			grant_id TEXT PRIMARY KEY REFERENCES grants(id),
			heading TEXT,
			text TEXT,
			raw_md TEXT,
			review TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			grant_id TEXT NOT NULL REFERENCES grants(id),
			seq INTEGER NOT NULL,
			text TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_grant_id ON chunks(grant_id)`,
		`CREATE TABLE IF NOT EXISTS ingest_status (
			grant_id TEXT PRIMARY KEY,
			file_mod_time TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 virtual table with triggers for sync.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='chunks_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}

	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE chunks_fts USING fts5(text, content=chunks, content_rowid=rowid)`,
			`CREATE TRIGGER chunks_ai AFTER INSERT ON chunks BEGIN
				INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
			`CREATE TRIGGER chunks_ad AFTER DELETE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
			END`,
			`CREATE TRIGGER chunks_au AFTER UPDATE ON chunks BEGIN
				INSERT INTO chunks_fts(chunks_fts, rowid, text) VALUES('delete', old.rowid, old.text);
				INSERT INTO chunks_fts(rowid, text) VALUES (new.rowid, new.text);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}

	return nil
}

// IngestSummary holds counts from a corpus ingest run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of grants processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

// IngestOptions adjusts an ingest run.
type IngestOptions struct {
	// Force re-ingests grants whose source files have not changed, for
	// example after a chunking config change.
	Force bool
}

// Ingest scans converted markdown and reviewed aims files, structures each
// grant's Specific Aims section, and populates the database. Reviewed files
// override machine extraction for the same grant ID. Unchanged files are
// skipped by mod time for incremental runs. On success the clean JSONL
// export is rewritten.
func (s *Store) Ingest(ctx context.Context, splitter *chunk.Splitter, opts IngestOptions, w io.Writer) (IngestSummary, error) {
	reviewed, err := s.reviewedFiles()
	if err != nil {
		return IngestSummary{}, err
	}

	entries, err := os.ReadDir(s.layout.FullMarkdown())
	if err != nil && !os.IsNotExist(err) {
		return IngestSummary{}, fmt.Errorf("reading markdown directory: %w", err)
	}

	var summary IngestSummary
	seen := make(map[string]bool)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		grantID := aims.NormalizeGrantID(strings.TrimSuffix(entry.Name(), ".md"))
		seen[grantID] = true
		fullPath := filepath.Join(s.layout.FullMarkdown(), entry.Name())

		s.ingestOne(ctx, grantID, fullPath, reviewed[grantID], splitter, opts, w, &summary)
	}

	// Reviewed aims without converted markdown still enter the corpus;
	// the grant row is a stub until the PDF shows up.
	for grantID, reviewedPath := range reviewed {
		if seen[grantID] {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		s.ingestOne(ctx, grantID, "", reviewedPath, splitter, opts, w, &summary)
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)

	if summary.Indexed > 0 || summary.Updated > 0 {
		if err := s.ExportJSONL(ctx); err != nil {
			fmt.Fprintf(w, "warning: clean JSONL write failed: %v\n", err)
		}
	}

	return summary, nil
}

// reviewedFiles maps normalized grant IDs to reviewed aims file paths.
func (s *Store) reviewedFiles() (map[string]string, error) {
	reviewed := make(map[string]string)

	entries, err := os.ReadDir(s.layout.ReviewedAims())
	if err != nil {
		if os.IsNotExist(err) {
			return reviewed, nil
		}
		return nil, fmt.Errorf("reading reviewed aims directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		id := aims.NormalizeGrantID(strings.TrimSuffix(entry.Name(), ".md"))
		reviewed[id] = filepath.Join(s.layout.ReviewedAims(), entry.Name())
	}
	return reviewed, nil
}

// ingestOne processes a single grant and updates the summary. fullPath may
// be empty when only a reviewed file exists.
func (s *Store) ingestOne(ctx context.Context, grantID, fullPath, reviewedPath string, splitter *chunk.Splitter, opts IngestOptions, w io.Writer, summary *IngestSummary) {
	modTime, err := latestModTime(fullPath, reviewedPath)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", grantID, err)
		summary.Failed++
		return
	}

	var storedModTime string
	err = s.db.QueryRowContext(ctx,
		`SELECT file_mod_time FROM ingest_status WHERE grant_id = ?`, grantID,
	).Scan(&storedModTime)

	if err == nil && storedModTime == modTime && !opts.Force {
		fmt.Fprintf(w, "skipped %s\n", grantID)
		summary.Skipped++
		return
	}
	isUpdate := err == nil

	record, section, buildErr := s.buildGrant(grantID, fullPath, reviewedPath)
	if buildErr != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", grantID, buildErr)
		summary.Failed++
		return
	}

	chunks := splitter.Split(grantID, section.Text)
	if len(chunks) == 0 {
		fmt.Fprintf(w, "failed  %s: empty aims section\n", grantID)
		summary.Failed++
		return
	}

	if err := s.upsertGrant(ctx, record, section, chunks, modTime); err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", grantID, err)
		summary.Failed++
		return
	}

	if isUpdate {
		fmt.Fprintf(w, "updated %s (%d chunks)\n", grantID, len(chunks))
		summary.Updated++
	} else {
		fmt.Fprintf(w, "indexing %s (%d chunks)\n", grantID, len(chunks))
		summary.Indexed++
	}
}

// buildGrant assembles the grant record and aims section from the source
// files and metadata.
func (s *Store) buildGrant(grantID, fullPath, reviewedPath string) (*types.GrantRecord, *sectionWithReview, error) {
	record := &types.GrantRecord{ID: grantID, ConversionStatus: types.ConversionNone}

	var cover aims.CoverMeta
	if fullPath != "" {
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return nil, nil, err
		}
		cover = aims.ScrapeCoverMeta(string(data))
		record.MarkdownPath = fullPath
		record.ConversionStatus = types.ConversionDone

		if reviewedPath == "" {
			sec, err := aims.ExtractSection(string(data))
			if err != nil {
				return nil, nil, err
			}
			s.writeAimsMarkdown(grantID, sec)
			applyMeta(record, cover, s.loadMeta(grantID))
			return record, &sectionWithReview{Section: sec, Review: types.ReviewExtracted}, nil
		}
	}

	data, err := os.ReadFile(reviewedPath)
	if err != nil {
		return nil, nil, err
	}
	sec := aims.ParseSection(string(data))
	if strings.TrimSpace(sec.Text) == "" {
		return nil, nil, fmt.Errorf("reviewed file has no body text")
	}
	applyMeta(record, cover, s.loadMeta(grantID))
	return record, &sectionWithReview{Section: sec, Review: types.ReviewReviewed}, nil
}

// sectionWithReview pairs an extracted section with its review status.
type sectionWithReview struct {
	*aims.Section
	Review types.ReviewStatus
}

// writeAimsMarkdown persists the machine-extracted section for reviewers
// to correct. Failures are non-fatal: the section is already in hand.
func (s *Store) writeAimsMarkdown(grantID string, sec *aims.Section) {
	dir := s.layout.AimsMarkdown()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	path := filepath.Join(dir, grantID+"_specific_aims.md")
	os.WriteFile(path, []byte(sec.RawMarkdown+"\n"), 0o644)
}

// loadMeta reads the grant's metadata YAML. Returns nil if the file does
// not exist or cannot be parsed.
func (s *Store) loadMeta(grantID string) *types.GrantMeta {
	for _, name := range []string{grantID + ".yml", grantID + ".yaml"} {
		data, err := os.ReadFile(filepath.Join(s.layout.Metadata(), name))
		if err != nil {
			continue
		}
		var meta types.GrantMeta
		if err := yaml.Unmarshal(data, &meta); err != nil {
			continue
		}
		return &meta
	}
	return nil
}

// applyMeta fills the record from scraped cover fields, then lets explicit
// metadata win.
func applyMeta(record *types.GrantRecord, cover aims.CoverMeta, meta *types.GrantMeta) {
	record.Title = cover.ProjectTitle
	record.PI = cover.PI
	record.Institution = cover.Institution
	record.ProjectNumber = cover.ProjectNumber
	record.IC = cover.IC
	record.FiscalYear = cover.FiscalYear

	if meta == nil {
		return
	}
	if meta.Title != "" {
		record.Title = meta.Title
	}
	if meta.PI != "" {
		record.PI = meta.PI
	}
	if meta.Institution != "" {
		record.Institution = meta.Institution
	}
	if meta.ProjectNumber != "" {
		record.ProjectNumber = meta.ProjectNumber
	}
	if meta.IC != "" {
		record.IC = meta.IC
	}
	if meta.FiscalYear != 0 {
		record.FiscalYear = meta.FiscalYear
	}
	record.ImpactScore = meta.ImpactScore
	record.SHA256 = meta.SHA256
	if meta.SourcePDF != "" {
		record.SourcePDF = meta.SourcePDF
	}
}

// upsertGrant writes one grant's record, aims section, and chunks in a
// single transaction. Existing chunks are replaced; the FTS index follows
// through triggers.
func (s *Store) upsertGrant(ctx context.Context, record *types.GrantRecord, section *sectionWithReview, chunks []types.Chunk, modTime string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO grants (id, title, pi, institution, project_number, ic, fiscal_year,
			impact_score, sha256, source_pdf, markdown_path, conversion_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title, pi=excluded.pi, institution=excluded.institution,
			project_number=excluded.project_number, ic=excluded.ic,
			fiscal_year=excluded.fiscal_year, impact_score=excluded.impact_score,
			sha256=excluded.sha256, source_pdf=excluded.source_pdf,
			markdown_path=excluded.markdown_path, conversion_status=excluded.conversion_status`,
		record.ID, record.Title, record.PI, record.Institution, record.ProjectNumber,
		record.IC, record.FiscalYear, record.ImpactScore, record.SHA256,
		record.SourcePDF, record.MarkdownPath, string(record.ConversionStatus),
	)
	if err != nil {
		return fmt.Errorf("upserting grant: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO aims (grant_id, heading, text, raw_md, review)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(grant_id) DO UPDATE SET
			heading=excluded.heading, text=excluded.text,
			raw_md=excluded.raw_md, review=excluded.review`,
		record.ID, section.Heading, section.Text, section.RawMarkdown, string(section.Review),
	)
	if err != nil {
		return fmt.Errorf("upserting aims section: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE grant_id = ?`, record.ID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, grant_id, seq, text) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		if _, err := stmt.ExecContext(ctx, ch.ID, ch.GrantID, ch.Seq, ch.Text); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", ch.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ingest_status (grant_id, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(grant_id) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		record.ID, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating ingest status: %w", err)
	}

	return tx.Commit()
}

// latestModTime returns the later mod time of the given paths, formatted
// for comparison. Empty paths are ignored; at least one must exist.
func latestModTime(paths ...string) (string, error) {
	var latest time.Time
	found := false
	for _, p := range paths {
		if p == "" {
			continue
		}
		info, err := os.Stat(p)
		if err != nil {
			return "", err
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		found = true
	}
	if !found {
		return "", fmt.Errorf("no source file")
	}
	return latest.UTC().Format(time.RFC3339Nano), nil
}
