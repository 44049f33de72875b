package corpus

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/internal/chunk"
	"github.com/pdiddy/grant-engine/pkg/types"
)

// --- test helpers ---

const sampleKelpMD = `# Department of Health and Human Services

Principal Investigator: Lee, Maria
Applicant Organization: Coastal University
Project Title: Mechanisms of Kelp Forest Resilience
Project Number: R21-ES-654321
Issuing IC: NIEHS
Fiscal Year: 2021

<!-- page 2 -->

## Project Summary

Kelp forests buffer coastal ecosystems against storms.

<!-- page 3 -->

## Specific Aims

Kelp forests are declining across temperate coastlines. Warming events strip
canopy cover faster than recovery cycles restore it. Our long term goal is to
identify the genomic basis of thermal tolerance in giant kelp. The central
hypothesis is that heat shock regulons determine recovery speed. The rationale
is that tolerant genotypes can seed restoration programs.

### Aim 1

Map heat shock regulon variation across latitudinal populations. We will
sequence two hundred individuals spanning the species range.

### Aim 2

Test thermal performance of contrasting genotypes in common gardens. We will
measure growth and photosynthesis under ramped temperature treatments.

<!-- page 4 -->

## Research Strategy

Narrative that must not leak into the aims section.
`

const sampleVolcanoMD = `Principal Investigator: Okafor, Chidi

## Specific Aims

Volcanic aerosols cool the stratosphere after major eruptions. Sulfate
particles scatter incoming shortwave radiation for months. We propose to
quantify aerosol residence time with balloon soundings. Aim 1 will launch
instrumented balloons into fresh plumes. Aim 2 will assimilate soundings
into a transport model.
`

func testSetup(t *testing.T) (*Store, types.Layout) {
	t.Helper()
	layout := types.NewLayout(t.TempDir())

	for _, dir := range []string{layout.FullMarkdown(), layout.ReviewedAims(), layout.Metadata()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	store, err := NewStore(layout, types.RetrievalConfig{MaxResults: 20})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	return store, layout
}

func testSplitter() *chunk.Splitter {
	return chunk.NewSplitter(types.ChunkingConfig{SentencesPerChunk: 2, OverlapSentences: 0})
}

func writeFullMD(t *testing.T, layout types.Layout, name, content string) {
	t.Helper()
	path := filepath.Join(layout.FullMarkdown(), name+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeReviewed(t *testing.T, layout types.Layout, name, content string) {
	t.Helper()
	path := filepath.Join(layout.ReviewedAims(), name+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeMeta(t *testing.T, layout types.Layout, meta types.GrantMeta) {
	t.Helper()
	data, err := yaml.Marshal(&meta)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(layout.Metadata(), meta.GrantID+".yml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func runIngest(t *testing.T, store *Store, opts IngestOptions) (IngestSummary, string) {
	t.Helper()
	var buf strings.Builder
	summary, err := store.Ingest(context.Background(), testSplitter(), opts, &buf)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return summary, buf.String()
}

// --- schema tests ---

func TestNewStoreCreatesSchema(t *testing.T) {
	store, _ := testSetup(t)

	tables := []string{"grants", "aims", "chunks", "chunks_fts", "ingest_status"}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow(
			`SELECT count(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?`, table,
		).Scan(&count)
		if err != nil {
			t.Fatalf("checking table %s: %v", table, err)
		}
		if count == 0 {
			t.Errorf("table %s does not exist", table)
		}
	}
}

func TestNewStoreCreatesDBFile(t *testing.T) {
	layout := types.NewLayout(t.TempDir())
	store, err := NewStore(layout, types.RetrievalConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	if _, err := os.Stat(layout.CorpusDB()); os.IsNotExist(err) {
		t.Errorf("database file not created at %s", layout.CorpusDB())
	}
}

// --- ingest tests ---

func TestIngest(t *testing.T) {
	tests := []struct {
		name        string
		grants      int
		wantIndexed int
	}{
		{"single grant", 1, 1},
		{"multiple grants", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, layout := testSetup(t)

			for i := 0; i < tt.grants; i++ {
				writeFullMD(t, layout, fmt.Sprintf("grant-%d", i), sampleKelpMD)
			}

			summary, out := runIngest(t, store, IngestOptions{})
			if summary.Indexed != tt.wantIndexed {
				t.Errorf("Indexed = %d, want %d", summary.Indexed, tt.wantIndexed)
			}
			if summary.Failed != 0 {
				t.Errorf("Failed = %d, want 0; output: %s", summary.Failed, out)
			}
		})
	}
}

func TestIngestStoresCoverMetadata(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	record, err := store.GetGrant(context.Background(), "kelp-01")
	if err != nil {
		t.Fatal(err)
	}
	if record.PI != "Lee, Maria" {
		t.Errorf("PI = %q, want %q", record.PI, "Lee, Maria")
	}
	if record.Institution != "Coastal University" {
		t.Errorf("Institution = %q, want %q", record.Institution, "Coastal University")
	}
	if record.Title != "Mechanisms of Kelp Forest Resilience" {
		t.Errorf("Title = %q", record.Title)
	}
	if record.ProjectNumber != "R21-ES-654321" {
		t.Errorf("ProjectNumber = %q", record.ProjectNumber)
	}
	if record.IC != "NIEHS" {
		t.Errorf("IC = %q, want NIEHS", record.IC)
	}
	if record.FiscalYear != 2021 {
		t.Errorf("FiscalYear = %d, want 2021", record.FiscalYear)
	}
	if record.ConversionStatus != types.ConversionDone {
		t.Errorf("ConversionStatus = %q, want %q", record.ConversionStatus, types.ConversionDone)
	}

	sec, err := store.GetAims(context.Background(), "kelp-01")
	if err != nil {
		t.Fatal(err)
	}
	if sec.Review != types.ReviewExtracted {
		t.Errorf("Review = %q, want %q", sec.Review, types.ReviewExtracted)
	}
	if !strings.Contains(sec.Heading, "Specific Aims") {
		t.Errorf("Heading = %q, want Specific Aims heading", sec.Heading)
	}
	if !strings.Contains(sec.Text, "heat shock regulons determine recovery speed") {
		t.Errorf("Text missing hypothesis sentence: %q", sec.Text)
	}
	if strings.Contains(sec.Text, "Research Strategy") {
		t.Errorf("Text leaked past the section boundary: %q", sec.Text)
	}
}

func TestIngestWritesAimsMarkdown(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	path := filepath.Join(layout.AimsMarkdown(), "kelp-01_specific_aims.md")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading extracted aims file: %v", err)
	}
	if !strings.HasPrefix(string(data), "## Specific Aims") {
		t.Errorf("aims file starts with %q", string(data)[:min(40, len(data))])
	}
}

func TestIngestSkipsUnchanged(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	summary, _ := runIngest(t, store, IngestOptions{})
	if summary.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", summary.Skipped)
	}
	if summary.Indexed != 0 || summary.Updated != 0 {
		t.Errorf("Indexed = %d, Updated = %d, want 0, 0", summary.Indexed, summary.Updated)
	}
}

func TestIngestForceReingests(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	summary, _ := runIngest(t, store, IngestOptions{Force: true})
	if summary.Updated != 1 {
		t.Errorf("Updated = %d, want 1", summary.Updated)
	}
}

func TestIngestDetectsModifiedFile(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	modified := strings.Replace(sampleKelpMD,
		"seed restoration programs", "guide replanting priorities", 1)
	writeFullMD(t, layout, "kelp-01", modified)
	path := filepath.Join(layout.FullMarkdown(), "kelp-01.md")
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatal(err)
	}

	summary, _ := runIngest(t, store, IngestOptions{})
	if summary.Updated != 1 {
		t.Errorf("Updated = %d, want 1", summary.Updated)
	}

	sec, err := store.GetAims(context.Background(), "kelp-01")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sec.Text, "guide replanting priorities") {
		t.Errorf("aims text not refreshed: %q", sec.Text)
	}
}

func TestIngestReviewedOverride(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	writeReviewed(t, layout, "kelp-01_specific_aims_reviewed", `## Specific Aims

Corrected narrative after human review of the extraction. The reviewer fixed
two garbled sentences. Aim 1 remains unchanged in scope.
`)

	runIngest(t, store, IngestOptions{})

	sec, err := store.GetAims(context.Background(), "kelp-01")
	if err != nil {
		t.Fatal(err)
	}
	if sec.Review != types.ReviewReviewed {
		t.Errorf("Review = %q, want %q", sec.Review, types.ReviewReviewed)
	}
	if !strings.Contains(sec.Text, "Corrected narrative after human review") {
		t.Errorf("Text = %q, want reviewed content", sec.Text)
	}

	// Cover metadata still comes from the converted document.
	record, err := store.GetGrant(context.Background(), "kelp-01")
	if err != nil {
		t.Fatal(err)
	}
	if record.PI != "Lee, Maria" {
		t.Errorf("PI = %q, want %q", record.PI, "Lee, Maria")
	}
}

func TestIngestReviewedOnly(t *testing.T) {
	store, layout := testSetup(t)
	writeReviewed(t, layout, "g9_specific_aims_reviewed", `## Specific Aims

A reviewer supplied this section directly. No converted markdown exists yet.
`)

	summary, _ := runIngest(t, store, IngestOptions{})
	if summary.Indexed != 1 {
		t.Fatalf("Indexed = %d, want 1", summary.Indexed)
	}

	record, err := store.GetGrant(context.Background(), "g9")
	if err != nil {
		t.Fatal(err)
	}
	if record.ConversionStatus != types.ConversionNone {
		t.Errorf("ConversionStatus = %q, want %q", record.ConversionStatus, types.ConversionNone)
	}

	sec, err := store.GetAims(context.Background(), "g9")
	if err != nil {
		t.Fatal(err)
	}
	if sec.Review != types.ReviewReviewed {
		t.Errorf("Review = %q, want %q", sec.Review, types.ReviewReviewed)
	}
}

func TestIngestMetadataFileWins(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	score := 23.0
	writeMeta(t, layout, types.GrantMeta{
		GrantID:     "kelp-01",
		Title:       "Curated Kelp Title",
		ImpactScore: &score,
	})

	runIngest(t, store, IngestOptions{})

	record, err := store.GetGrant(context.Background(), "kelp-01")
	if err != nil {
		t.Fatal(err)
	}
	if record.Title != "Curated Kelp Title" {
		t.Errorf("Title = %q, want metadata title", record.Title)
	}
	if record.ImpactScore == nil || *record.ImpactScore != 23.0 {
		t.Errorf("ImpactScore = %v, want 23.0", record.ImpactScore)
	}
	// Fields absent from the metadata file keep their scraped values.
	if record.PI != "Lee, Maria" {
		t.Errorf("PI = %q, want scraped value", record.PI)
	}
}

func TestIngestFailsWithoutAimsHeading(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "broken", "## Abstract\n\nNo aims in this document.\n")

	summary, out := runIngest(t, store, IngestOptions{})
	if summary.Failed != 1 {
		t.Errorf("Failed = %d, want 1", summary.Failed)
	}
	if !strings.Contains(out, "failed") {
		t.Errorf("output missing failure line: %s", out)
	}
}

func TestIngestWritesCleanJSONL(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	data, err := os.ReadFile(filepath.Join(layout.CleanJSONL(), "aims.jsonl"))
	if err != nil {
		t.Fatalf("reading JSONL export: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d JSONL lines, want 1", len(lines))
	}

	var row types.AimsRow
	if err := json.Unmarshal([]byte(lines[0]), &row); err != nil {
		t.Fatalf("parsing JSONL row: %v", err)
	}
	if row.GrantID != "kelp-01" {
		t.Errorf("GrantID = %q, want kelp-01", row.GrantID)
	}
	if row.Section != types.AimsSectionName {
		t.Errorf("Section = %q, want %q", row.Section, types.AimsSectionName)
	}
	if row.Text == "" || row.RawMarkdown == "" {
		t.Error("row missing text or raw markdown")
	}
}

// --- query tests ---

func TestGetGrantNotFound(t *testing.T) {
	store, _ := testSetup(t)
	if _, err := store.GetGrant(context.Background(), "nope"); err == nil {
		t.Error("expected error for missing grant")
	}
}

func TestListGrantsOrdered(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "b-grant", sampleKelpMD)
	writeFullMD(t, layout, "a-grant", sampleVolcanoMD)
	runIngest(t, store, IngestOptions{})

	records, err := store.ListGrants(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d grants, want 2", len(records))
	}
	if records[0].ID != "a-grant" || records[1].ID != "b-grant" {
		t.Errorf("order = %s, %s; want a-grant, b-grant", records[0].ID, records[1].ID)
	}
}

func TestListChunksSequenced(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	chunks, err := store.ListChunks(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want at least 2", len(chunks))
	}
	for i, ch := range chunks {
		if ch.GrantID != "kelp-01" {
			t.Errorf("chunk %d GrantID = %q", i, ch.GrantID)
		}
		if ch.Seq != i {
			t.Errorf("chunk %d Seq = %d", i, ch.Seq)
		}
		want := fmt.Sprintf("kelp-01:%d", i)
		if ch.ID != want {
			t.Errorf("chunk ID = %q, want %q", ch.ID, want)
		}
	}
}

func TestExemplarsByChunkIDs(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	out, err := store.ExemplarsByChunkIDs(context.Background(), []string{"kelp-01:0", "missing:0"})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d exemplars, want 1", len(out))
	}

	ex, ok := out["kelp-01:0"]
	if !ok {
		t.Fatal("kelp-01:0 not resolved")
	}
	if ex.GrantID != "kelp-01" {
		t.Errorf("GrantID = %q", ex.GrantID)
	}
	if ex.Title != "Mechanisms of Kelp Forest Resilience" {
		t.Errorf("Title = %q", ex.Title)
	}
	if ex.Excerpt == "" {
		t.Error("empty excerpt")
	}
	if ex.Review != types.ReviewExtracted {
		t.Errorf("Review = %q", ex.Review)
	}
}

func TestLexicalSearch(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	writeFullMD(t, layout, "volcano-02", sampleVolcanoMD)
	runIngest(t, store, IngestOptions{})

	results, err := store.LexicalSearch(context.Background(), "kelp thermal tolerance genotypes", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].GrantID != "kelp-01" {
		t.Errorf("top result grant = %q, want kelp-01", results[0].GrantID)
	}
	if results[0].Similarity <= 0 || results[0].Similarity > 1 {
		t.Errorf("Similarity = %f, want in (0, 1]", results[0].Similarity)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted at %d", i)
		}
	}
}

func TestLexicalSearchMaxResults(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	results, err := store.LexicalSearch(context.Background(), "kelp recovery", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestLexicalSearchNoTokens(t *testing.T) {
	store, _ := testSetup(t)
	results, err := store.LexicalSearch(context.Background(), "!!! ...", 5)
	if err != nil {
		t.Fatal(err)
	}
	if results != nil {
		t.Errorf("got %d results, want none", len(results))
	}
}

func TestKeywordChunkIDs(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	writeFullMD(t, layout, "volcano-02", sampleVolcanoMD)
	runIngest(t, store, IngestOptions{})

	ids, err := store.KeywordChunkIDs(context.Background(), `"stratosphere"`, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) == 0 {
		t.Fatal("no keyword matches")
	}
	for _, id := range ids {
		if !strings.HasPrefix(id, "volcano-02:") {
			t.Errorf("unexpected chunk %s", id)
		}
	}
}

// --- export tests ---

func TestExportYAML(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	if err := store.ExportYAML(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(layout.Index(), "export.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	var entries []ExportEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].GrantID != "kelp-01" {
		t.Errorf("GrantID = %q", entries[0].GrantID)
	}
	if entries[0].Chunks == 0 {
		t.Error("chunk count is zero")
	}
}

func TestExportJSON(t *testing.T) {
	store, layout := testSetup(t)
	writeFullMD(t, layout, "kelp-01", sampleKelpMD)
	runIngest(t, store, IngestOptions{})

	if err := store.ExportJSON(context.Background()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(layout.Index(), "export.json"))
	if err != nil {
		t.Fatal(err)
	}
	var entries []ExportEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].Review != string(types.ReviewExtracted) {
		t.Errorf("Review = %q", entries[0].Review)
	}
}
