// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fetch downloads exemplar grant PDFs listed in a YAML manifest and
// records per-grant metadata for the rest of the pipeline.
package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// ManifestEntry is one exemplar source in the fetch manifest.
type ManifestEntry struct {
	// GrantID names the grant; it becomes the PDF filename and the corpus key.
	GrantID string `yaml:"grant_id"`

	// URL is where the PDF lives.
	URL string `yaml:"url"`

	// Title, when present, seeds the grant metadata before the cover page
	// is scraped.
	Title string `yaml:"title,omitempty"`

	// Score is the review impact score, when known.
	Score *float64 `yaml:"score,omitempty"`
}

// LoadManifest reads and validates the fetch manifest. Entries missing a
// grant ID or URL fail the whole load so typos surface before any download.
func LoadManifest(path string) ([]ManifestEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var entries []ManifestEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("manifest %s lists no grants", path)
	}

	for i, e := range entries {
		if e.GrantID == "" {
			return nil, fmt.Errorf("manifest entry %d has no grant_id", i)
		}
		if e.URL == "" {
			return nil, fmt.Errorf("manifest entry %d (%s) has no url", i, e.GrantID)
		}
	}
	return entries, nil
}

// BatchResult holds the outcome of a batch fetch run.
type BatchResult struct {
	// BatchID tags one run for log correlation.
	BatchID string

	Downloaded int
	Skipped    int
	Failed     int
}

// Total returns the number of manifest entries processed.
func (r BatchResult) Total() int {
	return r.Downloaded + r.Skipped + r.Failed
}

// HasFailures reports whether any downloads failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// FetchOne downloads a single exemplar PDF and writes its metadata YAML.
// An existing PDF is not re-downloaded; metadata is still merged so manifest
// edits (a corrected score, say) take effect without a re-fetch.
func FetchOne(client *http.Client, entry ManifestEntry, layout types.Layout, cfg types.FetchConfig, w io.Writer) (skipped bool, err error) {
	pdfPath := filepath.Join(layout.RawPDFs(), entry.GrantID+".pdf")

	if _, statErr := os.Stat(pdfPath); statErr == nil {
		fmt.Fprintf(w, "skipped: %s (already exists)\n", entry.GrantID)
		if err := writeMetadata(entry, pdfPath, layout, false); err != nil {
			return true, fmt.Errorf("updating metadata for %s: %w", entry.GrantID, err)
		}
		return true, nil
	}

	for _, dir := range []string{layout.RawPDFs(), layout.Metadata()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	fmt.Fprintf(w, "downloading: %s\n", entry.GrantID)

	if err := downloadFile(client, entry.URL, pdfPath, cfg); err != nil {
		return false, fmt.Errorf("downloading %s: %w", entry.GrantID, err)
	}

	if err := writeMetadata(entry, pdfPath, layout, true); err != nil {
		return false, fmt.Errorf("writing metadata for %s: %w", entry.GrantID, err)
	}
	return false, nil
}

// FetchBatch processes the manifest entries in order, printing per-item
// status and a summary. It continues after individual failures and applies
// a polite delay between consecutive downloads.
func FetchBatch(client *http.Client, entries []ManifestEntry, layout types.Layout, cfg types.FetchConfig, w io.Writer) BatchResult {
	result := BatchResult{BatchID: uuid.NewString()}
	for i, entry := range entries {
		if i > 0 && cfg.DownloadDelay > 0 {
			time.Sleep(cfg.DownloadDelay)
		}
		wasSkipped, err := FetchOne(client, entry, layout, cfg, w)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", entry.GrantID, err)
			result.Failed++
			continue
		}
		if wasSkipped {
			result.Skipped++
		} else {
			result.Downloaded++
		}
	}
	fmt.Fprintf(w, "\nBatch %s: %d downloaded, %d skipped, %d failed (total: %d)\n",
		result.BatchID, result.Downloaded, result.Skipped, result.Failed, result.Total())
	return result
}

// downloadFile fetches url to destPath using a temporary file so a partial
// download never lands at the destination. The HTTP client handles redirects.
func downloadFile(client *http.Client, url, destPath string, cfg types.FetchConfig) error {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if cfg.UserAgent != "" {
		req.Header.Set("User-Agent", cfg.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".fetch-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing download: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}

// writeMetadata merges the manifest entry into the grant's metadata YAML.
// Existing fields from earlier stages (scraped cover metadata, extraction
// timestamps) are preserved; manifest values win for the fields they carry.
func writeMetadata(entry ManifestEntry, pdfPath string, layout types.Layout, fetched bool) error {
	if err := os.MkdirAll(layout.Metadata(), 0o755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}

	metaPath := filepath.Join(layout.Metadata(), entry.GrantID+".yaml")
	meta := readMetadata(metaPath)
	meta.GrantID = entry.GrantID
	meta.SourceURL = entry.URL
	meta.SourcePDF = pdfPath
	if entry.Title != "" {
		meta.Title = entry.Title
	}
	if entry.Score != nil {
		meta.ImpactScore = entry.Score
	}

	sum, err := fileSHA256(pdfPath)
	if err != nil {
		return fmt.Errorf("hashing %s: %w", pdfPath, err)
	}
	meta.SHA256 = sum

	if fetched {
		now := time.Now().UTC()
		meta.FetchedAt = &now
	}

	data, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	return os.WriteFile(metaPath, data, 0o644)
}

// readMetadata loads an existing metadata file, returning a zero value when
// none exists or it cannot be parsed.
func readMetadata(path string) types.GrantMeta {
	var meta types.GrantMeta
	data, err := os.ReadFile(path)
	if err != nil {
		return meta
	}
	yaml.Unmarshal(data, &meta)
	return meta
}

// fileSHA256 returns the hex SHA-256 digest of the file at path.
func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
