// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert implements PDF-to-Markdown conversion with pluggable
// backends: the native Go extractor, a GROBID service, and poppler's
// pdftotext (direct or containerized).
package convert

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/grant-engine/pkg/types"
)

// Converter transforms a PDF file into Markdown text. Different backends
// implement this interface.
type Converter interface {
	// Name identifies the backend, recorded in the output frontmatter.
	Name() string

	// Convert reads a PDF at pdfPath and returns the Markdown content.
	Convert(pdfPath string) (string, error)
}

// New selects the conversion backend from config.
func New(cfg types.ConversionConfig) (Converter, error) {
	switch cfg.Backend {
	case types.BackendNative, "":
		return &NativeConverter{}, nil
	case types.BackendGROBID:
		return NewGROBIDConverter(cfg.GrobidURL), nil
	case types.BackendPdftotext:
		return NewPdftotextConverter()
	default:
		return nil, fmt.Errorf("unknown conversion backend %q", cfg.Backend)
	}
}

// BatchResult holds the outcome of a batch conversion run.
type BatchResult struct {
	Converted int
	Skipped   int
	Failed    int
}

// Total returns the total number of grants processed.
func (r BatchResult) Total() int {
	return r.Converted + r.Skipped + r.Failed
}

// HasFailures reports whether any grants failed conversion.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// ConvertGrant converts a single grant PDF to Markdown under the layout's
// full-markdown directory. Output that is newer than its source PDF is left
// alone, so re-runs only touch changed grants.
func ConvertGrant(c Converter, pdfPath string, layout types.Layout, w io.Writer) types.ConversionStatus {
	grantID := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))
	mdPath := filepath.Join(layout.FullMarkdown(), grantID+".md")

	if upToDate(pdfPath, mdPath) {
		fmt.Fprintf(w, "skipped: %s (up to date)\n", grantID)
		return types.ConversionNone
	}

	if err := os.MkdirAll(layout.FullMarkdown(), 0o755); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", grantID, err)
		return types.ConversionFailed
	}

	raw, err := c.Convert(pdfPath)
	if err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", grantID, err)
		return types.ConversionFailed
	}

	content := addFrontmatter(grantID, pdfPath, c.Name(), raw)

	if err := os.WriteFile(mdPath, []byte(content), 0o644); err != nil {
		fmt.Fprintf(w, "failed:  %s (%v)\n", grantID, err)
		return types.ConversionFailed
	}

	fmt.Fprintf(w, "converted: %s\n", grantID)
	return types.ConversionDone
}

// ConvertBatch processes a list of PDF paths through the converter, printing
// per-file status to w and returning a summary.
func ConvertBatch(c Converter, pdfPaths []string, layout types.Layout, w io.Writer) BatchResult {
	var result BatchResult
	for _, p := range pdfPaths {
		switch ConvertGrant(c, p, layout, w) {
		case types.ConversionDone:
			result.Converted++
		case types.ConversionNone:
			result.Skipped++
		case types.ConversionFailed:
			result.Failed++
		}
	}
	fmt.Fprintf(w, "\nBatch summary: %d converted, %d skipped, %d failed (total: %d)\n",
		result.Converted, result.Skipped, result.Failed, result.Total())
	return result
}

// ConvertDir converts every PDF in the layout's raw directory.
func ConvertDir(c Converter, layout types.Layout, w io.Writer) (BatchResult, error) {
	entries, err := os.ReadDir(layout.RawPDFs())
	if err != nil {
		return BatchResult{}, fmt.Errorf("reading PDF directory %s: %w", layout.RawPDFs(), err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		paths = append(paths, filepath.Join(layout.RawPDFs(), e.Name()))
	}
	if len(paths) == 0 {
		fmt.Fprintln(w, "no PDFs found; run fetch first")
		return BatchResult{}, nil
	}
	return ConvertBatch(c, paths, layout, w), nil
}

// upToDate reports whether mdPath exists and is at least as new as pdfPath.
func upToDate(pdfPath, mdPath string) bool {
	mdInfo, err := os.Stat(mdPath)
	if err != nil {
		return false
	}
	pdfInfo, err := os.Stat(pdfPath)
	if err != nil {
		return false
	}
	return !pdfInfo.ModTime().After(mdInfo.ModTime())
}

// addFrontmatter prepends YAML frontmatter to the converted Markdown content.
func addFrontmatter(grantID, pdfPath, converter, body string) string {
	ts := time.Now().UTC().Format(time.RFC3339)
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "grant_id: %q\n", grantID)
	fmt.Fprintf(&b, "source_pdf: %q\n", pdfPath)
	fmt.Fprintf(&b, "converted_at: %q\n", ts)
	fmt.Fprintf(&b, "converter: %q\n", converter)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String()
}
