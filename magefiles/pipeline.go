//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

// engine runs the built CLI with the given arguments.
func engine(args ...string) error {
	bin := filepath.Join(binDir, binName)
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Fetch downloads the exemplar PDFs named in the manifest.
func Fetch() error {
	mg.Deps(Build)
	return engine("fetch")
}

// Convert extracts markdown from every raw PDF.
func Convert() error {
	mg.Deps(Build)
	return engine("convert")
}

// Ingest structures converted grants into the corpus database.
func Ingest() error {
	mg.Deps(Build)
	return engine("ingest")
}

// Embed vectorizes ingested chunks into the vector index.
func Embed() error {
	mg.Deps(Build)
	return engine("embed")
}

// Pipeline runs fetch, convert, ingest, and embed in order.
func Pipeline() error {
	mg.Deps(Build)
	for _, stage := range []string{"fetch", "convert", "ingest", "embed"} {
		fmt.Printf("== %s\n", stage)
		if err := engine(stage); err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
	}
	return nil
}
