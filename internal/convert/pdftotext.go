// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"github.com/pdiddy/grant-engine/internal/container"
)

const imagePoppler = "poppler-utils:latest"

// popplerRunner abstracts how pdftotext is invoked so tests can fake both
// the direct and the containerized path.
type popplerRunner interface {
	// Extract converts the PDF at pdfPath to plain text.
	Extract(pdfPath string) (string, error)
}

// PdftotextConverter converts PDFs with poppler's pdftotext, running the
// tool directly when it is on PATH and falling back to a container runtime
// otherwise.
type PdftotextConverter struct {
	runner popplerRunner
}

// NewPdftotextConverter picks the direct binary when available, otherwise a
// detected container runtime with the poppler image.
func NewPdftotextConverter() (*PdftotextConverter, error) {
	if _, err := exec.LookPath("pdftotext"); err == nil {
		return &PdftotextConverter{runner: &directPoppler{}}, nil
	}

	rt, err := container.DetectRuntime()
	if err != nil {
		return nil, fmt.Errorf("pdftotext not on PATH and %w", err)
	}
	if err := rt.ImageExists(imagePoppler); err != nil {
		return nil, fmt.Errorf("poppler image not available in %s: %w", rt.Name(), err)
	}
	return &PdftotextConverter{runner: &containerPoppler{runtime: rt}}, nil
}

// Name identifies the backend.
func (p *PdftotextConverter) Name() string { return "pdftotext" }

// Convert extracts the PDF's text through the selected runner.
func (p *PdftotextConverter) Convert(pdfPath string) (string, error) {
	text, err := p.runner.Extract(pdfPath)
	if err != nil {
		return "", err
	}
	if len(text) == 0 {
		return "", fmt.Errorf("pdftotext produced empty output for %s", pdfPath)
	}
	return text, nil
}

// directPoppler runs the host pdftotext binary.
type directPoppler struct{}

func (d *directPoppler) Extract(pdfPath string) (string, error) {
	var out bytes.Buffer
	cmd := exec.Command("pdftotext", "-layout", pdfPath, "-")
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("running pdftotext on %s: %w", pdfPath, err)
	}
	return out.String(), nil
}

// containerPoppler pipes the PDF through the poppler image.
type containerPoppler struct {
	runtime container.Runtime
}

func (c *containerPoppler) Extract(pdfPath string) (string, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var out bytes.Buffer
	command := []string{"pdftotext", "-layout", "-", "-"}
	if err := c.runtime.Run(imagePoppler, command, f, &out); err != nil {
		return "", fmt.Errorf("converting %s with containerized pdftotext: %w", pdfPath, err)
	}
	return out.String(), nil
}
