// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// NativeConverter extracts text with the pure-Go PDF reader. It needs no
// external service or tool, at the cost of flatter output: no headings
// survive, so downstream aims extraction leans on the reviewed-aims path.
type NativeConverter struct{}

// Name identifies the backend.
func (n *NativeConverter) Name() string { return "native" }

// Convert reads the PDF at pdfPath and returns its plain text.
func (n *NativeConverter) Convert(pdfPath string) (string, error) {
	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return "", fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	body, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text from %s: %w", pdfPath, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return "", fmt.Errorf("reading text from %s: %w", pdfPath, err)
	}
	if buf.Len() == 0 {
		return "", fmt.Errorf("no text extracted from %s", pdfPath)
	}
	return buf.String(), nil
}
