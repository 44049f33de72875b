// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package convert

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const defaultGrobidURL = "http://localhost:8070"

// grobidAimsHeadRe promotes Specific Aims heads to top-level headings.
var grobidAimsHeadRe = regexp.MustCompile(`(?i)^specific\s+aims?`)

// GROBIDConverter converts PDFs by POSTing them to a running GROBID service
// and rendering the returned TEI-XML as Markdown. Heading depth follows the
// TEI div nesting, capped at 4; heads that look like the Specific Aims
// section are promoted to level 1.
type GROBIDConverter struct {
	baseURL string
	client  *http.Client
}

// NewGROBIDConverter builds a converter for the GROBID service at baseURL,
// defaulting to localhost.
func NewGROBIDConverter(baseURL string) *GROBIDConverter {
	if baseURL == "" {
		baseURL = defaultGrobidURL
	}
	return &GROBIDConverter{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
	}
}

// Name identifies the backend.
func (g *GROBIDConverter) Name() string { return "grobid" }

// Convert uploads the PDF to GROBID's full-text endpoint and converts the
// TEI response to Markdown.
func (g *GROBIDConverter) Convert(pdfPath string) (string, error) {
	tei, err := g.processFulltext(pdfPath)
	if err != nil {
		return "", err
	}
	md, err := teiToMarkdown(tei)
	if err != nil {
		return "", fmt.Errorf("converting TEI for %s: %w", pdfPath, err)
	}
	if strings.TrimSpace(md) == "" {
		return "", fmt.Errorf("GROBID produced no text for %s", pdfPath)
	}
	return md, nil
}

// processFulltext POSTs the PDF as multipart form data and returns the raw
// TEI-XML bytes.
func (g *GROBIDConverter) processFulltext(pdfPath string) ([]byte, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("opening PDF %s: %w", pdfPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("input", filepath.Base(pdfPath))
	if err != nil {
		return nil, fmt.Errorf("building upload form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("reading PDF %s: %w", pdfPath, err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing upload form: %w", err)
	}

	endpoint := g.baseURL + "/api/processFulltextDocument"
	req, err := http.NewRequest(http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling GROBID at %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 400))
		return nil, fmt.Errorf("GROBID returned %d: %s", resp.StatusCode, string(msg))
	}
	return io.ReadAll(resp.Body)
}

// teiToMarkdown renders TEI-XML head and p elements, in document order,
// as Markdown lines separated by blank spacers.
func teiToMarkdown(tei []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(tei))

	var lines []string
	divDepth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parsing TEI: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "div":
				divDepth++
			case "head":
				text, err := elementText(dec, t.Name)
				if err != nil {
					return "", err
				}
				if text == "" {
					continue
				}
				depth := headingDepth(text, divDepth)
				lines = append(lines, strings.Repeat("#", depth)+" "+text, "")
			case "p":
				text, err := elementText(dec, t.Name)
				if err != nil {
					return "", err
				}
				if text == "" {
					continue
				}
				lines = append(lines, text, "")
			}
		case xml.EndElement:
			if t.Name.Local == "div" && divDepth > 0 {
				divDepth--
			}
		}
	}

	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n", nil
}

// headingDepth maps a head's div nesting to a Markdown level. Specific Aims
// heads force level 1 so the aims extractor finds them wherever GROBID
// nested the section.
func headingDepth(text string, divDepth int) int {
	if grobidAimsHeadRe.MatchString(text) {
		return 1
	}
	depth := divDepth + 1
	if depth > 4 {
		depth = 4
	}
	return depth
}

// elementText consumes tokens until the named element closes and returns
// all character data inside it, nested markup included.
func elementText(dec *xml.Decoder, name xml.Name) (string, error) {
	var buf strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("parsing TEI element %s: %w", name.Local, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name == name {
				depth++
			}
		case xml.EndElement:
			if t.Name == name {
				depth--
			}
		case xml.CharData:
			buf.Write(t)
		}
	}
	return strings.Join(strings.Fields(buf.String()), " "), nil
}
