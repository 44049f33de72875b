// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aims locates and structures the Specific Aims section of converted
// grant markdown, scrapes cover-page metadata, and validates extracted
// sections before they enter the corpus.
package aims

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoAimsHeading reports a document with no recognizable Specific Aims
// heading.
var ErrNoAimsHeading = errors.New("no Specific Aims heading found")

var (
	aimsHeadRe   = regexp.MustCompile(`(?i)\bspecific\s+aims?\b`)
	aimSubheadRe = regexp.MustCompile(`(?i)\b(?:specific\s+)?aim\s*\d+\b`)
	stopHeadRe   = regexp.MustCompile(`(?i)^(significance|innovation|approach|research\s+strategy|project\s+summary|abstract|bibliography|references)\b`)

	headingLineRe = regexp.MustCompile(`^\s*(#{1,6})\s+(.*)$`)
	pageMarkerRe  = regexp.MustCompile(`^<!-- page \d+ -->$`)
)

// Cover-page scraping patterns. Deliberately loose: NIH cover sheets vary
// between mechanisms and fiscal years.
var (
	piRe            = regexp.MustCompile(`(?i)principal investigator[:\s]*([\w ,.-]+)`)
	institutionRe   = regexp.MustCompile(`(?i)(?:applicant|performance) organization[:\s]*([\w ,.-]+)`)
	projectTitleRe  = regexp.MustCompile(`(?i)project title[:\s]*(.+)`)
	projectNumberRe = regexp.MustCompile(`(?i)project number[:\s]*(\w{2,}-\w{2,}-\w{6,})`)
	icRe            = regexp.MustCompile(`(?i)\b(?:issuing)?\s?ic[:\s]*([A-Z]{2,6})\b`)
	fiscalYearRe    = regexp.MustCompile(`(?i)fiscal year[:\s]*(\d{4})`)
)

// Section is a structured Specific Aims section.
type Section struct {
	// Heading holds the section's markdown heading lines, joined with
	// newlines, hash prefixes included.
	Heading string

	// Text is the body narrative with single newlines squashed: each
	// paragraph is one line, paragraphs separated by blank lines.
	Text string

	// RawMarkdown is the section exactly as extracted or read.
	RawMarkdown string
}

// ExtractSection locates the Specific Aims section in full-document
// markdown. Extraction starts at the first heading matching the aims
// pattern and stops at the next stop heading (Significance, Innovation,
// Approach, ...) or at a page-marker transition, whichever comes first.
// Aim subheadings are promoted to level 2, other interior headings to
// level 3.
func ExtractSection(markdown string) (*Section, error) {
	lines := strings.Split(markdown, "\n")

	start := -1
	for i, line := range lines {
		if m := headingLineRe.FindStringSubmatch(line); m != nil && aimsHeadRe.MatchString(m[2]) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, ErrNoAimsHeading
	}

	var md []string
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			md = append(md, "")
			continue
		}
		// Converted markdown carries page markers; the aims section does
		// not run past its own page.
		if pageMarkerRe.MatchString(trimmed) && len(md) > 0 {
			break
		}
		if m := headingLineRe.FindStringSubmatch(line); m != nil {
			text := strings.TrimSpace(m[2])
			if stopHeadRe.MatchString(text) {
				break
			}
			if aimsHeadRe.MatchString(text) || aimSubheadRe.MatchString(text) {
				md = append(md, "## "+text)
			} else {
				md = append(md, "### "+text)
			}
			continue
		}
		md = append(md, line)
	}

	raw := strings.TrimRight(strings.Join(md, "\n"), "\n")
	sec := ParseSection(raw)
	return sec, nil
}

// ParseSection splits section markdown into heading lines and squashed body
// text. It accepts both machine-extracted and human-reviewed files.
func ParseSection(markdown string) *Section {
	raw := strings.TrimRight(markdown, "\n \t")
	var headings, body []string
	for _, line := range strings.Split(raw, "\n") {
		if headingLineRe.MatchString(line) {
			headings = append(headings, strings.TrimRight(line, " \t"))
			continue
		}
		if pageMarkerRe.MatchString(strings.TrimSpace(line)) {
			continue
		}
		body = append(body, strings.TrimRight(line, " \t"))
	}
	return &Section{
		Heading:     strings.TrimSpace(strings.Join(headings, "\n")),
		Text:        SquashNewlines(body),
		RawMarkdown: raw,
	}
}

// SquashNewlines joins lines into paragraphs: single newlines become
// spaces, and any run of blank lines becomes one paragraph break.
func SquashNewlines(lines []string) string {
	var paragraphs []string
	var buf []string

	flush := func() {
		if len(buf) > 0 {
			paragraphs = append(paragraphs, strings.TrimSpace(strings.Join(buf, " ")))
			buf = nil
		}
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
		} else {
			buf = append(buf, strings.TrimSpace(line))
		}
	}
	flush()

	return strings.Join(paragraphs, "\n\n")
}

// NormalizeGrantID derives a grant ID from a markdown file stem, stripping
// the suffixes reviewers append to aims files.
func NormalizeGrantID(stem string) string {
	id := stem
	for _, suffix := range []string{"_specific_aims", "_reviewed", "_aims"} {
		id = strings.ReplaceAll(id, suffix, "")
	}
	return id
}

// CoverMeta holds fields scraped from a grant's cover pages.
type CoverMeta struct {
	PI            string
	Institution   string
	ProjectTitle  string
	ProjectNumber string
	IC            string
	FiscalYear    int
}

// coverLineLimit bounds how much of the document counts as cover material.
const coverLineLimit = 40

// ScrapeCoverMeta scans the first lines of converted markdown for
// cover-sheet fields. Missing fields stay zero-valued.
func ScrapeCoverMeta(markdown string) CoverMeta {
	var cover []string
	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || pageMarkerRe.MatchString(trimmed) {
			continue
		}
		cover = append(cover, strings.TrimLeft(trimmed, "# "))
		if len(cover) >= coverLineLimit {
			break
		}
	}
	text := strings.Join(cover, "\n")

	var meta CoverMeta
	if m := piRe.FindStringSubmatch(text); m != nil {
		meta.PI = strings.TrimSpace(m[1])
	}
	if m := institutionRe.FindStringSubmatch(text); m != nil {
		meta.Institution = strings.TrimSpace(m[1])
	}
	if m := projectTitleRe.FindStringSubmatch(text); m != nil {
		meta.ProjectTitle = strings.TrimSpace(m[1])
	}
	if m := projectNumberRe.FindStringSubmatch(text); m != nil {
		meta.ProjectNumber = m[1]
	}
	if m := icRe.FindStringSubmatch(text); m != nil {
		meta.IC = strings.ToUpper(m[1])
	}
	if m := fiscalYearRe.FindStringSubmatch(text); m != nil {
		if fy, err := strconv.Atoi(m[1]); err == nil {
			meta.FiscalYear = fy
		}
	}
	return meta
}

// Issue is one validation finding for an aims section.
type Issue struct {
	// Code is a short machine-readable label.
	Code string

	// Message explains the finding.
	Message string
}

func (i Issue) String() string { return i.Code + ": " + i.Message }

// minBodyRunes is the smallest body a plausible aims section carries. A
// real Specific Aims page runs several hundred words.
const minBodyRunes = 200

// Validate checks a section for the failure modes extraction runs into:
// missing heading, heading with no narrative underneath, truncated body,
// and missing numbered aims.
func Validate(sec *Section) []Issue {
	var issues []Issue

	if strings.TrimSpace(sec.Heading) == "" {
		issues = append(issues, Issue{Code: "no-heading", Message: "section has no markdown heading"})
	} else if !aimsHeadRe.MatchString(sec.Heading) {
		issues = append(issues, Issue{Code: "wrong-heading", Message: "heading does not mention Specific Aims"})
	}

	if strings.TrimSpace(sec.Text) == "" {
		issues = append(issues, Issue{Code: "no-body", Message: "heading is not followed by body text"})
		return issues
	}

	if !headingFollowedByText(sec.RawMarkdown) {
		issues = append(issues, Issue{Code: "no-body-after-heading", Message: "no paragraph within 5 lines of the aims heading"})
	}

	if len([]rune(sec.Text)) < minBodyRunes {
		issues = append(issues, Issue{
			Code:    "short-body",
			Message: fmt.Sprintf("body is %d characters, likely truncated", len([]rune(sec.Text))),
		})
	}

	if !aimSubheadRe.MatchString(sec.RawMarkdown) && !aimSubheadRe.MatchString(sec.Text) {
		issues = append(issues, Issue{Code: "no-numbered-aims", Message: "no numbered aim (\"Aim 1\", \"Aim 2\", ...) detected"})
	}

	return issues
}

// headingFollowedByText reports whether the first aims heading has a
// non-heading, non-blank line within the next 5 lines.
func headingFollowedByText(markdown string) bool {
	lines := strings.Split(markdown, "\n")
	for i, line := range lines {
		m := headingLineRe.FindStringSubmatch(line)
		if m == nil || !aimsHeadRe.MatchString(m[2]) {
			continue
		}
		for j := i + 1; j < len(lines) && j <= i+5; j++ {
			next := strings.TrimSpace(lines[j])
			if next == "" || headingLineRe.MatchString(lines[j]) {
				continue
			}
			return true
		}
		return false
	}
	return false
}
