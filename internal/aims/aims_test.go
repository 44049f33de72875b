// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package aims

import (
	"errors"
	"strings"
	"testing"
)

const sampleGrantMD = `# Department of Health and Human Services

Principal Investigator: Smith, Jane A.
Applicant Organization: University of Example
Project Title: Mechanisms of viral escape in chronic infection
Project Number: R01-AI-123456
Issuing IC: NIAID
Fiscal Year: 2020

<!-- page 2 -->

## Project Summary

A summary paragraph that should not be part of the aims section.

<!-- page 3 -->

## Specific Aims

Chronic viral infection remains a major cause of morbidity. Our long-term
goal is to define the host factors that control viral persistence.

## Aim 1

Determine how effector T cells lose function during persistent antigen
exposure using single-cell profiling.

## Aim 2

Test whether checkpoint blockade restores clearance in the murine model.

<!-- page 4 -->

## Significance

This section belongs to the research strategy, not the aims.
`

// --- ExtractSection ---

func TestExtractSectionFindsAims(t *testing.T) {
	sec, err := ExtractSection(sampleGrantMD)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(sec.Heading, "## Specific Aims") {
		t.Errorf("heading missing aims line:\n%s", sec.Heading)
	}
	if !strings.Contains(sec.Heading, "## Aim 1") || !strings.Contains(sec.Heading, "## Aim 2") {
		t.Errorf("aim subheads not promoted to level 2:\n%s", sec.Heading)
	}
	if !strings.Contains(sec.Text, "viral persistence") {
		t.Errorf("body text missing narrative: %q", sec.Text)
	}
	if strings.Contains(sec.RawMarkdown, "Significance") {
		t.Error("extraction ran past the stop heading")
	}
	if strings.Contains(sec.RawMarkdown, "Project Summary") {
		t.Error("extraction included material before the aims heading")
	}
}

func TestExtractSectionStopsAtPageMarker(t *testing.T) {
	md := `## Specific Aims

Aims narrative on the aims page.

<!-- page 5 -->

More text that spills onto the next page.
`
	sec, err := ExtractSection(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(sec.Text, "spills onto") {
		t.Errorf("extraction crossed a page marker: %q", sec.Text)
	}
}

func TestExtractSectionStopHeadings(t *testing.T) {
	stopHeads := []string{
		"Significance", "Innovation", "Approach", "Research Strategy",
		"Project Summary", "Abstract", "Bibliography", "References",
	}
	for _, stop := range stopHeads {
		t.Run(stop, func(t *testing.T) {
			md := "## Specific Aims\n\nThe aims narrative.\n\n## " + stop + "\n\nAfter.\n"
			sec, err := ExtractSection(md)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if strings.Contains(sec.Text, "After") {
				t.Errorf("extraction ran past %q", stop)
			}
		})
	}
}

func TestExtractSectionInteriorHeadingDemoted(t *testing.T) {
	md := `## Specific Aims

Narrative text.

## Expected Outcomes

Outcome text.
`
	sec, err := ExtractSection(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(sec.RawMarkdown, "### Expected Outcomes") {
		t.Errorf("interior heading not demoted to level 3:\n%s", sec.RawMarkdown)
	}
}

func TestExtractSectionNoHeading(t *testing.T) {
	_, err := ExtractSection("# Introduction\n\nNo aims here.\n")
	if !errors.Is(err, ErrNoAimsHeading) {
		t.Errorf("err = %v, want ErrNoAimsHeading", err)
	}
}

func TestExtractSectionSingularAim(t *testing.T) {
	// "Specific Aim" without the plural still matches.
	sec, err := ExtractSection("## Specific Aim\n\nSingle aim narrative.\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sec.Text != "Single aim narrative." {
		t.Errorf("text = %q", sec.Text)
	}
}

// --- ParseSection / SquashNewlines ---

func TestParseSectionSeparatesHeadingsFromBody(t *testing.T) {
	md := `## Specific Aims

First line of paragraph
continues on a second line.

## Aim 1

Aim one text.
`
	sec := ParseSection(md)

	wantHeading := "## Specific Aims\n## Aim 1"
	if sec.Heading != wantHeading {
		t.Errorf("heading = %q, want %q", sec.Heading, wantHeading)
	}
	if !strings.Contains(sec.Text, "First line of paragraph continues on a second line.") {
		t.Errorf("single newline not squashed: %q", sec.Text)
	}
	if !strings.Contains(sec.Text, "\n\nAim one text.") {
		t.Errorf("paragraph break lost: %q", sec.Text)
	}
}

func TestSquashNewlines(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  string
	}{
		{
			name:  "joins single newlines",
			lines: []string{"one", "two", "", "three"},
			want:  "one two\n\nthree",
		},
		{
			name:  "drops leading and trailing blanks",
			lines: []string{"", "", "body", "", ""},
			want:  "body",
		},
		{
			name:  "empty input",
			lines: nil,
			want:  "",
		},
		{
			name:  "whitespace only lines act as separators",
			lines: []string{"a", "   ", "b"},
			want:  "a\n\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SquashNewlines(tt.lines); got != tt.want {
				t.Errorf("SquashNewlines() = %q, want %q", got, tt.want)
			}
		})
	}
}

// --- NormalizeGrantID ---

func TestNormalizeGrantID(t *testing.T) {
	tests := []struct {
		stem string
		want string
	}{
		{"R01_John_2020_specific_aims", "R01_John_2020"},
		{"R01_John_2020_reviewed", "R01_John_2020"},
		{"R01_John_2020_aims", "R01_John_2020"},
		{"R01_John_2020_specific_aims_reviewed", "R01_John_2020"},
		{"R01-AI123456", "R01-AI123456"},
	}

	for _, tt := range tests {
		if got := NormalizeGrantID(tt.stem); got != tt.want {
			t.Errorf("NormalizeGrantID(%q) = %q, want %q", tt.stem, got, tt.want)
		}
	}
}

// --- ScrapeCoverMeta ---

func TestScrapeCoverMeta(t *testing.T) {
	meta := ScrapeCoverMeta(sampleGrantMD)

	if meta.PI != "Smith, Jane A." {
		t.Errorf("PI = %q", meta.PI)
	}
	if meta.Institution != "University of Example" {
		t.Errorf("Institution = %q", meta.Institution)
	}
	if meta.ProjectTitle != "Mechanisms of viral escape in chronic infection" {
		t.Errorf("ProjectTitle = %q", meta.ProjectTitle)
	}
	if meta.ProjectNumber != "R01-AI-123456" {
		t.Errorf("ProjectNumber = %q", meta.ProjectNumber)
	}
	if meta.IC != "NIAID" {
		t.Errorf("IC = %q", meta.IC)
	}
	if meta.FiscalYear != 2020 {
		t.Errorf("FiscalYear = %d", meta.FiscalYear)
	}
}

func TestScrapeCoverMetaMissingFields(t *testing.T) {
	meta := ScrapeCoverMeta("## Specific Aims\n\nNo cover sheet at all.\n")
	if meta != (CoverMeta{}) {
		t.Errorf("expected zero CoverMeta, got %+v", meta)
	}
}

func TestScrapeCoverMetaIgnoresLateMatches(t *testing.T) {
	// Fields past the cover-line window must not be scraped.
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("Filler line about the research narrative.\n")
	}
	b.WriteString("Principal Investigator: Late, Too\n")

	meta := ScrapeCoverMeta(b.String())
	if meta.PI != "" {
		t.Errorf("PI = %q, want empty for late match", meta.PI)
	}
}

// --- Validate ---

func validSection() *Section {
	body := strings.Repeat("A substantive sentence about the research plan. ", 10)
	md := "## Specific Aims\n\n" + body + "\n\n## Aim 1\n\nDetails of the first aim.\n"
	return ParseSection(md)
}

func TestValidateCleanSection(t *testing.T) {
	if issues := Validate(validSection()); len(issues) != 0 {
		t.Errorf("unexpected issues: %v", issues)
	}
}

func TestValidateFindings(t *testing.T) {
	tests := []struct {
		name     string
		section  *Section
		wantCode string
	}{
		{
			name:     "missing heading",
			section:  ParseSection("Body text with no heading at all but plenty of words to pass length checks. " + strings.Repeat("More words. ", 30)),
			wantCode: "no-heading",
		},
		{
			name:     "wrong heading",
			section:  ParseSection("## Research Plan\n\n" + strings.Repeat("Words here. ", 40)),
			wantCode: "wrong-heading",
		},
		{
			name:     "empty body",
			section:  ParseSection("## Specific Aims\n"),
			wantCode: "no-body",
		},
		{
			name:     "short body",
			section:  ParseSection("## Specific Aims\n\nToo short.\n\n## Aim 1\n\nBrief.\n"),
			wantCode: "short-body",
		},
		{
			name:     "no numbered aims",
			section:  ParseSection("## Specific Aims\n\n" + strings.Repeat("Narrative without numbered aims. ", 20)),
			wantCode: "no-numbered-aims",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues := Validate(tt.section)
			for _, issue := range issues {
				if issue.Code == tt.wantCode {
					return
				}
			}
			t.Errorf("issues %v missing code %q", issues, tt.wantCode)
		})
	}
}

func TestValidateHeadingNotFollowedByText(t *testing.T) {
	// Heading exists and body exists, but the body sits far below the
	// heading (more than 5 lines of subheads in between).
	md := "## Specific Aims\n## Aim 1\n## Aim 2\n## Aim 3\n## Aim 4\n## Aim 5\n## Aim 6\n\n" +
		strings.Repeat("Late body text. ", 30)
	issues := Validate(ParseSection(md))
	found := false
	for _, issue := range issues {
		if issue.Code == "no-body-after-heading" {
			found = true
		}
	}
	if !found {
		t.Errorf("issues %v missing no-body-after-heading", issues)
	}
}
