// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// DraftRequest carries the applicant inputs for generating a Specific Aims
// draft.
type DraftRequest struct {
	// Topic is the research topic in one or two sentences.
	Topic string `json:"topic" yaml:"topic"`

	// Hypothesis is the central hypothesis, if the applicant has one.
	Hypothesis string `json:"hypothesis,omitempty" yaml:"hypothesis,omitempty"`

	// Aims lists the planned aims as short bullets, in order.
	Aims []string `json:"aims,omitempty" yaml:"aims,omitempty"`

	// ExemplarCount overrides the configured number of retrieved exemplars
	// included in the prompt. Zero means use the configured default.
	ExemplarCount int `json:"exemplar_count,omitempty" yaml:"exemplar_count,omitempty"`
}

// DraftMeta is the YAML frontmatter written at the top of a generated draft.
type DraftMeta struct {
	// Topic restates the request topic.
	Topic string `json:"topic" yaml:"topic"`

	// Model is the model identifier that produced the draft.
	Model string `json:"model" yaml:"model"`

	// Backend is the drafting API used: claude or openai.
	Backend string `json:"backend" yaml:"backend"`

	// Exemplars lists the grant IDs whose aims informed the draft.
	Exemplars []string `json:"exemplars" yaml:"exemplars"`

	// GeneratedAt is the draft creation time.
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
}

// DraftResult holds a generated draft and its provenance.
type DraftResult struct {
	// Meta is the draft frontmatter.
	Meta DraftMeta `json:"meta" yaml:"meta"`

	// Text is the generated Specific Aims section in markdown.
	Text string `json:"text" yaml:"text"`

	// Path is where the draft was written, empty if not persisted.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}
