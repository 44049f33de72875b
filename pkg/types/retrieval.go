// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Exemplar is one retrieval hit: a chunk of a stored grant scored against
// the query, joined with the grant's metadata.
type Exemplar struct {
	// GrantID identifies the source grant.
	GrantID string `json:"grant_id" yaml:"grant_id"`

	// ChunkID identifies the matched chunk ("<grantID>:<seq>").
	ChunkID string `json:"chunk_id" yaml:"chunk_id"`

	// Title is the grant's project title.
	Title string `json:"title" yaml:"title"`

	// ImpactScore is the grant's review score, when known.
	ImpactScore *float64 `json:"impact_score,omitempty" yaml:"impact_score,omitempty"`

	// Similarity is the cosine similarity between query and chunk, in [0, 1]
	// for non-degenerate vectors. Lexical fallback hits carry an overlap
	// coefficient instead.
	Similarity float64 `json:"similarity" yaml:"similarity"`

	// Excerpt is the matched chunk text.
	Excerpt string `json:"excerpt" yaml:"excerpt"`

	// Review is the review status of the underlying aims section.
	Review ReviewStatus `json:"review" yaml:"review"`
}
