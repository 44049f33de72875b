// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunk splits aims text into overlapping sentence windows for
// embedding. Chunk boundaries never cross grants, so every chunk keeps a
// single source document.
package chunk

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/grant-engine/pkg/types"
)

const (
	defaultSentencesPerChunk = 5
	defaultOverlapSentences  = 1
)

// sentenceRe matches one sentence ending in ., ! or ?. The non-greedy flag
// keeps each match at the first terminator.
var sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)

// Splitter produces sentence-window chunks with overlap.
type Splitter struct {
	sentencesPerChunk int
	overlapSentences  int
}

// NewSplitter builds a Splitter from config, applying defaults for zero
// values. Overlap is clamped below the window size so the scan always
// advances.
func NewSplitter(cfg types.ChunkingConfig) *Splitter {
	per := cfg.SentencesPerChunk
	if per <= 0 {
		per = defaultSentencesPerChunk
	}
	overlap := cfg.OverlapSentences
	if overlap < 0 {
		overlap = defaultOverlapSentences
	}
	if overlap >= per {
		overlap = per - 1
	}
	return &Splitter{sentencesPerChunk: per, overlapSentences: overlap}
}

// Split cuts text into chunks owned by grantID. Text without sentence
// terminators becomes a single chunk. Empty or whitespace-only text yields
// no chunks.
func (s *Splitter) Split(grantID, text string) []types.Chunk {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		sentences = []string{trimmed}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
	}

	var chunks []types.Chunk
	i := 0
	seq := 0
	for i < len(sentences) {
		end := i + s.sentencesPerChunk
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, types.Chunk{
			ID:      grantID + ":" + strconv.Itoa(seq),
			GrantID: grantID,
			Seq:     seq,
			Text:    strings.Join(sentences[i:end], " "),
		})
		if end == len(sentences) {
			break
		}
		i = end - s.overlapSentences
		seq++
	}
	return chunks
}
