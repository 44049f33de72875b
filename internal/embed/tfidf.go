// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// tfidfModelName identifies locally fitted TF-IDF vectors in the index.
const tfidfModelName = "tfidf"

// TFIDF is a local embedding backend: vectors are smoothed TF-IDF weights
// over the corpus vocabulary, L2-normalized. The fitted vocabulary and IDF
// values persist to disk so query-time vectors live in the same space as
// the indexed corpus.
type TFIDF struct {
	statePath string
	vocab     map[string]int
	idf       []float64
	tokenRe   *regexp.Regexp
	stopwords map[string]struct{}
	fitted    bool
}

// tfidfState is the on-disk form of a fitted model. Terms are sorted, and
// a term's position is its vector dimension.
type tfidfState struct {
	Terms []string  `json:"terms"`
	IDF   []float64 `json:"idf"`
}

// NewTFIDF returns a TF-IDF embedder, loading fitted state from statePath
// when it exists.
func NewTFIDF(statePath string) (*TFIDF, error) {
	t := &TFIDF{
		statePath: statePath,
		tokenRe:   regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords: defaultStopwords(),
	}

	data, err := os.ReadFile(statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("reading TF-IDF state: %w", err)
	}

	var state tfidfState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing TF-IDF state %s: %w", statePath, err)
	}
	if len(state.Terms) != len(state.IDF) {
		return nil, fmt.Errorf("TF-IDF state %s is corrupt: %d terms, %d IDF values",
			statePath, len(state.Terms), len(state.IDF))
	}

	t.vocab = make(map[string]int, len(state.Terms))
	for i, term := range state.Terms {
		t.vocab[term] = i
	}
	t.idf = state.IDF
	t.fitted = len(state.Terms) > 0
	return t, nil
}

// Model returns the TF-IDF model identifier.
func (t *TFIDF) Model() string { return tfidfModelName }

// Dims returns the vector dimension count, zero before fitting.
func (t *TFIDF) Dims() int { return len(t.idf) }

// Fit builds the vocabulary and IDF values from the corpus and persists
// them. Refitting on a changed corpus changes the dimension count, which
// the vector index rejects until rebuilt.
func (t *TFIDF) Fit(texts []string) error {
	if len(texts) == 0 {
		return errors.New("empty corpus for TF-IDF fit")
	}

	df := make(map[string]int)
	for _, text := range texts {
		seen := make(map[string]struct{})
		for _, tok := range t.tokenize(text) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}

	terms := make([]string, 0, len(df))
	for term := range df {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) == 0 {
		return errors.New("no tokens found in corpus")
	}

	t.vocab = make(map[string]int, len(terms))
	t.idf = make([]float64, len(terms))
	n := float64(len(texts))
	for i, term := range terms {
		t.vocab[term] = i
		// Smoothed IDF.
		t.idf[i] = math.Log((1+n)/(1+float64(df[term]))) + 1.0
	}
	t.fitted = true

	return t.save(tfidfState{Terms: terms, IDF: t.idf})
}

func (t *TFIDF) save(state tfidfState) error {
	if err := os.MkdirAll(filepath.Dir(t.statePath), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling TF-IDF state: %w", err)
	}
	if err := os.WriteFile(t.statePath, data, 0o644); err != nil {
		return fmt.Errorf("writing TF-IDF state: %w", err)
	}
	return nil
}

// Embed vectorizes each text against the fitted vocabulary. Texts sharing
// no vocabulary terms come back as zero vectors; callers fall back to
// lexical retrieval for those.
func (t *TFIDF) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !t.fitted {
		return nil, errors.New("TF-IDF model not fitted; run the embed stage over the corpus first")
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		out[i] = t.vector(text)
	}
	return out, nil
}

func (t *TFIDF) vector(text string) []float32 {
	vec := make([]float64, len(t.idf))
	tf := make(map[int]int)
	total := 0
	for _, tok := range t.tokenize(text) {
		if idx, ok := t.vocab[tok]; ok {
			tf[idx]++
			total++
		}
	}
	if total > 0 {
		for idx, count := range tf {
			vec[idx] = float64(count) / float64(total) * t.idf[idx]
		}
		norm := 0.0
		for _, v := range vec {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm > 0 {
			for i := range vec {
				vec[i] /= norm
			}
		}
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(v)
	}
	return out
}

func (t *TFIDF) tokenize(text string) []string {
	raw := t.tokenRe.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, tok := range raw {
		if _, isStop := t.stopwords[tok]; isStop {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for",
		"to", "of", "in", "on", "at", "by", "with", "as", "is", "are",
		"was", "were", "be", "been", "being", "it", "this", "that",
		"these", "those", "from", "up", "down", "over", "under", "again",
		"further", "than", "so", "such", "into", "about", "between",
		"through", "during", "before", "after", "above", "below", "out",
		"off", "own", "same", "too", "very", "can", "will", "just",
		"should", "now", "we", "our",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
