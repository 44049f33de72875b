// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
)

// cacheBucket holds vectors keyed by SHA-256(model, text).
var cacheBucket = []byte("embeddings")

// lruSize bounds the in-memory cache layer.
const lruSize = 4096

// Cached wraps an Embedder with a two-level vector cache: an in-memory LRU
// in front of a bbolt file. Rebuilding the index then reuses cached
// vectors instead of re-billing the API for unchanged chunks. Only wrap
// backends whose vectors are a pure function of (model, text).
type Cached struct {
	inner Embedder
	db    *bolt.DB
	lru   *lru.Cache[string, []float32]
}

// NewCached opens or creates the cache database at path around inner.
func NewCached(inner Embedder, path string) (*Cached, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening embedding cache: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache bucket: %w", err)
	}

	mem, err := lru.New[string, []float32](lruSize)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cached{inner: inner, db: db, lru: mem}, nil
}

// Close releases the cache database.
func (c *Cached) Close() error { return c.db.Close() }

// Model reports the wrapped embedder's model.
func (c *Cached) Model() string { return c.inner.Model() }

// Fit passes through to the wrapped embedder when it learns from the
// corpus.
func (c *Cached) Fit(texts []string) error {
	if fitter, ok := c.inner.(Fitter); ok {
		return fitter.Fit(texts)
	}
	return nil
}

// Embed returns cached vectors where available and asks the wrapped
// embedder only for the misses, preserving input order.
func (c *Cached) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		key := cacheKey(c.inner.Model(), text)
		if vec, ok := c.lru.Get(key); ok {
			out[i] = vec
			continue
		}
		vec, found, err := c.fromDB(key)
		if err != nil {
			return nil, err
		}
		if found {
			c.lru.Add(key, vec)
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}

	err = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(cacheBucket)
		for j, vec := range vecs {
			key := cacheKey(c.inner.Model(), missTexts[j])
			data, err := json.Marshal(vec)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(key), data); err != nil {
				return err
			}
			c.lru.Add(key, vec)
			out[missIdx[j]] = vec
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("writing embedding cache: %w", err)
	}
	return out, nil
}

func (c *Cached) fromDB(key string) ([]float32, bool, error) {
	var vec []float32
	found := false
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(cacheBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &vec)
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading embedding cache: %w", err)
	}
	return vec, found, nil
}

func cacheKey(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}
