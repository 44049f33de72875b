// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package vecindex maintains the nearest-neighbor index over chunk
// embeddings. Searches run against an in-memory copy; vectors are persisted
// in a bbolt database so the index survives restarts without re-embedding.
//
// The index enforces two invariants: all stored vectors share the dimension
// fixed by the embedding model, and every vector carries the grant and chunk
// IDs it was computed from.
package vecindex

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	// ErrDimensionMismatch reports an insert whose vector length differs
	// from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrModelMismatch reports an insert embedded with a different model
	// than the one the index was built with.
	ErrModelMismatch = errors.New("embedding model mismatch")
)

var (
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")

	metaModel = []byte("model")
	metaDims  = []byte("dims")
)

// Entry is one vector keyed by its source chunk.
type Entry struct {
	ChunkID string    `json:"chunk_id"`
	GrantID string    `json:"grant_id"`
	Vector  []float32 `json:"vector"`
}

// Hit is one search result.
type Hit struct {
	ChunkID string
	GrantID string
	// Score is the cosine similarity to the query vector.
	Score float64
}

// storedVector is the JSON value kept per chunk in the vectors bucket.
type storedVector struct {
	GrantID string    `json:"grant_id"`
	Vector  []float32 `json:"vector"`
}

// Index is the persistent nearest-neighbor index. All methods are safe for
// concurrent use.
type Index struct {
	mu sync.RWMutex
	db *bolt.DB

	model string
	dims  int

	// Parallel arrays: ids[i], grants[i], vectors[i], norms[i] describe one
	// stored chunk. pos maps chunk ID to its slot for in-place updates.
	ids     []string
	grants  []string
	vectors [][]float32
	norms   []float64
	pos     map[string]int
}

// Open opens or creates the index database at path and loads all vectors
// into memory.
func Open(path string) (*Index, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening vector store %s: %w", path, err)
	}

	ix := &Index{db: db, pos: make(map[string]int)}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketVectors); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing vector store: %w", err)
	}

	if err := ix.load(); err != nil {
		db.Close()
		return nil, err
	}
	return ix, nil
}

// load reads meta and all vectors from disk into the in-memory arrays.
func (ix *Index) load() error {
	return ix.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if v := meta.Get(metaModel); v != nil {
			ix.model = string(v)
		}
		if v := meta.Get(metaDims); v != nil {
			dims, err := strconv.Atoi(string(v))
			if err != nil {
				return fmt.Errorf("corrupt dims entry %q: %w", v, err)
			}
			ix.dims = dims
		}

		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			var sv storedVector
			if err := json.Unmarshal(v, &sv); err != nil {
				return fmt.Errorf("corrupt vector entry %s: %w", k, err)
			}
			ix.append(string(k), sv.GrantID, sv.Vector)
			return nil
		})
	})
}

// append adds one vector to the in-memory arrays, replacing any existing
// slot for the same chunk ID. Caller holds the write lock (or has exclusive
// access during load).
func (ix *Index) append(chunkID, grantID string, vec []float32) {
	if i, ok := ix.pos[chunkID]; ok {
		ix.grants[i] = grantID
		ix.vectors[i] = vec
		ix.norms[i] = norm(vec)
		return
	}
	ix.pos[chunkID] = len(ix.ids)
	ix.ids = append(ix.ids, chunkID)
	ix.grants = append(ix.grants, grantID)
	ix.vectors = append(ix.vectors, vec)
	ix.norms = append(ix.norms, norm(vec))
}

// Close closes the underlying database.
func (ix *Index) Close() error { return ix.db.Close() }

// Model returns the embedding model the index was built with, empty for a
// fresh index.
func (ix *Index) Model() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.model
}

// Dims returns the fixed vector dimension, zero for a fresh index.
func (ix *Index) Dims() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dims
}

// Len returns the number of stored vectors.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.ids)
}

// Has reports whether a vector is stored for the chunk.
func (ix *Index) Has(chunkID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.pos[chunkID]
	return ok
}

// Add inserts or replaces entries embedded with model. The first insert
// into a fresh index fixes the model and dimension; later inserts must
// match both or the whole batch is rejected before any write.
func (ix *Index) Add(model string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	dims := ix.dims
	if dims == 0 {
		dims = len(entries[0].Vector)
		if dims == 0 {
			return fmt.Errorf("%w: empty vector for chunk %s", ErrDimensionMismatch, entries[0].ChunkID)
		}
	}
	if ix.model != "" && ix.model != model {
		return fmt.Errorf("%w: index built with %q, got %q (rebuild to switch models)", ErrModelMismatch, ix.model, model)
	}
	for _, e := range entries {
		if len(e.Vector) != dims {
			return fmt.Errorf("%w: chunk %s has %d dimensions, index has %d", ErrDimensionMismatch, e.ChunkID, len(e.Vector), dims)
		}
		if e.ChunkID == "" || e.GrantID == "" {
			return fmt.Errorf("entry missing chunk or grant ID (chunk %q, grant %q)", e.ChunkID, e.GrantID)
		}
	}

	err := ix.db.Update(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if err := meta.Put(metaModel, []byte(model)); err != nil {
			return err
		}
		if err := meta.Put(metaDims, []byte(strconv.Itoa(dims))); err != nil {
			return err
		}

		vecs := tx.Bucket(bucketVectors)
		for _, e := range entries {
			data, err := json.Marshal(storedVector{GrantID: e.GrantID, Vector: e.Vector})
			if err != nil {
				return err
			}
			if err := vecs.Put([]byte(e.ChunkID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing vectors: %w", err)
	}

	ix.model = model
	ix.dims = dims
	for _, e := range entries {
		ix.append(e.ChunkID, e.GrantID, e.Vector)
	}
	return nil
}

// Search returns the topK stored chunks by cosine similarity to query,
// highest first. A zero or mismatched-dimension query returns an error.
func (ix *Index) Search(query []float32, topK int) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.ids) == 0 {
		return nil, nil
	}
	if len(query) != ix.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d", ErrDimensionMismatch, len(query), ix.dims)
	}
	qn := norm(query)
	if qn == 0 {
		return nil, fmt.Errorf("query embeds to the zero vector")
	}
	if topK <= 0 {
		topK = 10
	}

	hits := make([]Hit, len(ix.ids))
	for i := range ix.ids {
		score := 0.0
		if ix.norms[i] > 0 {
			score = dot(query, ix.vectors[i]) / (qn * ix.norms[i])
		}
		hits[i] = Hit{ChunkID: ix.ids[i], GrantID: ix.grants[i], Score: score}
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Score > hits[b].Score })

	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

// Reset removes every vector and clears the model binding, for --rebuild.
func (ix *Index) Reset() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	err := ix.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketVectors); err != nil {
			return err
		}
		if err := tx.DeleteBucket(bucketMeta); err != nil {
			return err
		}
		if _, err := tx.CreateBucket(bucketVectors); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketMeta)
		return err
	})
	if err != nil {
		return fmt.Errorf("resetting vector store: %w", err)
	}

	ix.model = ""
	ix.dims = 0
	ix.ids = nil
	ix.grants = nil
	ix.vectors = nil
	ix.norms = nil
	ix.pos = make(map[string]int)
	return nil
}

// Grants returns the set of grant IDs with at least one stored vector.
func (ix *Index) Grants() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	counts := make(map[string]int)
	for _, g := range ix.grants {
		counts[g]++
	}
	return counts
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
