// Package vector provides the flat cosine similarity index over
// caller-supplied embeddings.
//
// The index is deliberately exact: approximate structures pull in thread
// pools, memory-mapped files, or platform intrinsics that break the mobile
// and browser targets the engine supports. Flat cosine is O(n*d) per query
// and compiles everywhere unchanged.
//
// Entries carry dense local ids so that temporal allow-sets can be
// expressed as roaring bitmaps; the engine computes the allow-set from the
// bi-temporal axes and this package stays ignorant of time entirely.
package vector

import (
	"math"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/kronroe-db/kronroe/model"
)

// Hit is a scored match from a vector search.
type Hit struct {
	ID    model.FactId
	Score float64
}

type entry struct {
	id  model.FactId
	vec []float32 // unit-normalized at insert
}

// Index is a flat in-memory cosine index.
//
// It is a read-through cache over the embeddings table: rebuilt on open,
// appended after each committed write. The first insert fixes the
// dimension.
type Index struct {
	mu      sync.RWMutex
	entries []entry
	locals  map[model.FactId]uint32
	dim     int
}

// New creates an empty index.
func New() *Index {
	return &Index{locals: make(map[model.FactId]uint32)}
}

// Dim returns the established dimension, or 0 while the index is empty.
func (x *Index) Dim() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.dim
}

// Len returns the number of entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// CheckDim validates a vector against the established dimension without
// inserting. Returns the established dimension and false on mismatch. The
// engine uses this to pre-validate under its writer lock, before it opens
// the write transaction for the row.
func (x *Index) CheckDim(n int) (int, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.dim == 0 || x.dim == n {
		return x.dim, true
	}
	return x.dim, false
}

// Insert adds or replaces the embedding for id. The vector is copied and
// unit-normalized. The first insert establishes the index dimension;
// callers must have validated the dimension beforehand (CheckDim) — a
// mismatched insert here reports ok=false and leaves the index untouched.
func (x *Index) Insert(id model.FactId, vec []float32) (ok bool) {
	if len(vec) == 0 {
		return false
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dim != 0 && x.dim != len(vec) {
		return false
	}
	if x.dim == 0 {
		x.dim = len(vec)
	}

	unit := normalize(vec)
	if local, exists := x.locals[id]; exists {
		x.entries[local].vec = unit
		return true
	}
	x.locals[id] = uint32(len(x.entries))
	x.entries = append(x.entries, entry{id: id, vec: unit})
	return true
}

// AllowSet builds a bitmap of local ids for the given fact ids. Ids with
// no embedding are skipped.
func (x *Index) AllowSet(ids []model.FactId) *roaring.Bitmap {
	x.mu.RLock()
	defer x.mu.RUnlock()
	bm := roaring.New()
	for _, id := range ids {
		if local, ok := x.locals[id]; ok {
			bm.Add(local)
		}
	}
	return bm
}

// Search returns the top-k entries by cosine similarity to query,
// restricted to the allow-set. Results are in descending score order with
// ties broken by fact id byte order; fewer than k results are returned
// when the allow-set is smaller. A zero query vector has no direction and
// yields no results.
func (x *Index) Search(query []float32, k int, allow *roaring.Bitmap) []Hit {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || allow == nil || allow.IsEmpty() || len(x.entries) == 0 {
		return nil
	}
	q := normalize(query)
	if q == nil {
		return nil
	}

	hits := make([]Hit, 0, allow.GetCardinality())
	it := allow.Iterator()
	for it.HasNext() {
		local := it.Next()
		if int(local) >= len(x.entries) {
			continue
		}
		e := x.entries[local]
		hits = append(hits, Hit{ID: e.id, Score: dot(q, e.vec)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// normalize returns a unit-length copy of v, or nil for a zero vector.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return nil
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// dot computes the inner product of two unit vectors, i.e. their cosine
// similarity. Accumulates in float64 for stable tie behavior.
func dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
