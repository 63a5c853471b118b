// Package bm25 provides an in-memory BM25 lexical index.
package bm25

import (
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/kronroe-db/kronroe/lexical"
	"github.com/kronroe-db/kronroe/model"
)

const (
	k1 = 1.2
	b  = 0.75
)

// maxFuzzyExpansions bounds how many vocabulary terms a single unmatched
// query term may expand to.
const maxFuzzyExpansions = 8

type posting struct {
	id    model.FactId
	count int
}

// MemoryIndex is an in-memory BM25 inverted index.
//
// Queries that contain terms absent from the vocabulary fall back to
// single-edit fuzzy expansion against the vocabulary, so "alcie" still
// finds "alice".
type MemoryIndex struct {
	mu          sync.RWMutex
	inverted    map[string][]posting
	docLengths  map[model.FactId]int
	totalLength int64
	docCount    int
}

// New creates an empty MemoryIndex.
func New() *MemoryIndex {
	return &MemoryIndex{
		inverted:   make(map[string][]posting),
		docLengths: make(map[model.FactId]int),
	}
}

// Ensure MemoryIndex implements lexical.Index.
var _ lexical.Index = (*MemoryIndex)(nil)

// Tokenize lowercases and splits on any non-alphanumeric rune.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Add indexes text under id, replacing any previous document for id.
func (idx *MemoryIndex) Add(id model.FactId, text string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.docLengths[id]; ok {
		idx.deleteLocked(id)
	}

	tokens := Tokenize(text)
	length := len(tokens)

	idx.docLengths[id] = length
	idx.totalLength += int64(length)
	idx.docCount++

	tf := make(map[string]int)
	for _, t := range tokens {
		tf[t]++
	}
	for t, count := range tf {
		idx.inverted[t] = append(idx.inverted[t], posting{id: id, count: count})
	}
	return nil
}

// Delete removes the document for id. No-op if absent.
func (idx *MemoryIndex) Delete(id model.FactId) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.deleteLocked(id)
}

func (idx *MemoryIndex) deleteLocked(id model.FactId) error {
	length, ok := idx.docLengths[id]
	if !ok {
		return nil
	}

	// O(terms * postings); fine at this scale.
	for t := range idx.inverted {
		postings := idx.inverted[t]
		for i, p := range postings {
			if p.id == id {
				idx.inverted[t] = append(postings[:i], postings[i+1:]...)
				break
			}
		}
		if len(idx.inverted[t]) == 0 {
			delete(idx.inverted, t)
		}
	}

	delete(idx.docLengths, id)
	idx.totalLength -= int64(length)
	idx.docCount--
	return nil
}

// Search scores all documents against the query and returns the top k,
// ties broken by id byte order.
func (idx *MemoryIndex) Search(query string, k int) ([]lexical.Candidate, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if k <= 0 || idx.docCount == 0 {
		return nil, nil
	}
	tokens := Tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	scores := make(map[model.FactId]float64)
	avgDL := float64(idx.totalLength) / float64(idx.docCount)

	for _, t := range tokens {
		postings, ok := idx.inverted[t]
		if !ok {
			// Fuzzy fallback: expand the term to vocabulary entries within
			// one edit.
			for _, ft := range idx.fuzzyExpandLocked(t) {
				idx.scoreTerm(scores, idx.inverted[ft], avgDL)
			}
			continue
		}
		idx.scoreTerm(scores, postings, avgDL)
	}

	if len(scores) == 0 {
		return nil, nil
	}

	out := make([]lexical.Candidate, 0, len(scores))
	for id, score := range scores {
		out = append(out, lexical.Candidate{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (idx *MemoryIndex) scoreTerm(scores map[model.FactId]float64, postings []posting, avgDL float64) {
	df := len(postings)
	idf := idx.computeIDF(df)

	for _, p := range postings {
		tf := float64(p.count)
		docLen := float64(idx.docLengths[p.id])

		num := tf * (k1 + 1)
		denom := tf + k1*(1-b+b*(docLen/avgDL))
		scores[p.id] += idf * (num / denom)
	}
}

func (idx *MemoryIndex) computeIDF(df int) float64 {
	// IDF = log(1 + (N - n + 0.5) / (n + 0.5))
	N := float64(idx.docCount)
	n := float64(df)
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}

// fuzzyExpandLocked returns vocabulary terms within one edit of t, in a
// deterministic order.
func (idx *MemoryIndex) fuzzyExpandLocked(t string) []string {
	var matches []string
	for term := range idx.inverted {
		if withinOneEdit(t, term) {
			matches = append(matches, term)
		}
	}
	sort.Strings(matches)
	if len(matches) > maxFuzzyExpansions {
		matches = matches[:maxFuzzyExpansions]
	}
	return matches
}

// withinOneEdit reports whether a and b are at most one insertion,
// deletion, substitution, or adjacent transposition apart.
func withinOneEdit(a, b string) bool {
	la, lb := len(a), len(b)
	if la == lb {
		diff := 0
		first := -1
		for i := 0; i < la; i++ {
			if a[i] != b[i] {
				diff++
				if diff > 2 {
					return false
				}
				if first == -1 {
					first = i
				}
			}
		}
		if diff <= 1 {
			return true
		}
		// Two mismatches: allow an adjacent transposition.
		if diff == 2 && first+1 < la {
			return a[first] == b[first+1] && a[first+1] == b[first] &&
				a[first+2:] == b[first+2:]
		}
		return false
	}
	if la > lb {
		a, b = b, a
		la, lb = lb, la
	}
	if lb-la != 1 {
		return false
	}
	// b is a with one insertion.
	i, j := 0, 0
	skipped := false
	for i < la && j < lb {
		if a[i] == b[j] {
			i++
			j++
			continue
		}
		if skipped {
			return false
		}
		skipped = true
		j++
	}
	return true
}

// Close releases the index.
func (idx *MemoryIndex) Close() error { return nil }
