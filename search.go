package kronroe

import (
	"context"
	"time"

	"github.com/kronroe-db/kronroe/lexical"
	"github.com/kronroe-db/kronroe/model"
	"github.com/kronroe-db/kronroe/vector"
)

// Search ranks facts against a text query using BM25 over the synthetic
// document "<subject> <predicate> <value>" and returns up to limit facts,
// best first. Queries that yield no terms, and empty corpora, return an
// empty result set rather than an error.
func (g *TemporalGraph) Search(query string, limit int) ([]Fact, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	if g.text == nil {
		return nil, ErrFeatureUnavailable
	}
	if limit <= 0 {
		return nil, nil
	}

	ranked, err := g.searchRanked(query, limit)
	if err != nil {
		g.logger.LogSearch(context.Background(), "fulltext", limit, 0, err)
		return nil, err
	}
	out := make([]Fact, 0, len(ranked))
	for _, c := range ranked {
		f, err := g.FactByID(c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	g.logger.LogSearch(context.Background(), "fulltext", limit, len(out), nil)
	return out, nil
}

// searchRanked returns the lexical channel's candidates with stable
// 0-indexed ranks (slice position), ties already broken by fact id byte
// order. Used directly by hybrid fusion.
func (g *TemporalGraph) searchRanked(query string, limit int) ([]lexical.Candidate, error) {
	return g.text.Search(query, limit)
}

// VectorHit is a scored result of a vector search.
type VectorHit struct {
	Fact  Fact
	Score float64
}

// SearchByVector returns up to k facts whose embeddings are
// cosine-closest to query, most similar first, ties broken by fact id
// byte order.
//
// The allow-set gates results by the bi-temporal axes: with at == nil,
// only facts the store still believes (expired_at unset) are eligible;
// with at set, only facts valid in the world at *at. Fewer than k results
// are returned when the allow-set is smaller. Facts asserted without an
// embedding are invisible to this method.
func (g *TemporalGraph) SearchByVector(query []float32, k int, at *time.Time) ([]VectorHit, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	if g.vectors == nil {
		return nil, ErrFeatureUnavailable
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if d := g.vectors.Dim(); d != 0 && len(query) != d {
		return nil, &ErrDimensionMismatch{Expected: d, Actual: len(query)}
	}

	allowed, byID, err := g.allowSet(at)
	if err != nil {
		return nil, err
	}
	hits := g.vectors.Search(query, k, g.vectors.AllowSet(allowed))

	out := make([]VectorHit, 0, len(hits))
	for _, h := range hits {
		f, ok := byID[h.ID]
		if !ok {
			continue
		}
		out = append(out, VectorHit{Fact: f, Score: h.Score})
	}
	g.logger.LogSearch(context.Background(), "vector", k, len(out), nil)
	return out, nil
}

// searchByVectorRanked returns the vector channel's candidates with
// stable 0-indexed ranks for hybrid fusion, gated to active facts.
func (g *TemporalGraph) searchByVectorRanked(query []float32, k int) ([]vector.Hit, error) {
	allowed, _, err := g.allowSet(nil)
	if err != nil {
		return nil, err
	}
	return g.vectors.Search(query, k, g.vectors.AllowSet(allowed)), nil
}

// allowSet scans the facts table once and returns the temporally eligible
// ids together with a lookup map for hydrating results.
func (g *TemporalGraph) allowSet(at *time.Time) ([]model.FactId, map[model.FactId]Fact, error) {
	keep := func(f *model.Fact) bool { return f.IsActive() }
	if at != nil {
		instant := *at
		keep = func(f *model.Fact) bool { return f.ValidAt(instant) }
	}
	facts, err := g.scanFacts("", keep)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]model.FactId, len(facts))
	byID := make(map[model.FactId]Fact, len(facts))
	for i, f := range facts {
		ids[i] = f.ID
		byID[f.ID] = f
	}
	return ids, byID, nil
}
