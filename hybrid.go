package kronroe

import (
	"context"
	"math"
	"sort"
)

// HybridFusionStrategy selects how the text and vector rankings are fused.
type HybridFusionStrategy int

const (
	// FusionRRF is weighted reciprocal rank fusion: each channel
	// contributes weight/(rank_constant + rank) per candidate. Rank-only
	// fusion is robust against the incommensurable score scales of BM25
	// and cosine similarity.
	FusionRRF HybridFusionStrategy = iota
)

// String returns the strategy name.
func (s HybridFusionStrategy) String() string {
	switch s {
	case FusionRRF:
		return "rrf"
	default:
		return "unknown"
	}
}

// TemporalAdjustment describes the optional recency bias applied after
// fusion. The zero value disables it.
type TemporalAdjustment struct {
	halfLifeDays float64
}

// NoTemporalAdjustment disables the recency bias.
func NoTemporalAdjustment() TemporalAdjustment { return TemporalAdjustment{} }

// HalfLife enables exponential recency decay with the given half-life in
// days. A hit whose valid_from is one half-life old has lost half its
// freshness.
func HalfLife(days float64) TemporalAdjustment {
	if days <= 0 {
		return TemporalAdjustment{}
	}
	return TemporalAdjustment{halfLifeDays: days}
}

func (t TemporalAdjustment) enabled() bool { return t.halfLifeDays > 0 }

// HybridParams configures a hybrid retrieval.
type HybridParams struct {
	// K is the final result size.
	K int
	// CandidateWindow is how many candidates each channel contributes
	// before fusion. Zero means the default of 50.
	CandidateWindow int
	// Fusion is the fusion strategy.
	Fusion HybridFusionStrategy
	// RankConstant is the RRF constant. Zero means the default of 60.
	RankConstant int
	// TextWeight and VectorWeight set the relative channel influence and
	// should sum to roughly 1.0. If both are zero, 0.5/0.5 is used.
	TextWeight   float64
	VectorWeight float64
	// Temporal is the optional recency adjustment.
	Temporal TemporalAdjustment
}

// DefaultHybridParams returns the baseline configuration: k=10, a
// 50-candidate window per channel, RRF with constant 60, equal weights,
// no recency bias.
func DefaultHybridParams() HybridParams {
	return HybridParams{
		K:               10,
		CandidateWindow: 50,
		Fusion:          FusionRRF,
		RankConstant:    60,
		TextWeight:      0.5,
		VectorWeight:    0.5,
	}
}

// HybridHit is one fused result. Score is always the exact sum of the
// three contribution fields, so callers can reason about why a fact
// ranked where it did.
type HybridHit struct {
	Fact               Fact
	Score              float64
	TextContribution   float64
	VectorContribution float64
	TemporalAdjustment float64
}

// The temporal adjustment is capped so recency biases ordering without
// overwhelming the retrieval signal.
const temporalAdjustmentCap = 0.1

// SearchHybrid fuses the text and vector channels with weighted
// reciprocal rank fusion and an optional recency adjustment.
//
// For a fixed corpus, embeddings, parameters, query, and clock reading the
// result list is fully deterministic; fact id byte order is the
// last-resort tie break. The recency adjustment measures age from the
// engine clock at call time, so with it enabled two calls at different
// instants can differ in TemporalAdjustment and Score. Requires the
// hybrid capability (WithHybridSearch).
func (g *TemporalGraph) SearchHybrid(query string, queryVec []float32, params HybridParams) ([]HybridHit, error) {
	if err := g.checkOpen(); err != nil {
		return nil, err
	}
	if !g.hybrid {
		return nil, ErrFeatureUnavailable
	}
	if params.K <= 0 {
		return nil, ErrInvalidK
	}
	if params.CandidateWindow <= 0 {
		params.CandidateWindow = 50
	}
	if params.RankConstant <= 0 {
		params.RankConstant = 60
	}
	if params.TextWeight == 0 && params.VectorWeight == 0 {
		params.TextWeight, params.VectorWeight = 0.5, 0.5
	}
	if d := g.vectors.Dim(); d != 0 && len(queryVec) != d {
		return nil, &ErrDimensionMismatch{Expected: d, Actual: len(queryVec)}
	}

	textRanked, err := g.searchRanked(query, params.CandidateWindow)
	if err != nil {
		return nil, err
	}
	vecRanked, err := g.searchByVectorRanked(queryVec, params.CandidateWindow)
	if err != nil {
		return nil, err
	}

	hits := make(map[FactId]*HybridHit)
	for rank, c := range textRanked {
		h := hits[c.ID]
		if h == nil {
			h = &HybridHit{}
			hits[c.ID] = h
		}
		h.TextContribution = params.TextWeight / float64(params.RankConstant+rank)
	}
	for rank, c := range vecRanked {
		h := hits[c.ID]
		if h == nil {
			h = &HybridHit{}
			hits[c.ID] = h
		}
		h.VectorContribution = params.VectorWeight / float64(params.RankConstant+rank)
	}

	now := g.now().UTC()
	out := make([]HybridHit, 0, len(hits))
	for id, h := range hits {
		f, err := g.FactByID(id)
		if err != nil {
			return nil, err
		}
		h.Fact = f
		if params.Temporal.enabled() {
			h.TemporalAdjustment = temporalAdjustment(now.Sub(f.ValidFrom).Hours()/24, params.Temporal.halfLifeDays)
		}
		h.Score = h.TextContribution + h.VectorContribution + h.TemporalAdjustment
		out = append(out, *h)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Fact.ID < out[j].Fact.ID
	})
	if len(out) > params.K {
		out = out[:params.K]
	}
	g.logger.LogSearch(context.Background(), "hybrid", params.K, len(out), nil)
	return out, nil
}

// temporalAdjustment maps a fact's age in days through exponential decay
// with the given half-life, centers it, and clamps it to
// [-temporalAdjustmentCap, +temporalAdjustmentCap].
func temporalAdjustment(ageDays, halfLifeDays float64) float64 {
	if ageDays < 0 {
		ageDays = 0
	}
	decay := math.Exp(-math.Ln2 * ageDays / halfLifeDays)
	adj := (decay - 0.5) * 2 * temporalAdjustmentCap
	return math.Max(-temporalAdjustmentCap, math.Min(temporalAdjustmentCap, adj))
}
