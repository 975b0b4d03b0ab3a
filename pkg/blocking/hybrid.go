package blocking

import (
	"context"
	"fmt"
	"time"

	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/simil"
)

// HybridStrategy generates BM25 candidates and verifies each against a
// Levenshtein similarity floor over one or more fields (
// hybrid variant: "union of BM25 + edit-distance verification within the
// BM25 candidate set").
type HybridStrategy struct {
	*Base
	bm25 *BM25Strategy
	store recordFetcher
	verifyFields []string
	verifyMinScore float64
}

// recordFetcher is the narrow slice of erstore.DocumentStore hybrid
// verification needs.
type recordFetcher interface {
	Get(ctx context.Context, collection, id string) (*model.Record, bool, error)
}

// NewHybrid wraps an existing BM25Strategy with edit-distance
// verification over verifyFields; a pair survives only if the mean
// Levenshtein similarity across those fields is >= verifyMinScore.
func NewHybrid(bm25 *BM25Strategy, store recordFetcher, verifyFields []string, verifyMinScore float64) *HybridStrategy {
	return &HybridStrategy{
		Base: NewBase("hybrid", bm25.minBlockSize, bm25.maxBlockSize),
		bm25: bm25,
		store: store,
		verifyFields: verifyFields,
		verifyMinScore: verifyMinScore,
	}
}

func (s *HybridStrategy) GenerateCandidates(ctx context.Context) ([]model.CandidatePair, error) {
	start := time.Now()

	candidates, err := s.bm25.GenerateCandidates(ctx)
	if err != nil {
		return nil, err
	}

	collection := s.bm25.collection
	var out []model.CandidatePair
	for _, c := range candidates {
		a, aok, err := s.store.Get(ctx, collection, c.AID)
		if err != nil || !aok {
			continue
		}
		b, bok, err := s.store.Get(ctx, collection, c.BID)
		if err != nil || !bok {
			continue
		}
		if !s.verifies(a, b) {
			continue
		}
		c.Strategy = s.Name()
		if accepted, ok := s.EmitPair(c); ok {
			out = append(out, accepted)
		}
	}
	s.Base.stats.BlocksProcessed = s.bm25.Statistics().BlocksProcessed
	s.AddElapsed(time.Since(start))
	return out, nil
}

func (s *HybridStrategy) verifies(a, b *model.Record) bool {
	if len(s.verifyFields) == 0 {
		return true
	}
	var sum float64
	n := 0
	for _, f := range s.verifyFields {
		av, aok := a.Field(f)
		bv, bok := b.Field(f)
		if !aok || !bok {
			continue
		}
		sum += simil.Levenshtein(toStr(av), toStr(bv))
		n++
	}
	if n == 0 {
		return false
	}
	return sum/float64(n) >= s.verifyMinScore
}

func toStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
