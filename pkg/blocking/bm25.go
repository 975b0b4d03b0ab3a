package blocking

import (
	"context"
	"fmt"
	"time"

	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/serialize"
)

// BM25Strategy issues a full-text search per record and keeps the top-K
// hits whose BM25 score clears a threshold, optionally constrained by an
// equality field (e.g. "state") — BM25 fuzzy variant,
// grounded on Aman-CERP-amanmcp/internal/store/bm25.go's query shape.
type BM25Strategy struct {
	*Base
	store erstore.DocumentStore
	collection string
	serializer *serialize.Serializer
	index erstore.FullTextIndex
	threshold float64
	limitPerEntity int
	constraintField string
}

// NewBM25 builds a BM25 blocking strategy. constraintField may be empty
// to disable the extra equality constraint.
func NewBM25(store erstore.DocumentStore, collection string, serializer *serialize.Serializer, index erstore.FullTextIndex,
	threshold float64, limitPerEntity int, constraintField string, minBlockSize, maxBlockSize int) *BM25Strategy {
	if limitPerEntity <= 0 {
		limitPerEntity = 10
	}
	return &BM25Strategy{
		Base: NewBase("bm25", minBlockSize, maxBlockSize),
		store: store,
		collection: collection,
		serializer: serializer,
		index: index,
		threshold: threshold,
		limitPerEntity: limitPerEntity,
		constraintField: constraintField,
	}
}

func (s *BM25Strategy) GenerateCandidates(ctx context.Context) ([]model.CandidatePair, error) {
	start := time.Now()

	records := make(map[string]*model.Record)
	var order []string
	err := s.store.Scan(ctx, s.collection, func(r *model.Record) bool {
			if ctx.Err() != nil {
				return false
			}
			text := s.serializer.Serialize(r)
			if text == "" {
				return true
			}
			if err := s.index.Index(r.ID, text); err != nil {
				return true
			}
			records[r.ID] = r
			order = append(order, r.ID)
			return true
		})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []model.CandidatePair
	for _, id := range order {
		r := records[id]
		text := s.serializer.Serialize(r)
		hits, err := s.index.Search(text, s.limitPerEntity+1)
		if err != nil {
			continue
		}
		for _, h := range hits {
			if h.ID == id || h.Score < s.threshold {
				continue
			}
			other, ok := records[h.ID]
			if !ok {
				continue
			}
			if s.constraintField != "" && !fieldsEqual(r, other, s.constraintField) {
				continue
			}
			pair := model.NewPair(id, h.ID, s.Name())
			pair.BM25Score = h.Score
			if accepted, ok := s.EmitPair(pair); ok {
				out = append(out, accepted)
			}
		}
	}
	s.Base.stats.BlocksProcessed = len(order)
	s.AddElapsed(time.Since(start))
	return out, nil
}

func fieldsEqual(a, b *model.Record, field string) bool {
	av, aok := a.Field(field)
	bv, bok := b.Field(field)
	if !aok || !bok {
		return false
	}
	return fmt.Sprint(av) == fmt.Sprint(bv)
}
