package blocking

import (
	"context"
	"time"

	"github.com/entityresolve/er/pkg/ann"
	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
)

// VectorStrategy finds, for each embedded record, neighbours with cosine
// similarity >= minSimilarity ( vector/ANN variant),
// delegating the actual nearest-neighbor search to pkg/ann (C6).
type VectorStrategy struct {
	*Base
	store erstore.DocumentStore
	collection string
	adapter *ann.Adapter
	minSimilarity float64
	topK int
}

// NewVector builds a vector/ANN blocking strategy over a pre-configured
// adapter (the caller decides native/LSH/flat wiring via ann.Option).
func NewVector(store erstore.DocumentStore, collection string, adapter *ann.Adapter, minSimilarity float64, topK, minBlockSize, maxBlockSize int) *VectorStrategy {
	if topK <= 0 {
		topK = 10
	}
	return &VectorStrategy{
		Base: NewBase("vector", minBlockSize, maxBlockSize),
		store: store,
		collection: collection,
		adapter: adapter,
		minSimilarity: minSimilarity,
		topK: topK,
	}
}

func (s *VectorStrategy) GenerateCandidates(ctx context.Context) ([]model.CandidatePair, error) {
	start := time.Now()

	type embedded struct {
		id string
		vec []float32
	}
	var records []embedded

	err := s.store.Scan(ctx, s.collection, func(r *model.Record) bool {
			if ctx.Err() != nil {
				return false
			}
			if r.Embedding != nil {
				s.adapter.Add(r.ID, r.Embedding)
				records = append(records, embedded{id: r.ID, vec: r.Embedding})
			}
			return true
		})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []model.CandidatePair
	for _, rec := range records {
		neighbors, err := s.adapter.Nearest(ctx, rec.vec, s.topK+1, s.minSimilarity)
		if err != nil {
			continue
		}
		for _, nb := range neighbors {
			if nb.ID == rec.id {
				continue
			}
			pair := model.NewPair(rec.id, nb.ID, s.Name())
			pair.VectorScore = nb.Score
			if accepted, ok := s.EmitPair(pair); ok {
				out = append(out, accepted)
			}
		}
	}
	s.Base.stats.BlocksProcessed = len(records)
	s.AddElapsed(time.Since(start))
	return out, nil
}
