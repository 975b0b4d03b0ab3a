package blocking

import (
	"context"
	"time"

	"github.com/entityresolve/er/pkg/ann"
	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
)

// LSHStrategy emits every pair of records whose embeddings collide in at
// least one random-hyperplane hash table ( LSH variant), a
// fast pre-filter ahead of exact ANN. Grounded on the teacher's
// pkg/index/lsh.go structure, generalized from Euclidean to cosine
// hashing and retargeted to the candidate-pair contract (see DESIGN.md).
type LSHStrategy struct {
	*Base
	store erstore.DocumentStore
	collection string
	lsh *ann.LSH
}

// NewLSH builds an LSH blocking strategy over a pre-configured index
// (construct with ann.NewLSH(cfg) so the caller controls num tables,
// hyperplanes, and the seed pins to stdlib math/rand).
func NewLSH(store erstore.DocumentStore, collection string, lsh *ann.LSH, minBlockSize, maxBlockSize int) *LSHStrategy {
	return &LSHStrategy{
		Base: NewBase("lsh", minBlockSize, maxBlockSize),
		store: store,
		collection: collection,
		lsh: lsh,
	}
}

func (s *LSHStrategy) GenerateCandidates(ctx context.Context) ([]model.CandidatePair, error) {
	start := time.Now()

	var ids []string
	err := s.store.Scan(ctx, s.collection, func(r *model.Record) bool {
			if ctx.Err() != nil {
				return false
			}
			if r.Embedding != nil {
				s.lsh.Add(r.ID, r.Embedding)
				ids = append(ids, r.ID)
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
	for _, id := range ids {
		vec, ok := s.vectorFor(ctx, id, ids)
		if !ok {
			continue
		}
		for _, candidateID := range s.lsh.Candidates(vec) {
			if candidateID == id {
				continue
			}
			pair := model.NewPair(id, candidateID, s.Name())
			if accepted, ok := s.EmitPair(pair); ok {
				out = append(out, accepted)
			}
		}
	}
	s.Base.stats.BlocksProcessed = len(ids)
	s.AddElapsed(time.Since(start))
	return out, nil
}

// vectorFor re-fetches one record's embedding; LSH itself does not expose
// a by-id vector lookup since only the blocking strategy needs it.
func (s *LSHStrategy) vectorFor(ctx context.Context, id string, _ []string) ([]float32, bool) {
	r, ok, err := s.store.Get(ctx, s.collection, id)
	if err != nil || !ok || r.Embedding == nil {
		return nil, false
	}
	return r.Embedding, true
}
