package erstore

import (
	"context"

	"github.com/entityresolve/er/pkg/ann"
)

// VectorStore adapts pkg/ann.Adapter to the VectorIndex contract; the
// SQLite reference engine has no native vector search of its own, so its
// VectorIndex is always backed by the LSH/flat tiers of pkg/ann — a real
// database contract implementation could instead
// report a native capability and skip straight to step 1.
type VectorStore struct {
	adapter *ann.Adapter
}

// NewVectorStore wraps adapter as a VectorIndex.
func NewVectorStore(adapter *ann.Adapter) *VectorStore {
	return &VectorStore{adapter: adapter}
}

func (v *VectorStore) Add(id string, vec []float32) {
	v.adapter.Add(id, vec)
}

func (v *VectorStore) Remove(id string) {
	v.adapter.Remove(id)
}

// Nearest always reports handled=true: this store is itself the terminal
// backend the adapter it wraps would otherwise fall back to.
func (v *VectorStore) Nearest(ctx context.Context, vec []float32, k int, minSimilarity float64) ([]ann.Neighbor, bool, error) {
	res, err := v.adapter.Nearest(ctx, vec, k, minSimilarity)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}
