package ann

import (
	"math/rand"
	"sync"
)

// LSHConfig configures the random-hyperplane LSH index (
// LSH blocking strategy): NumTables independent hash tables, each made of
// NumHyperplanes random projections, deterministic under Seed so two runs
// with the same seed produce the same candidate pairs. The RNG is the
// stdlib math/rand generator seeded via rand.NewSource(seed) — see
// DESIGN.md's "LSH seed portability" entry for why this, and not a
// non-stdlib PCG-64 implementation, is the pinned algorithm.
type LSHConfig struct {
	NumTables int
	NumHyperplanes int
	Dimension int
	Seed int64
}

// LSH implements random-projection hyperplane hashing for fast
// approximate cosine-similarity candidate generation. A vector's hash in
// one table is the sign bit of its dot product with each of that table's
// hyperplanes; two vectors that land in the same bucket in any table are
// candidates.
type LSH struct {
	mu sync.RWMutex
	numTables int
	hyperplanes [][][]float32 // [table][hyperplane][dim]
	tables []map[uint64][]string
	vectors map[string][]float32
}

// NewLSH builds an LSH index with deterministic hyperplanes from cfg.Seed.
func NewLSH(cfg LSHConfig) *LSH {
	if cfg.NumTables <= 0 {
		cfg.NumTables = 8
	}
	if cfg.NumHyperplanes <= 0 {
		cfg.NumHyperplanes = 12
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	hyperplanes := make([][][]float32, cfg.NumTables)
	tables := make([]map[uint64][]string, cfg.NumTables)
	for t := 0; t < cfg.NumTables; t++ {
		planes := make([][]float32, cfg.NumHyperplanes)
		for h := 0; h < cfg.NumHyperplanes; h++ {
			plane := make([]float32, cfg.Dimension)
			for d := 0; d < cfg.Dimension; d++ {
				plane[d] = float32(rng.NormFloat64())
			}
			planes[h] = plane
		}
		hyperplanes[t] = planes
		tables[t] = make(map[uint64][]string)
	}

	return &LSH{
		numTables: cfg.NumTables,
		hyperplanes: hyperplanes,
		tables: tables,
		vectors: make(map[string][]float32),
	}
}

func (l *LSH) hash(table int, vec []float32) uint64 {
	var h uint64
	for i, plane := range l.hyperplanes[table] {
		if dot(plane, vec) >= 0 {
			h |= 1 << uint(i)
		}
	}
	return h
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func (l *LSH) Add(id string, vec []float32) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := make([]float32, len(vec))
	copy(cp, vec)
	l.vectors[id] = cp

	for t := 0; t < l.numTables; t++ {
		h := l.hash(t, vec)
		l.tables[t][h] = append(l.tables[t][h], id)
	}
}

func (l *LSH) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	vec, ok := l.vectors[id]
	if !ok {
		return
	}
	for t := 0; t < l.numTables; t++ {
		h := l.hash(t, vec)
		bucket := l.tables[t][h]
		for i, bid := range bucket {
			if bid == id {
				l.tables[t][h] = append(bucket[:i], bucket[i+1:]...)
				break
			}
		}
	}
	delete(l.vectors, id)
}

func (l *LSH) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.vectors)
}

// Candidates returns every id that collides with vec in at least one
// table, deduplicated, without ranking — the raw material the LSH
// blocking strategy turns into candidate pairs.
func (l *LSH) Candidates(vec []float32) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for t := 0; t < l.numTables; t++ {
		h := l.hash(t, vec)
		for _, id := range l.tables[t][h] {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}

// Nearest ranks Candidates by exact cosine similarity, the "probe the LSH
// hash tables and rank candidates by exact cosine similarity" fallback
// tier of the ANN adapter ( step 2).
func (l *LSH) Nearest(vec []float32, k int, minSimilarity float64) []Neighbor {
	ids := l.Candidates(vec)

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Neighbor, 0, len(ids))
	for _, id := range ids {
		score := CosineSimilarity(vec, l.vectors[id])
		if score >= minSimilarity {
			out = append(out, Neighbor{ID: id, Score: score})
		}
	}
	sortNeighborsDesc(out)
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
