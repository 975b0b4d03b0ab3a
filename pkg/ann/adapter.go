package ann

import "context"

// NativeSearch is satisfied by a database driver that exposes its own
// vector index ( step 1, "if the database exposes native
// vector search, use it").
type NativeSearch interface {
	NearestNative(ctx context.Context, vec []float32, k int, minSimilarity float64) ([]Neighbor, bool, error)
}

// Adapter exposes one nearest entry point regardless of which backend
// actually answers it: native database vector search, else an LSH index,
// else brute-force cosine — decided once at construction, never by the
// caller.
type Adapter struct {
	native NativeSearch
	lsh *LSH
	flat *Flat
	hasLSH bool
}

// Option configures an Adapter at construction time.
type Option func(*Adapter)

// WithNative registers a database-native vector search capability,
// tried first.
func WithNative(n NativeSearch) Option {
	return func(a *Adapter) { a.native = n }
}

// WithLSH registers a pre-built LSH index, tried second.
func WithLSH(l *LSH) Option {
	return func(a *Adapter) { a.lsh = l; a.hasLSH = true }
}

// NewAdapter builds an Adapter whose brute-force Flat index is always
// populated (it is the guaranteed fallback); native/LSH are optional.
func NewAdapter(opts...Option) *Adapter {
	a := &Adapter{flat: NewFlat()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Add indexes vec under id in every backend that tracks its own vectors
// (LSH and Flat; native search is assumed to be populated by its own
// owner, e.g. the erstore engine).
func (a *Adapter) Add(id string, vec []float32) {
	if a.hasLSH {
		a.lsh.Add(id, vec)
	}
	a.flat.Add(id, vec)
}

// Remove removes id from every backend this Adapter tracks.
func (a *Adapter) Remove(id string) {
	if a.hasLSH {
		a.lsh.Remove(id)
	}
	a.flat.Remove(id)
}

// Nearest returns neighbours sorted by descending similarity, using the
// first capable backend in native → LSH → brute-force order.
func (a *Adapter) Nearest(ctx context.Context, vec []float32, k int, minSimilarity float64) ([]Neighbor, error) {
	if a.native != nil {
		if results, handled, err := a.native.NearestNative(ctx, vec, k, minSimilarity); err != nil {
			return nil, err
		} else if handled {
			return results, nil
		}
	}
	if a.hasLSH {
		return a.lsh.Nearest(vec, k, minSimilarity), nil
	}
	return a.flat.Nearest(vec, k, minSimilarity), nil
}

// BackendName reports which tier would answer Nearest, for statistics.
func (a *Adapter) BackendName() string {
	switch {
	case a.native != nil:
		return "native"
	case a.hasLSH:
		return "lsh"
	default:
		return "flat"
	}
}
