package blocking

import (
	"context"
	"time"

	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/geo"
	"github.com/entityresolve/er/pkg/model"
)

// GeographicStrategy groups records by a composite key over (state |
// city | zip prefix) and, when RadiusKm > 0, narrows each block to the
// records without coordinates plus the records whose coordinates lie
// within RadiusKm of at least one other record of the block (
// geographic variant), delegating the radius check to pkg/geo's
// grid-bucketed index.
type GeographicStrategy struct {
	*Base
	store erstore.DocumentStore
	collection string
	keyFields []FieldSpec
	latField string
	lonField string
	radiusKm float64 // 0 disables the radius check
}

// NewGeographic builds a geographic blocking strategy. latField/lonField
// may be empty to disable the radius check and rely on the composite key
// alone.
func NewGeographic(store erstore.DocumentStore, collection string, keyFields []FieldSpec, latField, lonField string, radiusKm float64, minBlockSize, maxBlockSize int) *GeographicStrategy {
	return &GeographicStrategy{
		Base: NewBase("geographic", minBlockSize, maxBlockSize),
		store: store,
		collection: collection,
		keyFields: keyFields,
		latField: latField,
		lonField: lonField,
		radiusKm: radiusKm,
	}
}

func (s *GeographicStrategy) coordinates(r *model.Record) (geo.Point, bool) {
	if s.latField == "" || s.lonField == "" {
		return geo.Point{}, false
	}
	latV, ok := r.Field(s.latField)
	if !ok {
		return geo.Point{}, false
	}
	lonV, ok := r.Field(s.lonField)
	if !ok {
		return geo.Point{}, false
	}
	lat, ok := toFloat(latV)
	if !ok {
		return geo.Point{}, false
	}
	lon, ok := toFloat(lonV)
	if !ok {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lon: lon}, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func (s *GeographicStrategy) GenerateCandidates(ctx context.Context) ([]model.CandidatePair, error) {
	start := time.Now()

	type block struct {
		ids []string
		keys map[string]any
	}
	groups := make(map[string]*block)
	points := make(map[string]geo.Point)

	err := s.store.Scan(ctx, s.collection, func(r *model.Record) bool {
			if ctx.Err() != nil {
				return false
			}
			key, keys, ok := compositeKey(r, s.keyFields)
			if !ok {
				return true
			}
			g, exists := groups[key]
			if !exists {
				g = &block{keys: keys}
				groups[key] = g
			}
			g.ids = append(g.ids, r.ID)
			if p, ok := s.coordinates(r); ok {
				points[r.ID] = p
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
	for _, g := range groups {
		var ids []string
		if s.radiusKm > 0 {
			ids = filterByRadius(g.ids, points, s.radiusKm)
		} else {
			ids = g.ids
		}
		out = append(out, s.EmitBlock(ids, g.keys)...)
	}
	s.AddElapsed(time.Since(start))
	return out, nil
}

// filterByRadius keeps ids that have no point, and ids whose point lies
// within radiusKm of at least one other point in the same set, using a
// throwaway geo.Index scoped to this block.
func filterByRadius(ids []string, points map[string]geo.Point, radiusKm float64) []string {
	ix := geo.NewIndex()
	keep := make(map[string]bool)
	for _, id := range ids {
		if p, ok := points[id]; ok {
			ix.Add(id, p)
		} else {
			keep[id] = true
		}
	}
	for _, pair := range ix.CandidatePairs(radiusKm) {
		keep[pair[0]] = true
		keep[pair[1]] = true
	}
	var out []string
	for _, id := range ids {
		if keep[id] {
			out = append(out, id)
		}
	}
	return out
}
