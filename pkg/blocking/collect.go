package blocking

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
)

// ComputedFieldFunc transforms a raw field value into the value actually
// used for grouping, e.g. left(postal_code, 5) or regex_replace(phone,
// "[^0-9]", ""). Registered per field, mirroring how the
// prior pkg/geo registers distance functions by name.
type ComputedFieldFunc func(v any) string

// Left returns a ComputedFieldFunc keeping only the first n characters.
func Left(n int) ComputedFieldFunc {
	return func(v any) string {
		s := fmt.Sprint(v)
		if len(s) <= n {
			return s
		}
		return s[:n]
	}
}

// RegexReplace returns a ComputedFieldFunc replacing every match of
// pattern with repl.
func RegexReplace(pattern, repl string) ComputedFieldFunc {
	re := regexp.MustCompile(pattern)
	return func(v any) string {
		return re.ReplaceAllString(fmt.Sprint(v), repl)
	}
}

// FieldSpec names one field to include in a composite blocking key,
// optionally transformed by a ComputedFieldFunc.
type FieldSpec struct {
	Field string
	Computed ComputedFieldFunc
}

// CollectStrategy groups records by an exact composite key over one or
// more fields ( "exact composite key (COLLECT)" variant),
// grounded on pkg/core/aggregations.go's GroupBy handling for composite
// keys.
type CollectStrategy struct {
	*Base
	store erstore.DocumentStore
	collection string
	fields []FieldSpec
}

// NewCollect builds an exact composite-key blocking strategy.
func NewCollect(store erstore.DocumentStore, collection string, fields []FieldSpec, minBlockSize, maxBlockSize int) *CollectStrategy {
	return &CollectStrategy{
		Base: NewBase("collect", minBlockSize, maxBlockSize),
		store: store,
		collection: collection,
		fields: fields,
	}
}

func (c *CollectStrategy) compositeKey(r *model.Record) (string, map[string]any, bool) {
	return compositeKey(r, c.fields)
}

// compositeKey builds a deterministic grouping key from a set of
// FieldSpecs, applying each field's ComputedFieldFunc if present. Shared
// by CollectStrategy and GeographicStrategy, both of which group records
// by an exact composite key before any further narrowing.
func compositeKey(r *model.Record, fields []FieldSpec) (string, map[string]any, bool) {
	key := ""
	keys := make(map[string]any, len(fields))
	for i, f := range fields {
		v, ok := r.Field(f.Field)
		if !ok || v == nil {
			return "", nil, false
		}
		var s string
		if f.Computed != nil {
			s = f.Computed(v)
		} else {
			s = fmt.Sprint(v)
		}
		if s == "" {
			return "", nil, false
		}
		if i > 0 {
			key += "\x1f"
		}
		key += s
		keys[f.Field] = s
	}
	return key, keys, true
}

func (c *CollectStrategy) GenerateCandidates(ctx context.Context) ([]model.CandidatePair, error) {
	start := time.Now()
	type block struct {
		ids []string
		keys map[string]any
	}
	groups := make(map[string]*block)

	err := c.store.Scan(ctx, c.collection, func(r *model.Record) bool {
			if ctx.Err() != nil {
				return false
			}
			key, keys, ok := c.compositeKey(r)
			if !ok {
				return true
			}
			g, exists := groups[key]
			if !exists {
				g = &block{keys: keys}
				groups[key] = g
			}
			g.ids = append(g.ids, r.ID)
			return true
		})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []model.CandidatePair
	for _, k := range keys {
		g := groups[k]
		sort.Strings(g.ids)
		out = append(out, c.EmitBlock(g.ids, g.keys)...)
	}
	c.AddElapsed(time.Since(start))
	return out, nil
}
