// Package enrich implements the four orthogonal enrichment processors of
// : type-compatibility pre-filtering, hierarchical-context
// scoring augmentation, acronym expansion for blocking, and post-
// clustering relationship-provenance sweeping. Each file is independent,
// mirroring how the teacher keeps pkg/geo and pkg/graph free of any
// shared state despite both building on pkg/core.
package enrich

import "github.com/entityresolve/er/pkg/model"

// TypeFilter rejects candidate pairs whose record types are not mutually
// compatible, per a caller-supplied compatibility matrix (,
// scenario F). Applied to blocking's candidate pairs before scoring.
type TypeFilter struct {
	compatible map[string]map[string]struct{}
	typeOf func(id string) (string, bool)
	rejected int
}

// NewTypeFilter builds a TypeFilter from a type → compatible-types
// matrix. typeOf resolves a record id to its type (e.g. by looking up
// a "type" field); pairs where either side's type is unknown pass
// through unfiltered (type-filtering is advisory, not validating).
func NewTypeFilter(matrix map[string][]string, typeOf func(id string) (string, bool)) *TypeFilter {
	compatible := make(map[string]map[string]struct{}, len(matrix))
	for t, compats := range matrix {
		set := make(map[string]struct{}, len(compats))
		for _, c := range compats {
			set[c] = struct{}{}
		}
		compatible[t] = set
	}
	return &TypeFilter{compatible: compatible, typeOf: typeOf}
}

// Allow reports whether the pair's two types are mutually compatible. A
// type is always compatible with itself.
func (f *TypeFilter) Allow(pair model.CandidatePair) bool {
	aType, aok := f.typeOf(pair.AID)
	bType, bok := f.typeOf(pair.BID)
	if !aok || !bok {
		return true
	}
	if aType == bType {
		return true
	}
	if set, ok := f.compatible[aType]; ok {
		if _, compat := set[bType]; compat {
			return true
		}
	}
	if set, ok := f.compatible[bType]; ok {
		if _, compat := set[aType]; compat {
			return true
		}
	}
	f.rejected++
	return false
}

// Filter applies Allow to every pair, returning the survivors.
func (f *TypeFilter) Filter(pairs []model.CandidatePair) []model.CandidatePair {
	out := make([]model.CandidatePair, 0, len(pairs))
	for _, p := range pairs {
		if f.Allow(p) {
			out = append(out, p)
		}
	}
	return out
}

// Rejected returns the count of pairs rejected so far (
// "type_filter_rejected" counter).
func (f *TypeFilter) Rejected() int { return f.rejected }
