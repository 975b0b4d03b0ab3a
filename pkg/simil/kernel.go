// Package simil is the field similarity kernel: pairwise
// weighted multi-field similarity over a configurable string metric, with
// deterministic, I/O-free null handling. It is grounded on the teacher's
// own TextSimilarity interface (text_similarity.go) generalized from a
// single-field calculator to the weighted multi-field kernel the design
// requires.
package simil

import (
	"fmt"

	"github.com/entityresolve/er/pkg/valid"
)

// Algorithm identifies one of the supported string metrics.
type Algorithm string

const (
	AlgoJaroWinkler Algorithm = "jaro_winkler"
	AlgoLevenshtein Algorithm = "levenshtein"
	AlgoJaccard Algorithm = "jaccard"
)

// compareFunc returns a similarity in [0, 1] for two already-normalized
// strings.
func compareFunc(algo Algorithm) func(a, b string) float64 {
	switch algo {
	case AlgoLevenshtein:
		return Levenshtein
	case AlgoJaccard:
		return Jaccard
	default:
		return JaroWinkler
	}
}

// FieldWeight pairs a field path with its weight in the weighted mean.
type FieldWeight struct {
	Field string
	Weight float64
}

// Kernel is a configured, reusable field similarity calculator: same
// weights/algorithm/null-mode/normalization applied to every Score call,
// deterministic and free of I/O.
type Kernel struct {
	Algorithm Algorithm
	Fields []FieldWeight
	NullMode valid.NullMode
	Normalize valid.NormalizeOptions
	compare func(a, b string) float64
}

// New builds a Kernel. Score compares only the listed fields: if fields
// is empty, no field is compared and Score returns 0 with an empty
// breakdown. Weights are normalized to
// sum to 1 unless the caller already supplied normalized weights — the
// normalization happens per-call over the fields actually compared, per
//.
func New(algo Algorithm, fields []FieldWeight, nullMode valid.NullMode, norm valid.NormalizeOptions) *Kernel {
	if nullMode == "" {
		nullMode = valid.NullSkip
	}
	return &Kernel{
		Algorithm: algo,
		Fields: fields,
		NullMode: nullMode,
		Normalize: norm,
		compare: compareFunc(algo),
	}
}

// Score computes the weighted multi-field similarity of two field maps,
// in [0, 1], per the invariant in :
// confidence = Σ wᵢ·sᵢ / Σ wᵢ over fields with both sides non-null (or
// coerced to non-null per NullMode), returning both the aggregate and the
// per-field breakdown.
func (k *Kernel) Score(a, b map[string]any) (float64, map[string]float64) {
	fieldScores := make(map[string]float64, len(k.Fields))
	var numerator, denominator float64

	for _, fw := range k.Fields {
		av, aok := lookupPath(a, fw.Field)
		bv, bok := lookupPath(b, fw.Field)

		as, aPresent := k.resolve(av, aok)
		bs, bPresent := k.resolve(bv, bok)

		if !aPresent || !bPresent {
			if k.NullMode == valid.NullSkip {
				continue
			}
			if k.NullMode == valid.NullZero {
				denominator += fw.Weight
				fieldScores[fw.Field] = 0
				continue
			}
			// NullDefault: missing side already became "" in resolve.
		}

		score := k.compare(as, bs)
		fieldScores[fw.Field] = score
		numerator += fw.Weight * score
		denominator += fw.Weight
	}

	if denominator == 0 {
		return 0, fieldScores
	}
	return numerator / denominator, fieldScores
}

// resolve converts a raw field value to its normalized string form, per
// the Kernel's NullMode. present is false only under NullSkip/NullZero
// when the value was absent.
func (k *Kernel) resolve(v any, ok bool) (s string, present bool) {
	if !ok || v == nil {
		if k.NullMode == valid.NullDefault {
			return "", true
		}
		return "", false
	}
	str, isStr := v.(string)
	if !isStr {
		str = toString(v)
	}
	return valid.Normalize(str, k.Normalize), true
}

func lookupPath(fields map[string]any, path string) (any, bool) {
	// delegate to model.FieldPath semantics without importing model, to
	// keep simil a leaf package usable by model-free callers/tests.
	cur := fields
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			seg := path[start:i]
			v, ok := cur[seg]
			if !ok {
				return nil, false
			}
			if i == len(path) {
				return v, true
			}
			next, ok := v.(map[string]any)
			if !ok {
				return nil, false
			}
			cur = next
			start = i + 1
		}
	}
	return nil, false
}

func toString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
