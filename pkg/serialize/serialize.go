// Package serialize implements the deterministic tuple serializer: the
// text an embedding encoder consumes. It is grounded on
// the Document field/metadata conventions (pkg/core/document.go)
// and the dotted-path resolution pkg/core/advanced_filter.go applies to
// nested metadata.
package serialize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/entityresolve/er/pkg/model"
)

// MissingPolicy controls what the serializer does with a field absent
// from a record.
type MissingPolicy string

const (
	MissingSkip MissingPolicy = "skip"
	MissingEmpty MissingPolicy = "empty"
)

// FieldSpec is one field the serializer emits, in order. Weight is
// metadata only (recorded, never applied to the string).
type FieldSpec struct {
	Field string
	Weight float64
}

// Serializer turns a Record into the deterministic text an embedding
// encoder will consume.
type Serializer struct {
	Fields []FieldSpec
	Separator string
	Missing MissingPolicy
}

// New builds a Serializer. If fields is empty, the field list is derived
// alphabetically from each record at serialize time.
func New(fields []FieldSpec, separator string, missing MissingPolicy) *Serializer {
	if separator == "" {
		separator = " | "
	}
	if missing == "" {
		missing = MissingSkip
	}
	return &Serializer{Fields: fields, Separator: separator, Missing: missing}
}

// Serialize produces the text for r. Same record → identical string,
// always (no clock reads, no map-order dependence).
func (s *Serializer) Serialize(r *model.Record) string {
	fields := s.Fields
	if len(fields) == 0 {
		fields = alphabeticalFields(r.Fields)
	}

	parts := make([]string, 0, len(fields))
	for _, fs := range fields {
		v, ok := model.FieldPath(r.Fields, fs.Field)
		if !ok || v == nil {
			if s.Missing == MissingSkip {
				continue
			}
			parts = append(parts, "")
			continue
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, s.Separator)
}

func alphabeticalFields(fields map[string]any) []FieldSpec {
	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)
	out := make([]FieldSpec, len(names))
	for i, n := range names {
		out[i] = FieldSpec{Field: n}
	}
	return out
}
