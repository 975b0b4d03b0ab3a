package enrich

import "github.com/entityresolve/er/pkg/simil"

// HierarchicalContext blends a base similarity score with token overlap
// between a candidate's parent-context string and the other side's
// description, for hierarchical data where the immediate field values
// alone under-determine a match.
type HierarchicalContext struct {
	BaseWeight float64
	ContextWeight float64
}

// NewHierarchicalContext builds a HierarchicalContext with the given
// base/context weight knobs. Weights need not sum to 1;
// Blend normalizes by their sum.
func NewHierarchicalContext(baseWeight, contextWeight float64) *HierarchicalContext {
	return &HierarchicalContext{BaseWeight: baseWeight, ContextWeight: contextWeight}
}

// Blend combines baseScore (the field-similarity confidence) with the
// Jaccard token overlap between aContext and bDescription, weighted by
// BaseWeight/ContextWeight.
func (h *HierarchicalContext) Blend(baseScore float64, aContext, bDescription string) float64 {
	total := h.BaseWeight + h.ContextWeight
	if total == 0 {
		return baseScore
	}
	contextScore := simil.Jaccard(aContext, bDescription)
	return (h.BaseWeight*baseScore + h.ContextWeight*contextScore) / total
}
