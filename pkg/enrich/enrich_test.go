package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/entityresolve/er/pkg/model"
)

// TestScenarioFTypeFilterBlocksNonsensicalMatch implements spec.md §8
// Scenario F.
func TestScenarioFTypeFilterBlocksNonsensicalMatch(t *testing.T) {
	types := map[string]string{
		"diag_001": "diagnosis",
		"med_044":  "medication",
		"cond_002": "condition",
	}
	matrix := map[string][]string{
		"diagnosis": {"condition", "syndrome"},
	}
	filter := NewTypeFilter(matrix, func(id string) (string, bool) {
		t, ok := types[id]
		return t, ok
	})

	pairs := []model.CandidatePair{
		model.NewPair("diag_001", "med_044", "bm25"),
		model.NewPair("diag_001", "cond_002", "bm25"),
	}
	allowed := filter.Filter(pairs)
	assert.Len(t, allowed, 1)
	assert.Equal(t, "cond_002", allowed[0].BID)
	assert.Equal(t, 1, filter.Rejected())
}

func TestTypeFilterAllowsUnknownTypes(t *testing.T) {
	filter := NewTypeFilter(nil, func(string) (string, bool) { return "", false })
	pairs := []model.CandidatePair{model.NewPair("a", "b", "bm25")}
	assert.Len(t, filter.Filter(pairs), 1)
}

func TestHierarchicalContextBlend(t *testing.T) {
	h := NewHierarchicalContext(0.7, 0.3)
	blended := h.Blend(0.6, "cardiology heart disease", "heart disease clinic")
	assert.Greater(t, blended, 0.0)
	assert.LessOrEqual(t, blended, 1.0)
}

func TestHierarchicalContextZeroWeightsReturnsBase(t *testing.T) {
	h := NewHierarchicalContext(0, 0)
	assert.Equal(t, 0.42, h.Blend(0.42, "a", "b"))
}

func TestAcronymExpanderExpandsKnownToken(t *testing.T) {
	exp := NewAcronymExpander(map[string][]string{
		"MI": {"Myocardial Infarction"},
	})
	out := exp.Expand("history of MI")
	assert.Contains(t, out, "Myocardial Infarction")
	assert.Contains(t, out, "history of MI")
}

func TestAcronymExpanderLeavesUnknownTextAlone(t *testing.T) {
	exp := NewAcronymExpander(map[string][]string{"MI": {"Myocardial Infarction"}})
	out := exp.Expand("routine checkup")
	assert.Equal(t, "routine checkup", out)
}

func TestProvenanceSweepRewritesAndDedupes(t *testing.T) {
	sweeper := NewProvenanceSweeper(map[string]string{
		"r1": "golden-1",
		"r2": "golden-1",
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rels := []Relationship{
		{FromID: "r1", ToID: "other", Kind: "shares_phone"},
		{FromID: "r2", ToID: "other", Kind: "shares_phone"},
	}
	out := sweeper.Sweep(rels, now)
	assert.Len(t, out, 1)
	assert.Equal(t, "golden-1", out[0].FromID)
	assert.Equal(t, "other", out[0].ToID)
	assert.True(t, out[0].OriginalFromID == "r1" || out[0].OriginalFromID == "r2")
	assert.Equal(t, now, out[0].RewrittenAt)
}

func TestProvenanceSweepLeavesUnmappedRelationshipsAlone(t *testing.T) {
	sweeper := NewProvenanceSweeper(map[string]string{})
	rels := []Relationship{{FromID: "a", ToID: "b", Kind: "k"}}
	out := sweeper.Sweep(rels, time.Now())
	assert.Equal(t, "a", out[0].FromID)
	assert.Empty(t, out[0].OriginalFromID)
}
