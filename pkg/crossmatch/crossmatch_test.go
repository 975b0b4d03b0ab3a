package crossmatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/simil"
	"github.com/entityresolve/er/pkg/valid"
)

func newEngine(t *testing.T) *erstore.SQLiteEngine {
	t.Helper()
	e, err := erstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestCrossCollectionMatchingEndToEnd(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "patients"))
	require.NoError(t, e.EnsureCollection(ctx, "members"))

	require.NoError(t, e.Upsert(ctx, &model.Record{ID: "p1", Collection: "patients", Fields: map[string]any{
		"full_name": "John Smith", "zip": "94107",
	}}))
	require.NoError(t, e.Upsert(ctx, &model.Record{ID: "p2", Collection: "patients", Fields: map[string]any{
		"full_name": "Jane Doe", "zip": "10001",
	}}))
	require.NoError(t, e.Upsert(ctx, &model.Record{ID: "m1", Collection: "members", Fields: map[string]any{
		"member_name": "Jon Smith", "postal": "94107",
	}}))
	require.NoError(t, e.Upsert(ctx, &model.Record{ID: "m2", Collection: "members", Fields: map[string]any{
		"member_name": "Jane Doe", "postal": "99999",
	}}))

	mapping := []FieldMapping{
		{SourceField: "zip", TargetField: "postal"},
	}
	kernel := simil.New(simil.AlgoJaroWinkler, []simil.FieldWeight{{Field: "full_name", Weight: 1}}, valid.NullSkip, valid.NormalizeOptions{Lower: true, Strip: true})

	svc := New(e, e, "patients", "members", mapping, kernel, 0.75, "jaro_winkler")

	pairs, stats, err := svc.GenerateCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, Pair{SourceID: "p1", TargetID: "m1"}, pairs[0])
	assert.Equal(t, 1, stats.CandidatePairs)

	// Score compares patients.full_name against members.member_name, not
	// the mapping field, since only "zip" was in the mapping used for
	// blocking; exercise remapTarget directly via a name-aware mapping.
	nameMapping := []FieldMapping{{SourceField: "full_name", TargetField: "member_name"}}
	svc2 := New(e, e, "patients", "members", nameMapping, kernel, 0.75, "jaro_winkler")
	matches, err := svc2.Score(ctx, pairs)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Greater(t, matches[0].Confidence, 0.75)

	n, err := svc2.CreateEdges(ctx, matches, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	edge, ok, err := e.GetEdge(ctx, "patients/p1", "members/m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, edge.IsMatch)
}

func TestOversizeCrossBlockDropped(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "a"))
	require.NoError(t, e.EnsureCollection(ctx, "b"))
	for i := 0; i < 60; i++ {
		require.NoError(t, e.Upsert(ctx, &model.Record{ID: idx("a", i), Collection: "a", Fields: map[string]any{"k": "same"}}))
	}
	for i := 0; i < 60; i++ {
		require.NoError(t, e.Upsert(ctx, &model.Record{ID: idx("b", i), Collection: "b", Fields: map[string]any{"k": "same"}}))
	}
	mapping := []FieldMapping{{SourceField: "k", TargetField: "k"}}
	kernel := simil.New(simil.AlgoJaroWinkler, nil, valid.NullSkip, valid.NormalizeOptions{})
	svc := New(e, e, "a", "b", mapping, kernel, 0.5, "jaro_winkler", WithBlockSizeBounds(2, 100))

	pairs, stats, err := svc.GenerateCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)
	assert.Equal(t, 1, stats.OversizeBlocksDropped)
}

func idx(prefix string, i int) string {
	return prefix + "-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}
