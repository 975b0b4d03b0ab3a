package erstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityresolve/er/pkg/model"
)

func newTestEngine(t *testing.T) *SQLiteEngine {
	t.Helper()
	e, err := Open(context.Background(), "file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestDocumentUpsertAndGet(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	r := &model.Record{ID: "p1", Collection: "people", Fields: map[string]any{"name": "John Smith"}}
	require.NoError(t, e.Upsert(ctx, r))

	got, ok, err := e.Get(ctx, "people", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "John Smith", got.Fields["name"])
}

func TestDocumentUpsertIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	r := &model.Record{ID: "p1", Collection: "people", Fields: map[string]any{"name": "A"}}
	require.NoError(t, e.Upsert(ctx, r))
	r.Fields["name"] = "B"
	require.NoError(t, e.Upsert(ctx, r))

	got, ok, err := e.Get(ctx, "people", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", got.Fields["name"])

	n, err := e.Count(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDocumentEmbeddingRoundtrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	r := &model.Record{
		ID: "p1", Collection: "people",
		Fields:    map[string]any{"name": "A"},
		Embedding: []float32{0.1, 0.2, 0.3},
		EmbedMeta: &model.EmbeddingMeta{ModelID: "stub", Dim: 3, CreatedAt: time.Now().UTC()},
	}
	require.NoError(t, e.Upsert(ctx, r))

	got, ok, err := e.Get(ctx, "people", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	require.NotNil(t, got.EmbedMeta)
	assert.Equal(t, "stub", got.EmbedMeta.ModelID)
}

func TestGetManySkipsMissing(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.UpsertMany(ctx, []*model.Record{
		{ID: "a", Collection: "c", Fields: map[string]any{}},
		{ID: "b", Collection: "c", Fields: map[string]any{}},
	})
	require.NoError(t, err)

	got, err := e.GetMany(ctx, "c", []string{"a", "b", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestEdgeUpsertMergeSemantics(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	first, err := e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "a", ToID: "b", SimilarityScore: 0.8, IsMatch: false, Algorithm: "jaro_winkler"}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, first.UpdateCount)

	second, err := e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "a", ToID: "b", SimilarityScore: 0.6, IsMatch: true, Algorithm: "jaro_winkler"}, false)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, second.SimilarityScore, 0.001)
	assert.True(t, second.IsMatch)
	assert.Equal(t, 2, second.UpdateCount)
}

func TestEdgeUpsertForceUpdateOverwrites(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "a", ToID: "b", SimilarityScore: 0.8}, false)
	require.NoError(t, err)

	forced, err := e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "a", ToID: "b", SimilarityScore: 0.2}, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, forced.SimilarityScore, 0.001)
	assert.Equal(t, 2, forced.UpdateCount)
}

func TestEdgeKeyIsOrderIndependent(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "a", ToID: "b", SimilarityScore: 0.9}, false)
	require.NoError(t, err)

	got, ok, err := e.GetEdge(ctx, "b", "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.9, got.SimilarityScore, 0.001)
}

func TestConnectedComponents(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _ = e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "a", ToID: "b", SimilarityScore: 0.9}, false)
	_, _ = e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "b", ToID: "c", SimilarityScore: 0.9}, false)
	_, _ = e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "x", ToID: "y", SimilarityScore: 0.9}, false)

	comps, err := e.ConnectedComponents(ctx, 0.5)
	require.NoError(t, err)
	require.Len(t, comps, 2)
}

func TestDeleteByMethodAndTruncate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _ = e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "a", ToID: "b", SimilarityScore: 0.9, Algorithm: "bm25"}, false)
	_, _ = e.UpsertEdge(ctx, model.SimilarityEdge{FromID: "c", ToID: "d", SimilarityScore: 0.9, Algorithm: "vector"}, false)

	n, err := e.DeleteByMethod(ctx, "bm25")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, e.TruncateEdges(ctx))
	edges, err := e.AllEdges(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, edges)
}
