package blocking

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/serialize"
	"github.com/entityresolve/er/pkg/valid"
)

func newEngine(t *testing.T) *erstore.SQLiteEngine {
	t.Helper()
	e, err := erstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func digitsOnly(v any) string {
	s, _ := v.(string)
	return valid.DigitsOnly(s)
}

// Scenario A — exact composite-key blocking, three duplicates of one person.
func TestCollectScenarioA(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.UpsertMany(ctx, []*model.Record{
		{ID: "r1", Collection: "people", Fields: map[string]any{"name": "John Smith", "phone": "555-123-4567", "state": "CA"}},
		{ID: "r2", Collection: "people", Fields: map[string]any{"name": "Jon Smith", "phone": "5551234567", "state": "CA"}},
		{ID: "r3", Collection: "people", Fields: map[string]any{"name": "J. Smith", "phone": "(555) 123-4567", "state": "CA"}},
	})
	require.NoError(t, err)

	strategy := NewCollect(e, "people", []FieldSpec{
		{Field: "phone", Computed: digitsOnly},
		{Field: "state"},
	}, 2, 100)

	pairs, err := strategy.GenerateCandidates(ctx)
	require.NoError(t, err)
	assert.Len(t, pairs, 3)

	stats := strategy.Statistics()
	assert.Equal(t, 3, stats.Pairs)
	assert.Equal(t, 0, stats.OversizeBlocksDropped)
}

// Scenario B — BM25 blocking with state constraint rejects cross-state pair.
func TestBM25ScenarioB(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.UpsertMany(ctx, []*model.Record{
		{ID: "rA", Collection: "companies", Fields: map[string]any{"company": "Acme Corp", "state": "NY"}},
		{ID: "rB", Collection: "companies", Fields: map[string]any{"company": "Acme Corporation", "state": "NY"}},
		{ID: "rC", Collection: "companies", Fields: map[string]any{"company": "Acme Corp", "state": "TX"}},
	})
	require.NoError(t, err)

	idx, err := erstore.NewBleveIndex()
	require.NoError(t, err)
	defer idx.Close()

	ser := serialize.New([]serialize.FieldSpec{{Field: "company"}}, " ", serialize.MissingSkip)
	strategy := NewBM25(e, "companies", ser, idx, 0.01, 10, "state", 2, 100)

	pairs, err := strategy.GenerateCandidates(ctx)
	require.NoError(t, err)

	found := map[string]bool{}
	for _, p := range pairs {
		found[p.AID+"/"+p.BID] = true
	}
	assert.True(t, found["rA/rB"] || found["rB/rA"])
	for _, p := range pairs {
		assert.NotContains(t, []string{p.AID, p.BID}, "rC")
	}
}

// Scenario C — oversize block is dropped.
func TestCollectScenarioCOversizeBlockDropped(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()

	var records []*model.Record
	for i := 0; i < 200; i++ {
		records = append(records, &model.Record{
			ID: "r" + strconv.Itoa(i), Collection: "people",
			Fields: map[string]any{"state": "CA"},
		})
	}
	_, err := e.UpsertMany(ctx, records)
	require.NoError(t, err)

	strategy := NewCollect(e, "people", []FieldSpec{{Field: "state"}}, 2, 100)
	pairs, err := strategy.GenerateCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, pairs)

	stats := strategy.Statistics()
	assert.Equal(t, 1, stats.OversizeBlocksDropped)
}

func TestCollectCanonicalPairOrderAndDedup(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.UpsertMany(ctx, []*model.Record{
		{ID: "z1", Collection: "people", Fields: map[string]any{"state": "CA"}},
		{ID: "a1", Collection: "people", Fields: map[string]any{"state": "CA"}},
	})
	require.NoError(t, err)

	strategy := NewCollect(e, "people", []FieldSpec{{Field: "state"}}, 2, 100)
	pairs, err := strategy.GenerateCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "a1", pairs[0].AID)
	assert.Equal(t, "z1", pairs[0].BID)

	again, err := strategy.GenerateCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, again, "cross-invocation dedup must drop an already-seen pair")
}
