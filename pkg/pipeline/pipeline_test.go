package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityresolve/er/pkg/config"
	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
)

func newEngine(t *testing.T) *erstore.SQLiteEngine {
	t.Helper()
	e, err := erstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func baseConfig() *config.Config {
	return &config.Config{
		Global: config.Global{
			CollectionName:    "people",
			EdgeCollection:    "similarTo",
			ClusterCollection: "entity_clusters",
		},
		Blocking: config.Blocking{
			Strategies: []config.BlockingStrategy{
				{Name: "collect", Fields: []string{"state"}, MinBlockSize: 2, MaxBlockSize: 100},
			},
		},
		Similarity: config.Similarity{
			Algorithm:    "jaro_winkler",
			FieldWeights: map[string]float64{"full_name": 1.0},
			Threshold:    0.7,
		},
		Clustering: config.Clustering{
			Algorithm:     "bulk_dfs",
			MinSimilarity: 0.7,
		},
	}
}

func seedPeople(t *testing.T, e *erstore.SQLiteEngine) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.EnsureCollection(ctx, "people"))
	for _, r := range []*model.Record{
		{ID: "r1", Collection: "people", Fields: map[string]any{"full_name": "John Smith", "state": "CA"}},
		{ID: "r2", Collection: "people", Fields: map[string]any{"full_name": "Jon Smith", "state": "CA"}},
		{ID: "r3", Collection: "people", Fields: map[string]any{"full_name": "Alice Doe", "state": "NY"}},
	} {
		require.NoError(t, e.Upsert(ctx, r))
	}
}

func TestRunEndToEndProducesClusterAndGoldenRecord(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	seedPeople(t, e)

	p := New(e, e, nil, baseConfig())
	report, err := p.Run(ctx)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, report.CandidatePairs, 1)
	assert.GreaterOrEqual(t, report.Matches, 1)
	assert.GreaterOrEqual(t, report.EdgesWritten, 1)
	assert.Equal(t, 1, report.Clusters)
	assert.Equal(t, 1, report.GoldenRecords)
	assert.NotEmpty(t, report.Phases)

	names := make([]string, len(report.Phases))
	for i, ph := range report.Phases {
		names[i] = ph.Name
	}
	assert.Equal(t, []string{"blocking", "type_filter", "scoring", "edges", "clustering", "golden_record"}, names)
}

func TestRunWithTypeFilterRejectsIncompatiblePairs(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	seedPeople(t, e)

	cfg := baseConfig()
	cfg.Blocking.Strategies = []config.BlockingStrategy{
		{Name: "collect", Fields: []string{}, MinBlockSize: 2, MaxBlockSize: 100},
	}
	cfg.Enrichments.TypeFilter = true

	types := map[string]string{"r1": "person", "r2": "person", "r3": "company"}
	p := New(e, e, nil, cfg, WithTypeFilter(map[string][]string{}, func(id string) (string, bool) {
		tp, ok := types[id]
		return tp, ok
	}))

	_, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Greater(t, p.Rejected(), 0)
}

func TestRunRejectsUnwiredBlockingStrategy(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	seedPeople(t, e)

	cfg := baseConfig()
	cfg.Blocking.Strategies = []config.BlockingStrategy{{Name: "vector"}}

	p := New(e, e, nil, cfg)
	_, err := p.Run(ctx)
	require.Error(t, err)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	e := newEngine(t)
	seedPeople(t, e)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := New(e, e, nil, baseConfig())
	_, err := p.Run(ctx)
	require.Error(t, err)
}
