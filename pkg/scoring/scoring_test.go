package scoring

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

// Scenario A from spec.md §8: name-only jaro_winkler kernel, threshold 0.75.
func TestScoreScenarioA(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.UpsertMany(ctx, []*model.Record{
		{ID: "r1", Collection: "people", Fields: map[string]any{"name": "John Smith"}},
		{ID: "r2", Collection: "people", Fields: map[string]any{"name": "Jon Smith"}},
		{ID: "r3", Collection: "people", Fields: map[string]any{"name": "Completely Different"}},
	})
	require.NoError(t, err)

	kernel := simil.New(simil.AlgoJaroWinkler, []simil.FieldWeight{{Field: "name", Weight: 1}}, valid.NullSkip, valid.NormalizeOptions{})
	svc := New(e, "people", kernel, 0.75)

	pairs := []model.CandidatePair{
		model.NewPair("r1", "r2", "test"),
		model.NewPair("r1", "r3", "test"),
	}
	matches, stats, err := svc.Score(ctx, pairs)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.PairsIn)
	assert.Equal(t, 0, stats.PairsMissingSide)
	require.Len(t, matches, 1)
	assert.Equal(t, model.Match, matches[0].Decision)
	assert.GreaterOrEqual(t, matches[0].Confidence, 0.75)
}

func TestScoreSkipsMissingSide(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.UpsertMany(ctx, []*model.Record{
		{ID: "r1", Collection: "people", Fields: map[string]any{"name": "John Smith"}},
	})
	require.NoError(t, err)

	kernel := simil.New(simil.AlgoJaroWinkler, []simil.FieldWeight{{Field: "name", Weight: 1}}, valid.NullSkip, valid.NormalizeOptions{})
	svc := New(e, "people", kernel, 0.75)

	pairs := []model.CandidatePair{model.NewPair("r1", "ghost", "test")}
	matches, stats, err := svc.Score(ctx, pairs)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Equal(t, 1, stats.PairsMissingSide)
}

func TestScorePossibleMatchBand(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	_, err := e.UpsertMany(ctx, []*model.Record{
		{ID: "r1", Collection: "people", Fields: map[string]any{"name": "Robert"}},
		{ID: "r2", Collection: "people", Fields: map[string]any{"name": "Robyn"}},
	})
	require.NoError(t, err)

	kernel := simil.New(simil.AlgoJaroWinkler, []simil.FieldWeight{{Field: "name", Weight: 1}}, valid.NullSkip, valid.NormalizeOptions{})
	svc := New(e, "people", kernel, 0.95, WithPossibleMatchThreshold(0.5))

	pairs := []model.CandidatePair{model.NewPair("r1", "r2", "test")}
	matches, _, err := svc.Score(ctx, pairs)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, model.PossibleMatch, matches[0].Decision)
}

func TestScoreBatchSizeRespected(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	var records []*model.Record
	var pairs []model.CandidatePair
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		records = append(records, &model.Record{ID: id, Collection: "people", Fields: map[string]any{"name": "Same"}})
	}
	for i := 0; i < len(records)-1; i++ {
		pairs = append(pairs, model.NewPair(records[i].ID, records[i+1].ID, "test"))
	}
	_, err := e.UpsertMany(ctx, records)
	require.NoError(t, err)

	kernel := simil.New(simil.AlgoJaroWinkler, []simil.FieldWeight{{Field: "name", Weight: 1}}, valid.NullSkip, valid.NormalizeOptions{})
	svc := New(e, "people", kernel, 0.5, WithBatchSize(3))

	matches, stats, err := svc.Score(ctx, pairs)
	require.NoError(t, err)
	assert.Len(t, matches, len(pairs))
	assert.Equal(t, len(pairs), stats.MatchesOut)
}
