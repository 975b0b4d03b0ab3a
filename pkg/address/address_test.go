package address

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
)

func newEngine(t *testing.T) *erstore.SQLiteEngine {
	t.Helper()
	e, err := erstore.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	require.NoError(t, e.EnsureCollection(context.Background(), "addresses"))
	return e
}

func defaultMapping() FieldMapping {
	return FieldMapping{Street: "street", City: "city", State: "state", PostalCode: "zip"}
}

func TestNormalizeStreetExpandsAbbreviations(t *testing.T) {
	require.Equal(t, "123 MAIN STREET", NormalizeStreet("123 Main St"))
	require.Equal(t, "456 NORTH ELM AVENUE APARTMENT 2", NormalizeStreet("456 N Elm Ave, Apt 2"))
}

func TestNormalizePostalCodeTrimsPlusFour(t *testing.T) {
	require.Equal(t, "94107", NormalizePostalCode("94107-1234"))
	require.Equal(t, "94107", NormalizePostalCode("94107"))
}

func TestRunMatchesSimilarAddressesAndExcludesRegisteredAgent(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	index, err := erstore.NewBleveIndex()
	require.NoError(t, err)

	records := []*model.Record{
		{ID: "a1", Collection: "addresses", Fields: map[string]any{
			"street": "123 Main St", "city": "Springfield", "state": "IL", "zip": "62701",
		}},
		{ID: "a2", Collection: "addresses", Fields: map[string]any{
			"street": "123 Main Street", "city": "Springfield", "state": "IL", "zip": "62701-0001",
		}},
		{ID: "agent", Collection: "addresses", Fields: map[string]any{
			"street": "100 Corporate Trust Center", "city": "Wilmington", "state": "DE", "zip": "19801",
		}},
	}
	for _, r := range records {
		require.NoError(t, e.Upsert(ctx, r))
	}

	svc := New(e, e, index, "addresses", defaultMapping(), 0.5,
		WithRegisteredAgentPredicate(func(r *model.Record) bool {
			return r.ID == "agent"
		}),
		WithBM25Params(0.0, 10),
	)

	res, err := svc.Run(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 3, res.RecordsScanned)
	require.Equal(t, 1, res.RegisteredAgents)
	require.GreaterOrEqual(t, res.EdgesWritten, 1)

	edge, found, err := e.GetEdge(ctx, "addresses/a1", "addresses/a2")
	require.NoError(t, err)
	require.True(t, found)
	require.Greater(t, edge.SimilarityScore, 0.5)

	_, found, err = e.GetEdge(ctx, "addresses/a1", "addresses/agent")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRunNormalizesFieldsInPlace(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	index, err := erstore.NewBleveIndex()
	require.NoError(t, err)

	require.NoError(t, e.Upsert(ctx, &model.Record{
		ID: "a1", Collection: "addresses",
		Fields: map[string]any{"street": "1 Elm Rd", "city": "  austin ", "state": "tx", "zip": "73301-0000"},
	}))

	svc := New(e, e, index, "addresses", defaultMapping(), 0.5, WithBM25Params(0.0, 10))
	_, err = svc.Run(ctx, false)
	require.NoError(t, err)

	rec, ok, err := e.Get(ctx, "addresses", "a1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1 ELM ROAD", rec.Fields["street"])
	require.Equal(t, "AUSTIN", rec.Fields["city"])
	require.Equal(t, "TX", rec.Fields["state"])
	require.Equal(t, "73301", rec.Fields["zip"])
}

func TestRunWithClusteringGroupsMatchedAddresses(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t)
	require.NoError(t, e.EnsureCollection(ctx, "address_clusters"))
	index, err := erstore.NewBleveIndex()
	require.NoError(t, err)

	for _, r := range []*model.Record{
		{ID: "a1", Collection: "addresses", Fields: map[string]any{"street": "1 Elm St", "city": "Austin", "state": "TX", "zip": "73301"}},
		{ID: "a2", Collection: "addresses", Fields: map[string]any{"street": "1 Elm Street", "city": "Austin", "state": "TX", "zip": "73301"}},
	} {
		require.NoError(t, e.Upsert(ctx, r))
	}

	svc := New(e, e, index, "addresses", defaultMapping(), 0.5,
		WithBM25Params(0.0, 10),
		WithClustering("address_clusters", 2, 100),
	)
	res, err := svc.Run(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 1, res.Clusters)
}
