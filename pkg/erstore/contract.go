// Package erstore defines the database contract every
// component in this module programs against, plus a reference
// implementation backed by modernc.org/sqlite (documents + graph) and
// bleve/v2 (full text). Grounded on the prior pkg/core/store*.go,
// which exposed the same shape of narrow interfaces (collection CRUD,
// parameterized query, bulk insert) in front of a single storage engine;
// this package generalizes that split into the four contracts
// calls out (documents, named graph, full text, vector) so a host could
// substitute a different multi-model database without touching any
// C1-C15 component.
package erstore

import (
	"context"

	"github.com/entityresolve/er/pkg/ann"
	"github.com/entityresolve/er/pkg/model"
)

// DocumentStore is the document CRUD + bulk-insert + query contract.
type DocumentStore interface {
	// EnsureCollection creates the named collection if absent.
	EnsureCollection(ctx context.Context, collection string) error
	// Truncate removes every record in collection.
	Truncate(ctx context.Context, collection string) error
	// Upsert inserts or replaces r, keyed by r.ID within r.Collection.
	Upsert(ctx context.Context, r *model.Record) error
	// UpsertMany is the bulk-insert path ( "insert_many").
	UpsertMany(ctx context.Context, records []*model.Record) (int, error)
	// Get fetches one record by id, returning ok=false if absent.
	Get(ctx context.Context, collection, id string) (*model.Record, bool, error)
	// GetMany batch-fetches by id, skipping ids that don't exist.
	GetMany(ctx context.Context, collection string, ids []string) ([]*model.Record, error)
	// Scan iterates every record in collection, invoking visit for each.
	// Iteration stops early if visit returns false.
	Scan(ctx context.Context, collection string, visit func(*model.Record) bool) error
	// Count returns the number of records in collection.
	Count(ctx context.Context, collection string) (int, error)
}

// GraphStore is the named-graph edge contract.
type GraphStore interface {
	// UpsertEdge applies the idempotent merge-on-reinsert (or
	// force-overwrite) semantics of and returns the edge as
	// stored.
	UpsertEdge(ctx context.Context, e model.SimilarityEdge, forceUpdate bool) (model.SimilarityEdge, error)
	// GetEdge returns the edge between from and to (order-independent),
	// if one exists.
	GetEdge(ctx context.Context, from, to string) (model.SimilarityEdge, bool, error)
	// AllEdges streams every edge with similarity_score >= minSimilarity,
	// the bulk-export path the in-process DFS clustering algorithm uses.
	AllEdges(ctx context.Context, minSimilarity float64) ([]model.SimilarityEdge, error)
	// ConnectedComponents runs the server-side traversal variant of
	// clustering, restricted to edges with
	// similarity_score >= minSimilarity.
	ConnectedComponents(ctx context.Context, minSimilarity float64) ([][]string, error)
	// DeleteByMethod removes every edge whose Algorithm equals method.
	DeleteByMethod(ctx context.Context, method string) (int, error)
	// TruncateEdges removes every edge.
	TruncateEdges(ctx context.Context) error
}

// FullTextIndex is the BM25 full-text contract.
type FullTextIndex interface {
	// Index adds or replaces the searchable text for id.
	Index(id string, text string) error
	// Search returns up to limit hits for query, each with a BM25-style
	// relevance score, sorted by descending score.
	Search(query string, limit int) ([]TextHit, error)
	// Delete removes id from the index.
	Delete(id string) error
}

// TextHit is one full-text search result.
type TextHit struct {
	ID string
	Score float64
}

// VectorIndex is the optional ANN contract. Its Nearest method has the
// parameters and results of ann.NativeSearch.NearestNative under a
// different name, so a VectorIndex does not satisfy ann.NativeSearch and
// is not registered as an ann.Adapter's native tier as is.
type VectorIndex interface {
	Add(id string, vec []float32)
	Remove(id string)
	Nearest(ctx context.Context, vec []float32, k int, minSimilarity float64) ([]ann.Neighbor, bool, error)
}
