// Package edges is the edge materialization service:
// idempotent bulk upsert of similarity edges with provenance, wrapping
// erstore.GraphStore.UpsertEdge's merge-on-reinsert semantics. Grounded on
// the prior pkg/graph/graph.go edge schema and deterministic-key
// upsert pattern, generalized to batched matches-in / count-out.
package edges

import (
	"context"
	"fmt"
	"time"

	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
)

// Metadata carries the provenance fields attached to every edge written in
// one CreateEdges call ( "metadata" parameter).
type Metadata struct {
	Algorithm string
}

// Service materializes scored matches as similarity edges in one named
// vertex collection.
type Service struct {
	graph erstore.GraphStore
	collection string
	batchSize int
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithBatchSize overrides the batch size (default 1000
// ).
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// New builds a Service. collection is the fixed vertex collection used to
// qualify from_id/to_id as "collection/record_id".
func New(graph erstore.GraphStore, collection string, opts...Option) *Service {
	s := &Service{graph: graph, collection: collection, batchSize: 1000}
	for _, o := range opts {
		o(s)
	}
	return s
}

// VertexID qualifies a bare record id with this service's fixed vertex
// collection.
func (s *Service) VertexID(recordID string) string {
	return s.collection + "/" + recordID
}

// CreateEdges upserts one similarity edge per match, batched in groups of
// batchSize with a context check between batches, and returns the number
// of edges written. Edge keys are deterministic from the unordered
// (from_id, to_id) pair, so re-running CreateEdges over an overlapping
// match set is safe.
func (s *Service) CreateEdges(ctx context.Context, matches []model.ScoredMatch, meta Metadata, forceUpdate bool) (int, error) {
	count := 0
	now := time.Now().UTC()

	for i := 0; i < len(matches); i += s.batchSize {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		end := i + s.batchSize
		if end > len(matches) {
			end = len(matches)
		}
		for _, m := range matches[i:end] {
			edge := model.SimilarityEdge{
				FromID: s.VertexID(m.Pair.AID),
				ToID: s.VertexID(m.Pair.BID),
				SimilarityScore: m.Confidence,
				FieldScores: m.FieldScores,
				IsMatch: m.Decision == model.Match,
				Algorithm: meta.Algorithm,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if _, err := s.graph.UpsertEdge(ctx, edge, forceUpdate); err != nil {
				return count, fmt.Errorf("edges.CreateEdges: %w", err)
			}
			count++
		}
	}
	return count, nil
}

// DeleteByMethod removes every edge written under the given algorithm
// name, a cleanup hook for iterative workflows.
func (s *Service) DeleteByMethod(ctx context.Context, method string) (int, error) {
	return s.graph.DeleteByMethod(ctx, method)
}

// Truncate removes every edge in the graph.
func (s *Service) Truncate(ctx context.Context) error {
	return s.graph.TruncateEdges(ctx)
}
