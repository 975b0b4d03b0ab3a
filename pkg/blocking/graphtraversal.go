package blocking

import (
	"context"
	"time"

	"github.com/entityresolve/er/pkg/graphstore"
	"github.com/entityresolve/er/pkg/model"
)

// GraphTraversalStrategy traverses maxHops from every seed record in an
// existing relationship graph (e.g. "shared phone") and emits all pairs
// among the visited vertices, delegating the walk to
// pkg/graphstore's BFS.
type GraphTraversalStrategy struct {
	*Base
	graph *graphstore.Graph
	seeds []string
	maxHops int
}

// NewGraphTraversal builds a graph-traversal blocking strategy over a
// pre-populated relationship graph.
func NewGraphTraversal(graph *graphstore.Graph, seeds []string, maxHops, minBlockSize, maxBlockSize int) *GraphTraversalStrategy {
	return &GraphTraversalStrategy{
		Base: NewBase("graph_traversal", minBlockSize, maxBlockSize),
		graph: graph,
		seeds: seeds,
		maxHops: maxHops,
	}
}

func (s *GraphTraversalStrategy) GenerateCandidates(ctx context.Context) ([]model.CandidatePair, error) {
	start := time.Now()

	var out []model.CandidatePair
	for _, seed := range s.seeds {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		var visited []string
		s.graph.BFS(seed, s.maxHops, func(id string, hops int) {
				visited = append(visited, id)
			})
		out = append(out, s.EmitBlock(visited, map[string]any{"seed": seed})...)
	}
	s.AddElapsed(time.Since(start))
	return out, nil
}
