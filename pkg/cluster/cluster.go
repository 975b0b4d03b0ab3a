// Package cluster implements the clustering service:
// weakly-connected-component discovery over the similarity edge graph,
// with two interchangeable algorithms that must agree on the same edge
// set (invariant 5 in ). Grounded on the prior deleted
// pkg/graph/graph_traversal.go BFS shape, adapted to DFS-via-explicit-
// stack for the bulk-fetch variant; the server-side variant delegates to
// erstore.GraphStore.ConnectedComponents.
package cluster

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/entityresolve/er/pkg/erlog"
	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/graphstore"
	"github.com/entityresolve/er/pkg/model"
)

// Algorithm selects which of the two equivalent component-discovery
// strategies a Service uses.
type Algorithm string

const (
	// GraphTraversal delegates to the database's native graph query
	// (erstore.GraphStore.ConnectedComponents).
	GraphTraversal Algorithm = "graph_traversal"
	// BulkDFS bulk-fetches all edges and walks them in-process with an
	// iterative-stack DFS (erstore.GraphStore.AllEdges + pkg/graphstore).
	BulkDFS Algorithm = "bulk_dfs"
)

// Stats summarizes one clustering run.
type Stats struct {
	ClustersFound int
	OversizeClusters int
	UndersizeDropped int
	FlaggedLowQuality int
	Elapsed time.Duration
}

// Service discovers and persists clusters from the similarity edge graph.
type Service struct {
	graph erstore.GraphStore
	store erstore.DocumentStore
	collection string
	log erlog.Logger

	algorithm Algorithm
	minSimilarity float64
	minClusterSize int
	maxClusterSize int
	qualityScoreThreshold float64
}

// Option configures a Service at construction time.
type Option func(*Service)

func WithLogger(l erlog.Logger) Option { return func(s *Service) { s.log = l } }

// WithMinClusterSize overrides the default minimum cluster size of 2
//.
func WithMinClusterSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.minClusterSize = n
		}
	}
}

// WithMaxClusterSize overrides the default maximum cluster size of 100
//; clusters larger than this are rejected as likely false
// positives.
func WithMaxClusterSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxClusterSize = n
		}
	}
}

// WithQualityScoreThreshold sets the floor below which a cluster is
// flagged (but still emitted).
func WithQualityScoreThreshold(t float64) Option {
	return func(s *Service) { s.qualityScoreThreshold = t }
}

// New builds a clustering Service over the named cluster collection.
func New(graph erstore.GraphStore, store erstore.DocumentStore, clusterCollection string, algorithm Algorithm, minSimilarity float64, opts...Option) *Service {
	s := &Service{
		graph: graph,
		store: store,
		collection: clusterCollection,
		log: erlog.NopLogger(),
		algorithm: algorithm,
		minSimilarity: minSimilarity,
		minClusterSize: 2,
		maxClusterSize: 100,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Run discovers the weakly-connected components of the edge subgraph
// whose similarity_score >= minSimilarity, scores each for quality,
// applies the size policy, and persists the survivors. The cluster
// collection is truncated first ( documented open-question
// resolution: no orphaned cluster survives a re-run).
func (s *Service) Run(ctx context.Context) ([]model.Cluster, Stats, error) {
	start := time.Now()
	var stats Stats

	edges, err := s.graph.AllEdges(ctx, s.minSimilarity)
	if err != nil {
		return nil, stats, err
	}
	g := graphstore.New()
	for _, e := range edges {
		g.AddEdge(e.FromID, e.ToID, e.SimilarityScore)
	}

	var components [][]string
	switch s.algorithm {
	case GraphTraversal:
		components, err = s.graph.ConnectedComponents(ctx, s.minSimilarity)
		if err != nil {
			return nil, stats, err
		}
	default:
		components = g.ConnectedComponents()
	}

	if err := s.store.Truncate(ctx, s.collection); err != nil {
		return nil, stats, err
	}

	var out []model.Cluster
	for _, members := range components {
		if err := ctx.Err(); err != nil {
			return out, stats, err
		}
		sort.Strings(members)
		if len(members) < s.minClusterSize {
			stats.UndersizeDropped++
			continue
		}
		if len(members) > s.maxClusterSize {
			stats.OversizeClusters++
			continue
		}

		c := buildCluster(members, g.Stats(members))
		if c.Quality < s.qualityScoreThreshold {
			c.Flagged = true
			stats.FlaggedLowQuality++
		}

		rec := toRecord(s.collection, c)
		if err := s.store.Upsert(ctx, rec); err != nil {
			return out, stats, err
		}
		out = append(out, c)
		stats.ClustersFound++
	}

	stats.Elapsed = time.Since(start)
	return out, stats, nil
}

// buildCluster computes the size/edge/density/quality invariants of
// from a component's members and its intra-component edge
// weight statistics.
func buildCluster(members []string, st graphstore.ComponentStats) model.Cluster {
	n := len(members)
	var density float64
	if n > 1 {
		maxEdges := float64(n*(n-1)) / 2
		density = float64(st.EdgeCount) / maxEdges
	}

	sizePenalty := 1.0
	if n > 20 {
		// Large clusters are statistically more likely to include a false
		// merge; taper the quality score gently past a generous size.
		sizePenalty = 20.0 / float64(n)
	}
	quality := (density + st.AvgWeight) / 2 * sizePenalty

	return model.Cluster{
		ClusterID: deriveID(members),
		Members: members,
		Size: n,
		EdgeCount: st.EdgeCount,
		MinSim: st.MinWeight,
		AvgSim: st.AvgWeight,
		MaxSim: st.MaxWeight,
		Density: density,
		Quality: quality,
	}
}

// deriveID computes the deterministic cluster_id from sorted member ids
// (, invariant 6): stable under member-set permutation.
func deriveID(members []string) string {
	sortedMembers := append([]string(nil), members...)
	sort.Strings(sortedMembers)
	h := sha256.New()
	for _, m := range sortedMembers {
		h.Write([]byte(m))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func toRecord(collection string, c model.Cluster) *model.Record {
	members := make([]any, len(c.Members))
	for i, m := range c.Members {
		members[i] = m
	}
	return &model.Record{
		ID: c.ClusterID,
		Collection: collection,
		Fields: map[string]any{
			"members": members,
			"size": c.Size,
			"edge_count": c.EdgeCount,
			"min_similarity": c.MinSim,
			"avg_similarity": c.AvgSim,
			"max_similarity": c.MaxSim,
			"density": c.Density,
			"quality_score": c.Quality,
			"flagged_low_quality": c.Flagged,
		},
	}
}

// FromRecord reconstructs a model.Cluster from a persisted cluster
// record, the inverse of toRecord, used by callers (e.g. pkg/golden)
// that read clusters back out of the store.
func FromRecord(r *model.Record) (model.Cluster, error) {
	members, ok := r.Fields["members"].([]any)
	if !ok {
		return model.Cluster{}, fmt.Errorf("cluster.FromRecord: record %q has no members field", r.ID)
	}
	ids := make([]string, len(members))
	for i, m := range members {
		s, ok := m.(string)
		if !ok {
			return model.Cluster{}, fmt.Errorf("cluster.FromRecord: member %v is not a string", m)
		}
		ids[i] = s
	}
	return model.Cluster{
		ClusterID: r.ID,
		Members: ids,
		Size: intField(r.Fields["size"]),
		EdgeCount: intField(r.Fields["edge_count"]),
		MinSim: floatField(r.Fields["min_similarity"]),
		AvgSim: floatField(r.Fields["avg_similarity"]),
		MaxSim: floatField(r.Fields["max_similarity"]),
		Density: floatField(r.Fields["density"]),
		Quality: floatField(r.Fields["quality_score"]),
		Flagged: boolField(r.Fields["flagged_low_quality"]),
	}, nil
}

func intField(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func floatField(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func boolField(v any) bool {
	b, _ := v.(bool)
	return b
}
