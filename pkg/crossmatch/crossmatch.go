// Package crossmatch implements cross-collection matching: the same
// blocking → scoring → edge-materialization sequence as
// C5-C8, but the two sides of every candidate pair are drawn from
// distinct collections with their own field mappings. Grounded on
// pkg/core/multi_vector.go's pattern of parameterizing one shared
// pipeline with a small per-call options struct instead of minting new
// types per side.
package crossmatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/entityresolve/er/pkg/erlog"
	"github.com/entityresolve/er/pkg/ererr"
	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/simil"
)

// Pair is a candidate pair spanning two collections: SourceID is always
// from the source collection, TargetID from the target collection (no
// canonical ordering is imposed since the two ids live in disjoint id
// spaces).
type Pair struct {
	SourceID string
	TargetID string
}

// FieldMapping pairs a source-side field path with the target-side field
// path it should be compared against ( "side-aware field
// mappings").
type FieldMapping struct {
	SourceField string
	TargetField string
}

// Match is a Pair after scoring.
type Match struct {
	Pair Pair
	Confidence float64
	Decision model.MatchDecision
	FieldScores map[string]float64
}

// Stats summarizes one cross-collection matching run.
type Stats struct {
	BlocksProcessed int
	OversizeBlocksDropped int
	CandidatePairs int
	MatchesOut int
	EdgesCreated int
	Elapsed time.Duration
}

// Service runs C5-C8 across two distinct vertex collections.
type Service struct {
	store erstore.DocumentStore
	graph erstore.GraphStore
	sourceCollection string
	targetCollection string
	edgeAlgorithm string
	mapping []FieldMapping
	kernel *simil.Kernel
	matchThreshold float64
	minBlockSize int
	maxBlockSize int
	log erlog.Logger
}

// Option configures a Service at construction time.
type Option func(*Service)

func WithLogger(l erlog.Logger) Option { return func(s *Service) { s.log = l } }

// WithBlockSizeBounds overrides the default min=2/max=100 block bounds
// (, reused here for the composite-key blocking phase).
func WithBlockSizeBounds(min, max int) Option {
	return func(s *Service) {
		if min > 0 {
			s.minBlockSize = min
		}
		if max > 0 {
			s.maxBlockSize = max
		}
	}
}

// New builds a cross-collection matching Service. kernel's FieldWeight
// paths are interpreted against the source side; mapping translates each
// source field to its target-side counterpart before scoring.
func New(store erstore.DocumentStore, graph erstore.GraphStore, sourceCollection, targetCollection string,
	mapping []FieldMapping, kernel *simil.Kernel, matchThreshold float64, edgeAlgorithm string, opts...Option) *Service {
	s := &Service{
		store: store,
		graph: graph,
		sourceCollection: sourceCollection,
		targetCollection: targetCollection,
		edgeAlgorithm: edgeAlgorithm,
		mapping: mapping,
		kernel: kernel,
		matchThreshold: matchThreshold,
		minBlockSize: 2,
		maxBlockSize: 100,
		log: erlog.NopLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// crossGroup accumulates the source-side and target-side ids sharing one
// composite blocking key.
type crossGroup struct {
	sourceIDs []string
	targetIDs []string
}

// GenerateCandidates groups source and target records by the composite
// key formed from the mapped field set and emits every cross-product
// pair within a matching key, applying the same oversize-block drop rule
// as same-collection blocking (, applied side-aware).
func (s *Service) GenerateCandidates(ctx context.Context) ([]Pair, Stats, error) {
	start := time.Now()
	var stats Stats

	groups := make(map[string]*crossGroup)

	if err := s.scanInto(ctx, s.sourceCollection, true, groups); err != nil {
		return nil, stats, err
	}
	if err := s.scanInto(ctx, s.targetCollection, false, groups); err != nil {
		return nil, stats, err
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Pair
	for _, k := range keys {
		g := groups[k]
		stats.BlocksProcessed++
		if len(g.sourceIDs) == 0 || len(g.targetIDs) == 0 {
			continue
		}
		total := len(g.sourceIDs) + len(g.targetIDs)
		if total < s.minBlockSize {
			continue
		}
		if total > s.maxBlockSize {
			stats.OversizeBlocksDropped++
			continue
		}
		sort.Strings(g.sourceIDs)
		sort.Strings(g.targetIDs)
		for _, sid := range g.sourceIDs {
			for _, tid := range g.targetIDs {
				out = append(out, Pair{SourceID: sid, TargetID: tid})
			}
		}
	}

	stats.CandidatePairs = len(out)
	stats.Elapsed = time.Since(start)
	return out, stats, nil
}

func (s *Service) scanInto(ctx context.Context, collection string, isSource bool, groups map[string]*crossGroup) error {
	return s.store.Scan(ctx, collection, func(r *model.Record) bool {
			if ctx.Err() != nil {
				return false
			}
			key, ok := s.keyFor(r, isSource)
			if !ok {
				return true
			}
			g, exists := groups[key]
			if !exists {
				g = &crossGroup{}
				groups[key] = g
			}
			if isSource {
				g.sourceIDs = append(g.sourceIDs, r.ID)
			} else {
				g.targetIDs = append(g.targetIDs, r.ID)
			}
			return true
		})
}

func (s *Service) keyFor(r *model.Record, isSource bool) (string, bool) {
	key := ""
	for i, m := range s.mapping {
		field := m.TargetField
		if isSource {
			field = m.SourceField
		}
		v, ok := r.Field(field)
		if !ok || v == nil {
			return "", false
		}
		str := fmt.Sprint(v)
		if str == "" {
			return "", false
		}
		if i > 0 {
			key += "\x1f"
		}
		key += str
	}
	return key, true
}

// Score batch-fetches both sides and scores each pair, remapping target
// field paths onto source field names before invoking the shared
// similarity kernel so a single FieldWeight configuration (expressed
// against the source side) applies to both.
func (s *Service) Score(ctx context.Context, pairs []Pair) ([]Match, error) {
	sourceIDs := dedupeIDs(pairs, true)
	targetIDs := dedupeIDs(pairs, false)

	sourceRecs, err := s.store.GetMany(ctx, s.sourceCollection, sourceIDs)
	if err != nil {
		return nil, ererr.Database("crossmatch.Score", err)
	}
	targetRecs, err := s.store.GetMany(ctx, s.targetCollection, targetIDs)
	if err != nil {
		return nil, ererr.Database("crossmatch.Score", err)
	}

	byID := func(recs []*model.Record) map[string]*model.Record {
		m := make(map[string]*model.Record, len(recs))
		for _, r := range recs {
			m[r.ID] = r
		}
		return m
	}
	sourceByID, targetByID := byID(sourceRecs), byID(targetRecs)

	var out []Match
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		src, sok := sourceByID[p.SourceID]
		tgt, tok := targetByID[p.TargetID]
		if !sok || !tok {
			continue
		}
		remapped := s.remapTarget(tgt.Fields)
		confidence, fieldScores := s.kernel.Score(src.Fields, remapped)
		if confidence < s.matchThreshold {
			continue
		}
		out = append(out, Match{
				Pair: p,
				Confidence: confidence,
				Decision: model.Match,
				FieldScores: fieldScores,
			})
	}
	return out, nil
}

func (s *Service) remapTarget(fields map[string]any) map[string]any {
	out := make(map[string]any, len(s.mapping))
	for _, m := range s.mapping {
		if v, ok := model.FieldPath(fields, m.TargetField); ok {
			out[m.SourceField] = v
		}
	}
	return out
}

func dedupeIDs(pairs []Pair, source bool) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range pairs {
		id := p.TargetID
		if source {
			id = p.SourceID
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// CreateEdges materializes matches into the shared graph store, from the
// source collection's vertex to the target collection's vertex, using
// erstore.GraphStore's merge-on-reinsert semantics exactly as same-
// collection edges do (, applied cross-collection).
func (s *Service) CreateEdges(ctx context.Context, matches []Match, forceUpdate bool) (int, error) {
	now := time.Now().UTC()
	count := 0
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return count, err
		}
		edge := model.SimilarityEdge{
			FromID: s.sourceCollection + "/" + m.Pair.SourceID,
			ToID: s.targetCollection + "/" + m.Pair.TargetID,
			SimilarityScore: m.Confidence,
			FieldScores: m.FieldScores,
			IsMatch: m.Decision == model.Match,
			Algorithm: s.edgeAlgorithm,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if _, err := s.graph.UpsertEdge(ctx, edge, forceUpdate); err != nil {
			return count, fmt.Errorf("crossmatch.CreateEdges: %w", err)
		}
		count++
	}
	return count, nil
}
