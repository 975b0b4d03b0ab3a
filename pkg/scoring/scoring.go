// Package scoring is the batch similarity service: given a
// list of candidate pairs, batch-fetch the referenced records and score
// each pair with pkg/simil, emitting a model.ScoredMatch for every pair
// whose confidence clears the configured floor. Grounded on the teacher's
// batch-fetch-by-ids idiom (pkg/core/store_query.go's paged GetMany) now
// composed with the field similarity kernel instead of a raw filter scan.
package scoring

import (
	"context"
	"time"

	"github.com/entityresolve/er/pkg/ererr"
	"github.com/entityresolve/er/pkg/erlog"
	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/simil"
)

// Stats summarizes one Score run, the exact tuple names.
type Stats struct {
	PairsIn int
	PairsMissingSide int
	MatchesOut int
	Elapsed time.Duration
	PairsPerSec float64
}

// Service batch-scores candidate pairs against one collection.
type Service struct {
	store erstore.DocumentStore
	collection string
	kernel *simil.Kernel
	log erlog.Logger
	batchSize int

	// MatchThreshold and PossibleMatchThreshold implement the three-way
	// Fellegi-Sunter decision requires from a single scored
	// confidence: pairs below PossibleMatchThreshold are dropped (this is
	// the "threshold" step 4 refers to), pairs at or above
	// MatchThreshold decide "match", the band between the two floors
	// decides "possible_match".
	matchThreshold float64
	possibleMatchThreshold float64
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger overrides the service logger (default erlog.NopLogger).
func WithLogger(l erlog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithBatchSize overrides the per-round-trip fetch size (default 5000 per
// ).
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithPossibleMatchThreshold sets the lower decision floor; confidences in
// [possibleMatchThreshold, matchThreshold) decide "possible_match" instead
// of being dropped. Defaults to matchThreshold (no possible-match band).
func WithPossibleMatchThreshold(t float64) Option {
	return func(s *Service) { s.possibleMatchThreshold = t }
}

// New builds a Service. matchThreshold is both the emission floor and
// the match/possible_match boundary unless
// WithPossibleMatchThreshold lowers the emission floor further.
func New(store erstore.DocumentStore, collection string, kernel *simil.Kernel, matchThreshold float64, opts...Option) *Service {
	s := &Service{
		store: store,
		collection: collection,
		kernel: kernel,
		log: erlog.NopLogger(),
		batchSize: 5000,
		matchThreshold: matchThreshold,
		possibleMatchThreshold: matchThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Score batch-fetches both sides of every pair and emits a ScoredMatch for
// each pair whose confidence clears possibleMatchThreshold. Batch-fetch
// errors are fatal; per-pair scoring errors are logged and the pair is
// skipped ( error semantics).
func (s *Service) Score(ctx context.Context, pairs []model.CandidatePair) ([]model.ScoredMatch, Stats, error) {
	start := time.Now()
	stats := Stats{PairsIn: len(pairs)}

	ids := uniqueIDs(pairs)
	records, err := s.fetchAll(ctx, ids)
	if err != nil {
		return nil, stats, ererr.Database("scoring.Score", err)
	}

	var out []model.ScoredMatch
	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return out, stats, err
		}
		a, aok := records[pair.AID]
		b, bok := records[pair.BID]
		if !aok || !bok {
			stats.PairsMissingSide++
			continue
		}

		confidence, fieldScores := s.kernel.Score(a.Fields, b.Fields)
		if confidence < s.possibleMatchThreshold {
			continue
		}
		decision := model.PossibleMatch
		if confidence >= s.matchThreshold {
			decision = model.Match
		}
		out = append(out, model.ScoredMatch{
				Pair: pair,
				Confidence: confidence,
				Decision: decision,
				FieldScores: fieldScores,
			})
	}

	stats.MatchesOut = len(out)
	stats.Elapsed = time.Since(start)
	if secs := stats.Elapsed.Seconds(); secs > 0 {
		stats.PairsPerSec = float64(stats.PairsIn) / secs
	}
	return out, stats, nil
}

// fetchAll batch-fetches every id in s.batchSize-sized round trips,
// returning a lookup map keyed by record id.
func (s *Service) fetchAll(ctx context.Context, ids []string) (map[string]*model.Record, error) {
	out := make(map[string]*model.Record, len(ids))
	for start := 0; start < len(ids); start += s.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch, err := s.store.GetMany(ctx, s.collection, ids[start:end])
		if err != nil {
			return nil, err
		}
		for _, r := range batch {
			out[r.ID] = r
		}
	}
	return out, nil
}

// uniqueIDs collects the distinct set of record ids referenced by pairs,
// in first-seen order ( step 1).
func uniqueIDs(pairs []model.CandidatePair) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range pairs {
		for _, id := range [2]string{p.AID, p.BID} {
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
	}
	return out
}
