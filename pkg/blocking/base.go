// Package blocking implements the blocking strategy family: every
// strategy reduces an O(n^2) comparison space to a set of
// candidate pairs worth scoring. Base behavior (canonical pair order,
// cross-invocation dedup, block-size bounds) lives in Base, generalizing
// the prior composable-index style where every pkg/index backend
// shared a common distance-function plug point.
package blocking

import (
	"context"
	"time"

	"github.com/entityresolve/er/pkg/model"
)

// Strategy is the polymorphic interface every blocking variant
// implements.
type Strategy interface {
	Name() string
	GenerateCandidates(ctx context.Context) ([]model.CandidatePair, error)
	Statistics() Stats
}

// Stats reports per-strategy blocking statistics.
type Stats struct {
	Pairs int
	BlocksProcessed int
	OversizeBlocksDropped int
	UndersizeBlocksDropped int
	Elapsed time.Duration
}

// Base enforces the invariants every strategy shares: canonical pair
// order, deduplication across invocations of EmitBlock (and across
// repeated calls to the same Base, so re-running one strategy never
// double-counts a pair), and min/max block-size bounds.
type Base struct {
	name string
	minBlockSize int
	maxBlockSize int

	seen map[string]struct{}
	stats Stats
}

// NewBase builds a Base for a strategy named name. minBlockSize defaults
// to 2, maxBlockSize to 100.
func NewBase(name string, minBlockSize, maxBlockSize int) *Base {
	if minBlockSize <= 0 {
		minBlockSize = 2
	}
	if maxBlockSize <= 0 {
		maxBlockSize = 100
	}
	return &Base{
		name: name,
		minBlockSize: minBlockSize,
		maxBlockSize: maxBlockSize,
		seen: make(map[string]struct{}),
	}
}

// Name returns the strategy name this Base was constructed for.
func (b *Base) Name() string { return b.name }

// EmitBlock turns one block's member ids into deduplicated candidate
// pairs, applying size bounds and the oversize-block drop rule: a block
// that would emit more than maxBlockSize*(maxBlockSize-1)/2 pairs is
// dropped wholesale and counted in OversizeBlocksDropped.
func (b *Base) EmitBlock(ids []string, blockingKeys map[string]any) []model.CandidatePair {
	b.stats.BlocksProcessed++

	n := len(ids)
	if n < b.minBlockSize {
		b.stats.UndersizeBlocksDropped++
		return nil
	}
	if n > b.maxBlockSize {
		b.stats.OversizeBlocksDropped++
		return nil
	}

	pairs := make([]model.CandidatePair, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pair := model.NewPair(ids[i], ids[j], b.name)
			if blockingKeys != nil {
				pair.BlockingKeys = blockingKeys
			}
			if b.accept(pair) {
				pairs = append(pairs, pair)
			}
		}
	}
	b.stats.Pairs += len(pairs)
	return pairs
}

// EmitPair records one already-formed candidate pair (used by strategies
// that don't naturally group into blocks, e.g. vector/LSH/graph
// traversal), applying the same cross-invocation dedup as EmitBlock.
func (b *Base) EmitPair(pair model.CandidatePair) (model.CandidatePair, bool) {
	if pair.Strategy == "" {
		pair.Strategy = b.name
	}
	if !b.accept(pair) {
		return model.CandidatePair{}, false
	}
	b.stats.Pairs++
	return pair, true
}

func (b *Base) accept(pair model.CandidatePair) bool {
	key := pair.Key()
	if _, dup := b.seen[key]; dup {
		return false
	}
	b.seen[key] = struct{}{}
	return true
}

// Statistics returns the accumulated stats for this Base.
func (b *Base) Statistics() Stats { return b.stats }

// AddElapsed accumulates wall-clock time spent generating candidates.
func (b *Base) AddElapsed(d time.Duration) { b.stats.Elapsed += d }
