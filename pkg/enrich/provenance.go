package enrich

import "time"

// Relationship is a pre-existing graph edge unrelated to similarity
// scoring (e.g. "shares employer", "co-located at") whose endpoints may
// reference a record that has since been folded into a cluster.
type Relationship struct {
	FromID string
	ToID string
	Kind string
}

// RewrittenRelationship is a Relationship after the provenance sweep,
// carrying an audit trail of its pre-rewrite endpoints when either side
// changed.
type RewrittenRelationship struct {
	Relationship
	OriginalFromID string
	OriginalToID string
	RewrittenAt time.Time
}

// ProvenanceSweeper rewrites relationship endpoints from member ids to
// their cluster's canonical (golden) id once clustering has run. Purely
// a data transform: the caller is responsible for reading
// relationships from and writing the result back to its relationship
// store.
type ProvenanceSweeper struct {
	// Canonical maps a member record id to its cluster's canonical id.
	// Ids absent from the map are left unchanged.
	Canonical map[string]string
}

// NewProvenanceSweeper builds a sweeper from a member-id → canonical-id
// mapping (typically: every cluster member id → that cluster's golden
// record id, i.e. cluster_id).
func NewProvenanceSweeper(canonical map[string]string) *ProvenanceSweeper {
	return &ProvenanceSweeper{Canonical: canonical}
}

// Sweep rewrites every relationship whose endpoints appear in Canonical,
// recording the original endpoint(s) for audit, then deduplicates
// relationships that became identical (same from/to/kind) after
// rewriting, keeping the first occurrence.
func (p *ProvenanceSweeper) Sweep(rels []Relationship, now time.Time) []RewrittenRelationship {
	seen := make(map[[3]string]struct{}, len(rels))
	out := make([]RewrittenRelationship, 0, len(rels))

	for _, r := range rels {
		newFrom, fromRewritten := p.resolve(r.FromID)
		newTo, toRewritten := p.resolve(r.ToID)

		rw := RewrittenRelationship{
			Relationship: Relationship{FromID: newFrom, ToID: newTo, Kind: r.Kind},
		}
		if fromRewritten {
			rw.OriginalFromID = r.FromID
		}
		if toRewritten {
			rw.OriginalToID = r.ToID
		}
		if fromRewritten || toRewritten {
			rw.RewrittenAt = now
		}

		key := [3]string{newFrom, newTo, r.Kind}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rw)
	}
	return out
}

func (p *ProvenanceSweeper) resolve(id string) (resolved string, rewritten bool) {
	if canon, ok := p.Canonical[id]; ok && canon != id {
		return canon, true
	}
	return id, false
}
