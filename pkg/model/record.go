// Package model holds the data types shared across the entity resolution
// pipeline (records, candidate pairs, scored matches, similarity edges,
// clusters, golden records). Keeping them in one leaf package lets every
// other component depend on the data model without importing each other.
package model

import "time"

// EmbeddingMeta records provenance for a vector attached to a Record.
type EmbeddingMeta struct {
	ModelID string `json:"model_id"`
 Dim int `json:"dim"`
 CreatedAt time.Time `json:"created_at"`
}

// Record is a polymorphic document: a stable id within a collection plus
// an arbitrary field map, optionally carrying one or more embeddings.
type Record struct {
 ID string `json:"id"`
 Collection string `json:"collection"`
 Fields map[string]any `json:"fields"`
 Embedding []float32 `json:"embedding,omitempty"`
 EmbedMeta *EmbeddingMeta `json:"embedding_meta,omitempty"`
 Coarse []float32 `json:"coarse_embedding,omitempty"`
 CoarseMeta *EmbeddingMeta `json:"coarse_embedding_meta,omitempty"`
}

// Field returns the value at dotted path (e.g. "address.city"), walking
// nested maps. ok is false if any segment is missing or not a map.
func (r *Record) Field(path string) (any, bool) {
 return FieldPath(r.Fields, path)
}

// FieldPath resolves a dotted path against an arbitrary field map, used
// by both Record.Field and the tuple serializer.
func FieldPath(fields map[string]any, path string) (any, bool) {
 cur := fields
 segs := splitPath(path)
 for i, seg := range segs {
 v, ok := cur[seg]
 if !ok {
 return nil, false
 }
 if i == len(segs)-1 {
 return v, true
 }
 next, ok := v.(map[string]any)
 if !ok {
 return nil, false
 }
 cur = next
 }
 return nil, false
}

func splitPath(path string) []string {
 var out []string
 start := 0
 for i := 0; i < len(path); i++ {
 if path[i] == '.' {
 out = append(out, path[start:i])
 start = i + 1
 }
 }
 out = append(out, path[start:])
 return out
}

// CandidatePair is an ordered pair of record ids worth comparing. AID is
// always lexicographically less than BID so the pair set is symmetry-free
// (invariant 1 of the design).
type CandidatePair struct {
 AID string `json:"a_id"`
 BID string `json:"b_id"`
 Strategy string `json:"strategy"`
 BlockingKeys map[string]any `json:"blocking_keys,omitempty"`
 BM25Score float64 `json:"bm25_score,omitempty"`
 VectorScore float64 `json:"vector_score,omitempty"`
}

// NewPair returns a CandidatePair with its two ids placed in canonical
// (a < b) order.
func NewPair(id1, id2, strategy string) CandidatePair {
 a, b := id1, id2
 if b < a {
 a, b = b, a
 }
 return CandidatePair{AID: a, BID: b, Strategy: strategy}
}

// Key is a stable map key for deduplication: "a\x00b" so ids containing a
// colon or slash cannot collide with the separator.
func (p CandidatePair) Key() string { return p.AID + "\x00" + p.BID }

// MatchDecision is the Fellegi-Sunter three-way classification of a scored
// pair.
type MatchDecision string

const (
 Match MatchDecision = "match"
 PossibleMatch MatchDecision = "possible_match"
 NonMatch MatchDecision = "non_match"
)

// ScoredMatch is a CandidatePair after field-similarity scoring.
type ScoredMatch struct {
 Pair CandidatePair `json:"pair"`
 Confidence float64 `json:"confidence"`
 Decision MatchDecision `json:"is_match"`
 FieldScores map[string]float64 `json:"field_scores"`
}

// SimilarityEdge is the persisted, idempotent graph edge between two
// records.
type SimilarityEdge struct {
 FromID string `json:"from_id"`
 ToID string `json:"to_id"`
 SimilarityScore float64 `json:"similarity_score"`
 FieldScores map[string]float64 `json:"field_scores,omitempty"`
 IsMatch bool `json:"is_match"`
 Algorithm string `json:"algorithm"`
 CreatedAt time.Time `json:"created_at"`
 UpdatedAt time.Time `json:"updated_at"`
 UpdateCount int `json:"update_count"`
}

// Cluster is a weakly-connected component of the similarity graph.
type Cluster struct {
 ClusterID string `json:"cluster_id"`
 Members []string `json:"members"`
 Size int `json:"size"`
 EdgeCount int `json:"edge_count"`
 MinSim float64 `json:"min_similarity"`
 AvgSim float64 `json:"avg_similarity"`
 MaxSim float64 `json:"max_similarity"`
 Density float64 `json:"density"`
 Quality float64 `json:"quality_score"`
 Flagged bool `json:"flagged_low_quality,omitempty"`
}

// GoldenRecord is the consolidated representative of a Cluster.
type GoldenRecord struct {
 ClusterID string `json:"cluster_id"`
 Fields map[string]any `json:"fields"`
 SourceIDs []string `json:"source_ids"`
 ConflictsResolved int `json:"conflicts_resolved"`
 QualityScore float64 `json:"quality_score"`
}

// GroundTruthPair is a labeled pair used only by the evaluation harness.
type GroundTruthPair struct {
 AID string
 BID string
 IsMatch bool
}

// Key mirrors CandidatePair.Key so ground truth and candidate sets can be
// compared directly.
func (g GroundTruthPair) Key() string {
 a, b := g.AID, g.BID
 if b < a {
 a, b = b, a
 }
 return a + "\x00" + b
}
