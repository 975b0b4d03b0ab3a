// Package address specializes C5-C9 for postal addresses: analyzer
// setup for street/directional/postal-code
// normalization, BM25 blocking with a registered-agent exclusion
// predicate, edge creation, and optional clustering, behind a
// configurable field mapping. Grounded on pkg/geo (bounding-box/radius
// proximity, carried from a predecessor geospatial index) and
// pkg/blocking's BM25 strategy; the registered-agent predicate mirrors
// the prior pluggable distFunc convention of taking a caller-supplied
// function rather than a hardcoded address list.
package address

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/entityresolve/er/pkg/blocking"
	"github.com/entityresolve/er/pkg/cluster"
	"github.com/entityresolve/er/pkg/edges"
	"github.com/entityresolve/er/pkg/erlog"
	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/scoring"
	"github.com/entityresolve/er/pkg/serialize"
	"github.com/entityresolve/er/pkg/simil"
	"github.com/entityresolve/er/pkg/valid"
)

// FieldMapping names the four address components the service reasons
// about. Every field is a dotted path into a record's
// Fields map, so callers whose address data is nested (e.g.
// "address.street") need not flatten it first.
type FieldMapping struct {
	Street string
	City string
	State string
	PostalCode string
}

// streetAbbrev expands common USPS street-suffix and directional
// abbreviations to their full form so "123 Main St" and "123 Main
// Street" block and score identically. Not exhaustive; extend as
// real-world data surfaces gaps.
var streetAbbrev = map[string]string{
	"ST": "STREET",
	"RD": "ROAD",
	"AVE": "AVENUE",
	"BLVD": "BOULEVARD",
	"DR": "DRIVE",
	"LN": "LANE",
	"CT": "COURT",
	"PL": "PLACE",
	"PKWY": "PARKWAY",
	"HWY": "HIGHWAY",
	"APT": "APARTMENT",
	"STE": "SUITE",
	"N": "NORTH",
	"S": "SOUTH",
	"E": "EAST",
	"W": "WEST",
	"NE": "NORTHEAST",
	"NW": "NORTHWEST",
	"SE": "SOUTHEAST",
	"SW": "SOUTHWEST",
}

var nonAlphanumeric = regexp.MustCompile(`[^A-Z0-9 ]+`)

// NormalizeStreet upper-cases text, strips punctuation, and expands
// every whitespace-delimited token found in streetAbbrev, producing the
// canonical form both blocking and scoring compare against.
func NormalizeStreet(s string) string {
 upper := strings.ToUpper(strings.TrimSpace(s))
 upper = nonAlphanumeric.ReplaceAllString(upper, " ")
 tokens := strings.Fields(upper)
 for i, tok := range tokens {
 if full, ok := streetAbbrev[tok]; ok {
 tokens[i] = full
 }
 }
 return strings.Join(tokens, " ")
}

// NormalizePostalCode keeps only the leading 5 digits of a ZIP+4 code
// ("94107-1234" -> "94107") so blocking on postal code isn't fragmented
// by the optional plus-four suffix.
func NormalizePostalCode(s string) string {
 digits := strings.Map(func(r rune) rune {
 if r >= '0' && r <= '9' {
 return r
 }
 return -1
 }, s)
 if len(digits) > 5 {
 return digits[:5]
 }
 return digits
}

// RegisteredAgentPredicate reports whether a record is a known
// corporate registered-agent address, which must be excluded from
// blocking: a single registered-agent address is shared by thousands of
// unrelated businesses and otherwise forms a spurious mega-cluster
//.
type RegisteredAgentPredicate func(*model.Record) bool

// Service bundles normalization, blocking, scoring, edge creation, and
// optional clustering for one address collection.
type Service struct {
 store erstore.DocumentStore
 graph erstore.GraphStore
 index erstore.FullTextIndex
 collection string
 mapping FieldMapping
 log erlog.Logger

 isRegisteredAgent RegisteredAgentPredicate
 bm25Threshold float64
 limitPerEntity int
 matchThreshold float64
 edgeAlgorithm string

 enableClustering bool
 clusterCollection string
 minClusterSize int
 maxClusterSize int
}

// Option configures a Service at construction time.
type Option func(*Service)

// WithLogger overrides the service logger (default erlog.NopLogger).
func WithLogger(l erlog.Logger) Option {
 return func(s *Service) { s.log = l }
}

// WithRegisteredAgentPredicate installs the exclusion predicate.
// Records for which it returns true are left unnormalized, and every
// candidate pair involving one of them is removed from the BM25
// blocking output before scoring.
func WithRegisteredAgentPredicate(p RegisteredAgentPredicate) Option {
 return func(s *Service) { s.isRegisteredAgent = p }
}

// WithBM25Params overrides the BM25 score floor and per-record hit
// limit (defaults 1.0 and 10; a limit <= 0 falls back to
// pkg/blocking.NewBM25's own default of 10).
func WithBM25Params(threshold float64, limitPerEntity int) Option {
 return func(s *Service) {
 s.bm25Threshold = threshold
 s.limitPerEntity = limitPerEntity
 }
}

// WithClustering turns on the optional clustering stage, persisting
// components of size
// [minSize, maxSize] into clusterCollection.
func WithClustering(clusterCollection string, minSize, maxSize int) Option {
 return func(s *Service) {
 s.enableClustering = true
 s.clusterCollection = clusterCollection
 s.minClusterSize = minSize
 s.maxClusterSize = maxSize
 }
}

// New builds an address ER service over one collection. matchThreshold
// is the similarity floor at which a scored pair becomes an edge.
func New(store erstore.DocumentStore, graph erstore.GraphStore, index erstore.FullTextIndex,
 collection string, mapping FieldMapping, matchThreshold float64, opts...Option) *Service {
 s := &Service{
 store: store,
 graph: graph,
 index: index,
 collection: collection,
 mapping: mapping,
 log: erlog.NopLogger(),
 bm25Threshold: 1.0,
 limitPerEntity: 10,
 matchThreshold: matchThreshold,
 edgeAlgorithm: "address_bm25",
 }
 for _, o := range opts {
 o(s)
 }
 return s
}

// Result summarizes one Run.
type Result struct {
 RecordsScanned int
 RegisteredAgents int
 CandidatePairs int
 Matches int
 EdgesWritten int
 Clusters int
 Elapsed time.Duration
}

// Run normalizes every address in the collection except registered
// agents, blocks with BM25
// constrained to matching postal code, scores and edge-creates the
// survivors, and optionally clusters the resulting graph.
func (s *Service) Run(ctx context.Context, forceUpdate bool) (Result, error) {
 start := time.Now()
 var res Result

 excluded := make(map[string]struct{})
 var normalized []*model.Record
 if err := s.store.Scan(ctx, s.collection, func(r *model.Record) bool {
 if ctx.Err() != nil {
 return false
 }
 res.RecordsScanned++
 if s.isRegisteredAgent != nil && s.isRegisteredAgent(r) {
 excluded[r.ID] = struct{}{}
 res.RegisteredAgents++
 return true
 }
 s.normalize(r)
 normalized = append(normalized, r)
 return true
 }); err != nil {
 return res, err
 }
 for _, r := range normalized {
 if err := s.store.Upsert(ctx, r); err != nil {
 s.log.Warn("address: normalize upsert failed", "id", r.ID, "error", err)
 }
 }
 if err := ctx.Err(); err != nil {
 return res, err
 }

 serializer := serialize.New([]serialize.FieldSpec{
 {Field: s.mapping.Street}, {Field: s.mapping.City},
 {Field: s.mapping.State}, {Field: s.mapping.PostalCode},
 }, " | ", serialize.MissingSkip)

 strategy := blocking.NewBM25(s.store, s.collection, serializer, s.index,
 s.bm25Threshold, s.limitPerEntity, s.mapping.PostalCode, 2, 100)
 candidates, err := strategy.GenerateCandidates(ctx)
 if err != nil {
 return res, err
 }
 candidates = excludeIDs(candidates, excluded)
 res.CandidatePairs = len(candidates)

 kernel := simil.New(simil.AlgoJaroWinkler, []simil.FieldWeight{
 {Field: s.mapping.Street, Weight: 0.5},
 {Field: s.mapping.City, Weight: 0.2},
 {Field: s.mapping.State, Weight: 0.1},
 {Field: s.mapping.PostalCode, Weight: 0.2},
 }, valid.NullSkip, valid.NormalizeOptions{Lower: true, Strip: true, CollapseWhitespace: true})

 scorer := scoring.New(s.store, s.collection, kernel, s.matchThreshold)
 matches, _, err := scorer.Score(ctx, candidates)
 if err != nil {
 return res, err
 }
 res.Matches = len(matches)

 edgeSvc := edges.New(s.graph, s.collection)
 written, err := edgeSvc.CreateEdges(ctx, matches, edges.Metadata{Algorithm: s.edgeAlgorithm}, forceUpdate)
 if err != nil {
 return res, err
 }
 res.EdgesWritten = written

 if s.enableClustering {
 clusterSvc := cluster.New(s.graph, s.store, s.clusterCollection, cluster.BulkDFS, s.matchThreshold,
 cluster.WithMinClusterSize(s.minClusterSize), cluster.WithMaxClusterSize(s.maxClusterSize))
 clusters, _, err := clusterSvc.Run(ctx)
 if err != nil {
 return res, err
 }
 res.Clusters = len(clusters)
 }

 res.Elapsed = time.Since(start)
 return res, nil
}

// normalize rewrites a record's address fields in place to their
// canonical form, so repeated runs are idempotent.
func (s *Service) normalize(r *model.Record) {
 if v, ok := r.Field(s.mapping.Street); ok {
 if str, isStr := v.(string); isStr {
 setField(r.Fields, s.mapping.Street, NormalizeStreet(str))
 }
 }
 if v, ok := r.Field(s.mapping.PostalCode); ok {
 if str, isStr := v.(string); isStr {
 setField(r.Fields, s.mapping.PostalCode, NormalizePostalCode(str))
 }
 }
 if v, ok := r.Field(s.mapping.City); ok {
 if str, isStr := v.(string); isStr {
 setField(r.Fields, s.mapping.City, strings.ToUpper(strings.TrimSpace(str)))
 }
 }
 if v, ok := r.Field(s.mapping.State); ok {
 if str, isStr := v.(string); isStr {
 setField(r.Fields, s.mapping.State, strings.ToUpper(strings.TrimSpace(str)))
 }
 }
}

// setField assigns a possibly-dotted path within fields, creating
// intermediate maps as needed.
func setField(fields map[string]any, path string, value any) {
 segs := strings.Split(path, ".")
 cur := fields
 for i, seg := range segs {
 if i == len(segs)-1 {
 cur[seg] = value
 return
 }
 next, ok := cur[seg].(map[string]any)
 if !ok {
 next = make(map[string]any)
 cur[seg] = next
 }
 cur = next
 }
}

func excludeIDs(pairs []model.CandidatePair, excluded map[string]struct{}) []model.CandidatePair {
 if len(excluded) == 0 {
 return pairs
 }
 out := pairs[:0]
 for _, p := range pairs {
 _, aExcluded := excluded[p.AID]
 _, bExcluded := excluded[p.BID]
 if aExcluded || bExcluded {
 continue
 }
 out = append(out, p)
 }
 return out
}
