// Package golden implements the golden record service:
// per-cluster, per-field conflict resolution producing one consolidated
// representative record per cluster. Validator style (small pure
// predicates) follows a predecessor pkg/geo/geospatial.go
// isValidCoordinate convention.
package golden

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/entityresolve/er/pkg/erlog"
	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/valid"
)

// Strategy names the per-field conflict-resolution policy.
type Strategy string

const (
	HighestQuality Strategy = "highest_quality"
	MostFrequent Strategy = "most_frequent"
	MostCompleteWithQuality Strategy = "most_complete_with_quality"
)

// Validator scores a candidate field value in [0, 1]; higher is better.
// Defaults for email/phone/ZIP/US-state are provided below, and the set
// is pluggable.
type Validator func(value string) float64

// systemFields are excluded from conflict resolution (
// step 2): internal store bookkeeping, never a user field.
var systemFields = map[string]struct{}{
	"_id": {}, "_key": {}, "_rev": {},
}

// Service synthesizes golden records from clusters of member records.
type Service struct {
	store erstore.DocumentStore
	collection string
	goldenColl string
	log erlog.Logger

	fieldStrategies map[string]Strategy
	validators map[string]Validator
	defaultStrategy Strategy
}

// Option configures a Service at construction time.
type Option func(*Service)

func WithLogger(l erlog.Logger) Option { return func(s *Service) { s.log = l } }

// WithFieldStrategy assigns field → strategy ( golden_record.
// field_strategies). Fields with no assignment fall back to
// highest_quality.
func WithFieldStrategy(field string, strat Strategy) Option {
	return func(s *Service) { s.fieldStrategies[field] = strat }
}

// WithValidator registers (or overrides) the validator for field.
func WithValidator(field string, v Validator) Option {
	return func(s *Service) { s.validators[field] = v }
}

// New builds a Service. collection is where member records live;
// goldenCollection is where synthesized golden records are written,
// keyed by cluster_id.
func New(store erstore.DocumentStore, collection, goldenCollection string, opts...Option) *Service {
	s := &Service{
		store: store,
		collection: collection,
		goldenColl: goldenCollection,
		log: erlog.NopLogger(),
		fieldStrategies: make(map[string]Strategy),
		validators: defaultValidators(),
		defaultStrategy: HighestQuality,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Resolve synthesizes the golden record for one cluster's members,
// without persisting it.
func (s *Service) Resolve(ctx context.Context, clusterID string, members []string) (model.GoldenRecord, error) {
	records, err := s.store.GetMany(ctx, s.collection, members)
	if err != nil {
		return model.GoldenRecord{}, err
	}
	records = orderByMembers(records, members)

	fieldValues := collectFieldValues(records)

	out := model.GoldenRecord{
		ClusterID: clusterID,
		Fields: make(map[string]any, len(fieldValues)),
		SourceIDs: sourceIDs(records),
	}

	var qualitySum float64
	var qualityCount int
	for field, values := range fieldValues {
		strat := s.strategyFor(field)
		validator := s.validatorFor(field)

		if len(values) == 0 {
			continue
		}
		chosen, quality, conflict := resolve(strat, values, validator)
		if chosen == nil {
			continue
		}
		out.Fields[field] = chosen
		qualitySum += quality
		qualityCount++
		if conflict {
			out.ConflictsResolved++
		}
	}

	if qualityCount > 0 {
		out.QualityScore = qualitySum / float64(qualityCount)
	}
	return out, nil
}

// RunCluster resolves and persists the golden record for one cluster,
// keyed by cluster_id.
func (s *Service) RunCluster(ctx context.Context, clusterID string, members []string) (model.GoldenRecord, error) {
	gr, err := s.Resolve(ctx, clusterID, members)
	if err != nil {
		return model.GoldenRecord{}, err
	}
	rec := &model.Record{
		ID: gr.ClusterID,
		Collection: s.goldenColl,
		Fields: map[string]any{
			"fields": gr.Fields,
			"source_ids": toAnySlice(gr.SourceIDs),
			"conflicts_resolved": gr.ConflictsResolved,
			"quality_score": gr.QualityScore,
		},
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		return model.GoldenRecord{}, err
	}
	return gr, nil
}

func (s *Service) strategyFor(field string) Strategy {
	if strat, ok := s.fieldStrategies[field]; ok {
		switch strat {
		case HighestQuality, MostFrequent, MostCompleteWithQuality:
			return strat
		}
	}
	return s.defaultStrategy
}

func (s *Service) validatorFor(field string) Validator {
	if v, ok := s.validators[field]; ok {
		return v
	}
	return neutralValidator
}

// candidateValue is one field value as seen on one member record, kept
// in first-seen order so tie-breaking matches invariant 7.
type candidateValue struct {
	value string
	firstSeen int
}

// collectFieldValues gathers, per non-system field, the non-null value
// set across members in first-seen order ( step 2).
func collectFieldValues(records []*model.Record) map[string][]candidateValue {
	out := make(map[string][]candidateValue)
	order := 0
	for _, r := range records {
		for field, v := range r.Fields {
			if _, system := systemFields[field]; system {
				continue
			}
			if strings.HasPrefix(field, "_") {
				continue
			}
			if v == nil {
				continue
			}
			s := fmt.Sprint(v)
			if s == "" {
				continue
			}
			out[field] = append(out[field], candidateValue{value: s, firstSeen: order})
			order++
		}
	}
	return out
}

// orderByMembers reorders fetched records to match the member-id order
// the caller supplied, so first-seen tie-breaking ( invariant
// 7) does not depend on the store's incidental scan order.
func orderByMembers(records []*model.Record, members []string) []*model.Record {
	byID := make(map[string]*model.Record, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}
	out := make([]*model.Record, 0, len(records))
	for _, id := range members {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out
}

func sourceIDs(records []*model.Record) []string {
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// resolve picks the winning value for one field per strategy, returning
// the chosen value, its quality score, and whether resolving it actually
// required breaking a conflict (more than one distinct candidate value).
func resolve(strat Strategy, values []candidateValue, validator Validator) (any, float64, bool) {
	distinct := distinctCount(values)
	conflict := distinct > 1

	switch strat {
	case MostFrequent:
		v, q := mostFrequent(values, validator)
		return v, q, conflict
	case MostCompleteWithQuality:
		v, q := mostCompleteWithQuality(values, validator)
		return v, q, conflict
		default: // HighestQuality and unknown-strategy fallback
		v, q := highestQuality(values, validator)
		return v, q, conflict
	}
}

func distinctCount(values []candidateValue) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		seen[v.value] = struct{}{}
	}
	return len(seen)
}

// highestQuality scores each candidate by quality(value) and picks the
// max, ties broken by first-seen order.
func highestQuality(values []candidateValue, validator Validator) (string, float64) {
	best := values[0]
	bestQ := score(best.value, validator)
	for _, v := range values[1:] {
		q := score(v.value, validator)
		if q > bestQ {
			best, bestQ = v, q
		}
	}
	return best.value, bestQ
}

// mostFrequent picks the majority value, ties broken by highestQuality
// among the tied values.
func mostFrequent(values []candidateValue, validator Validator) (string, float64) {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for _, v := range values {
		counts[v.value]++
		if _, ok := firstSeen[v.value]; !ok {
			firstSeen[v.value] = v.firstSeen
		}
	}

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}

	var tied []candidateValue
	for val, c := range counts {
		if c == maxCount {
			tied = append(tied, candidateValue{value: val, firstSeen: firstSeen[val]})
		}
	}
	sort.Slice(tied, func(i, j int) bool { return tied[i].firstSeen < tied[j].firstSeen })
	return highestQuality(tied, validator)
}

// mostCompleteWithQuality picks the longest value whose quality clears a
// minimum floor, ties broken by quality.
func mostCompleteWithQuality(values []candidateValue, validator Validator) (string, float64) {
	const minQuality = 0.5

	var eligible []candidateValue
	for _, v := range values {
		if score(v.value, validator) >= minQuality {
			eligible = append(eligible, v)
		}
	}
	if len(eligible) == 0 {
		eligible = values
	}

	best := eligible[0]
	bestQ := score(best.value, validator)
	for _, v := range eligible[1:] {
		q := score(v.value, validator)
		if len(v.value) > len(best.value) || (len(v.value) == len(best.value) && q > bestQ) {
			best, bestQ = v, q
		}
	}
	return best.value, bestQ
}

// score combines validator pass/fail with length-bounded, clean-text
// bonuses, highest_quality definition.
func score(value string, validator Validator) float64 {
	base := validator(value)
	if lengthOK(value) {
		base += 0.1
	}
	if !hasNonPrintable(value) {
		base += 0.1
	}
	if base > 1 {
		base = 1
	}
	return base
}

func lengthOK(s string) bool {
	return len(s) >= 2 && len(s) <= 256
}

func hasNonPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 && r != '\t' {
			return true
		}
	}
	return false
}

func neutralValidator(string) float64 { return 0.5 }

var (
	emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
 stateRe = regexp.MustCompile(`^[A-Z]{2}$`)
 zipRe = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
)

// defaultValidators returns the default validator set.
func defaultValidators() map[string]Validator {
 return map[string]Validator{
 "email": func(v string) float64 {
 if emailRe.MatchString(v) {
 return 1
 }
 return 0
 },
 "phone": func(v string) float64 {
 digits := valid.DigitsOnly(v)
 if len(digits) >= 10 && !isSentinelPhone(digits) {
 return 1
 }
 return 0
 },
 "zip": func(v string) float64 { return boolScore(zipRe.MatchString(v)) },
 "postal_code": func(v string) float64 { return boolScore(zipRe.MatchString(v)) },
 "state": func(v string) float64 { return boolScore(stateRe.MatchString(strings.ToUpper(v))) },
 }
}

func boolScore(ok bool) float64 {
 if ok {
 return 1
 }
 return 0
}

// isSentinelPhone rejects well-known placeholder numbers (e.g.
// 5555555555-style fills) that pass a bare digit-count check but are
// never a real phone number.
func isSentinelPhone(digits string) bool {
 if len(digits) == 0 {
 return false
 }
 first := digits[0]
 for i := 1; i < len(digits); i++ {
 if digits[i] != first {
 return false
 }
 }
 return true
}
