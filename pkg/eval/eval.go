// Package eval implements the A/B evaluation harness:
// given a ground-truth pair set and two named blocking-strategy
// candidate sets, compute precision/recall/F1 and related blocking
// metrics for each and report the deltas. Implemented directly from
// formulas: the original Python implementation's
// evaluation module did not survive the retrieval filter (see
// DESIGN.md), so there is no prior file to ground this against beyond
// the design itself.
package eval

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"time"

	"github.com/entityresolve/er/pkg/model"
)

// Metrics is the per-strategy evaluation result.
type Metrics struct {
	Name string `json:"name"`
 TruePositives int `json:"true_positives"`
 FalsePositives int `json:"false_positives"`
 FalseNegatives int `json:"false_negatives"`
 Precision float64 `json:"precision"`
 Recall float64 `json:"recall"`
 F1 float64 `json:"f1"`
 ReductionRatio float64 `json:"reduction_ratio"`
 PairsCompleteness float64 `json:"pairs_completeness"`
 ThroughputPerSec float64 `json:"throughput_candidates_per_sec"`
 CandidateCount int `json:"candidate_count"`
 Elapsed time.Duration `json:"-"`
 ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Report pairs two Metrics runs (baseline vs. hybrid, or any two named
// strategies) with the percent-change deltas between them.
type Report struct {
 Baseline Metrics `json:"baseline"`
 Hybrid Metrics `json:"hybrid"`
 Deltas map[string]float64 `json:"deltas"`
}

// Evaluate scores one strategy's candidate pair set against ground
// truth, given the total universe size n (used for the reduction-ratio
// denominator n*(n-1)/2) and how long candidate generation took.
func Evaluate(name string, candidates []model.CandidatePair, groundTruth []model.GroundTruthPair, n int, elapsed time.Duration) Metrics {
 truth := make(map[string]bool, len(groundTruth))
 for _, g := range groundTruth {
 truth[g.Key()] = g.IsMatch
 }

 candidateKeys := make(map[string]struct{}, len(candidates))
 for _, c := range candidates {
 candidateKeys[c.Key()] = struct{}{}
 }

 var tp, fp int
 for key := range candidateKeys {
 if isMatch, known := truth[key]; known && isMatch {
 tp++
 } else {
 fp++
 }
 }

 var fn int
 for key, isMatch := range truth {
 if !isMatch {
 continue
 }
 if _, inCandidates := candidateKeys[key]; !inCandidates {
 fn++
 }
 }

 m := Metrics{
 Name: name,
 TruePositives: tp,
 FalsePositives: fp,
 FalseNegatives: fn,
 CandidateCount: len(candidates),
 Elapsed: elapsed,
 ElapsedSeconds: elapsed.Seconds(),
 }

 if tp+fp > 0 {
 m.Precision = float64(tp) / float64(tp+fp)
 }
 if tp+fn > 0 {
 m.Recall = float64(tp) / float64(tp+fn)
 m.PairsCompleteness = m.Recall
 }
 if m.Precision+m.Recall > 0 {
 m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
 }
 if n > 1 {
 totalPairs := float64(n) * float64(n-1) / 2
 m.ReductionRatio = 1 - float64(len(candidates))/totalPairs
 }
 if secs := elapsed.Seconds(); secs > 0 {
 m.ThroughputPerSec = float64(len(candidates)) / secs
 }
 return m
}

// Compare builds a Report from two independently-evaluated strategies,
// computing percent-change deltas (hybrid relative to baseline) for
// precision, recall, F1, reduction ratio and throughput.
func Compare(baseline, hybrid Metrics) Report {
 deltas := map[string]float64{
 "precision": pctChange(baseline.Precision, hybrid.Precision),
 "recall": pctChange(baseline.Recall, hybrid.Recall),
 "f1": pctChange(baseline.F1, hybrid.F1),
 "reduction_ratio": pctChange(baseline.ReductionRatio, hybrid.ReductionRatio),
 "throughput": pctChange(baseline.ThroughputPerSec, hybrid.ThroughputPerSec),
 }
 return Report{Baseline: baseline, Hybrid: hybrid, Deltas: deltas}
}

func pctChange(before, after float64) float64 {
 if before == 0 {
 if after == 0 {
 return 0
 }
 return 100
 }
 return (after - before) / before * 100
}

// WriteJSON writes r as a machine-readable JSON report.
func WriteJSON(w io.Writer, r Report) error {
 enc := json.NewEncoder(w)
 enc.SetIndent("", " ")
 return enc.Encode(r)
}

// WriteCSV writes a flat CSV with one row per strategy plus per-metric
// deltas and percent changes,.
func WriteCSV(w io.Writer, r Report) error {
 cw := csv.NewWriter(w)
 defer cw.Flush()

 header := []string{"strategy", "precision", "recall", "f1", "reduction_ratio", "pairs_completeness", "throughput_per_sec", "candidate_count"}
 if err := cw.Write(header); err != nil {
 return err
 }
 for _, m := range []Metrics{r.Baseline, r.Hybrid} {
 if err := cw.Write(metricsRow(m)); err != nil {
 return err
 }
 }

 deltaHeader := []string{"metric", "delta", "percent_change"}
 if err := cw.Write(deltaHeader); err != nil {
 return err
 }
 abs := map[string]float64{
 "precision": r.Hybrid.Precision - r.Baseline.Precision,
 "recall": r.Hybrid.Recall - r.Baseline.Recall,
 "f1": r.Hybrid.F1 - r.Baseline.F1,
 "reduction_ratio": r.Hybrid.ReductionRatio - r.Baseline.ReductionRatio,
 "throughput": r.Hybrid.ThroughputPerSec - r.Baseline.ThroughputPerSec,
 }
 for _, k := range []string{"precision", "recall", "f1", "reduction_ratio", "throughput"} {
 if err := cw.Write([]string{k, formatFloat(abs[k]), formatFloat(r.Deltas[k])}); err != nil {
 return err
 }
 }
 return nil
}

func metricsRow(m Metrics) []string {
 return []string{
 m.Name,
 formatFloat(m.Precision),
 formatFloat(m.Recall),
 formatFloat(m.F1),
 formatFloat(m.ReductionRatio),
 formatFloat(m.PairsCompleteness),
 formatFloat(m.ThroughputPerSec),
 formatFloat(float64(m.CandidateCount)),
 }
}

func formatFloat(f float64) string {
 return jsonNumber(f)
}

func jsonNumber(f float64) string {
 b, _ := json.Marshal(f)
 return string(b)
}
