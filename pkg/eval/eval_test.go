package eval

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityresolve/er/pkg/model"
)

func groundTruth() []model.GroundTruthPair {
	return []model.GroundTruthPair{
		{AID: "a", BID: "b", IsMatch: true},
		{AID: "a", BID: "c", IsMatch: true},
		{AID: "b", BID: "d", IsMatch: false},
	}
}

func TestEvaluateComputesPrecisionRecallF1(t *testing.T) {
	candidates := []model.CandidatePair{
		model.NewPair("a", "b", "baseline"),
		model.NewPair("b", "d", "baseline"),
	}
	m := Evaluate("baseline", candidates, groundTruth(), 10, 100*time.Millisecond)

	assert.Equal(t, 1, m.TruePositives)
	assert.Equal(t, 1, m.FalsePositives)
	assert.Equal(t, 1, m.FalseNegatives)
	assert.InDelta(t, 0.5, m.Precision, 1e-9)
	assert.InDelta(t, 0.5, m.Recall, 1e-9)
	assert.InDelta(t, 0.5, m.F1, 1e-9)
	assert.Greater(t, m.ReductionRatio, 0.0)
	assert.Greater(t, m.ThroughputPerSec, 0.0)
}

func TestEvaluatePerfectRecallFindsAllTruePairs(t *testing.T) {
	candidates := []model.CandidatePair{
		model.NewPair("a", "b", "hybrid"),
		model.NewPair("a", "c", "hybrid"),
	}
	m := Evaluate("hybrid", candidates, groundTruth(), 10, 50*time.Millisecond)
	assert.Equal(t, 2, m.TruePositives)
	assert.Equal(t, 0, m.FalseNegatives)
	assert.InDelta(t, 1.0, m.Recall, 1e-9)
	assert.InDelta(t, 1.0, m.Precision, 1e-9)
	assert.InDelta(t, 1.0, m.F1, 1e-9)
}

func TestCompareReportsPositiveDeltaWhenHybridImproves(t *testing.T) {
	baseline := Evaluate("baseline", []model.CandidatePair{
		model.NewPair("a", "b", "baseline"),
	}, groundTruth(), 10, 100*time.Millisecond)
	hybrid := Evaluate("hybrid", []model.CandidatePair{
		model.NewPair("a", "b", "hybrid"),
		model.NewPair("a", "c", "hybrid"),
	}, groundTruth(), 10, 100*time.Millisecond)

	report := Compare(baseline, hybrid)
	require.Contains(t, report.Deltas, "recall")
	assert.Greater(t, report.Deltas["recall"], 0.0)
}

func TestWriteJSONAndCSVProduceParsableOutput(t *testing.T) {
	baseline := Evaluate("baseline", nil, groundTruth(), 10, time.Second)
	hybrid := Evaluate("hybrid", []model.CandidatePair{model.NewPair("a", "b", "hybrid")}, groundTruth(), 10, time.Second)
	report := Compare(baseline, hybrid)

	var jsonBuf bytes.Buffer
	require.NoError(t, WriteJSON(&jsonBuf, report))
	assert.Contains(t, jsonBuf.String(), `"baseline"`)

	var csvBuf bytes.Buffer
	require.NoError(t, WriteCSV(&csvBuf, report))
	lines := strings.Split(strings.TrimSpace(csvBuf.String()), "\n")
	assert.GreaterOrEqual(t, len(lines), 3)
	assert.Equal(t, "strategy,precision,recall,f1,reduction_ratio,pairs_completeness,throughput_per_sec,candidate_count", lines[0])
}

func TestPctChangeFromZeroBaseline(t *testing.T) {
	assert.Equal(t, 0.0, pctChange(0, 0))
	assert.Equal(t, 100.0, pctChange(0, 1))
}
