package simil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entityresolve/er/pkg/valid"
)

func TestJaroWinkler(t *testing.T) {
	require.InDelta(t, 1.0, JaroWinkler("martha", "martha"), 1e-9)
	require.Greater(t, JaroWinkler("martha", "marhta"), 0.9)
	require.InDelta(t, 0.0, JaroWinkler("", "x"), 1e-9)
}

func TestLevenshtein(t *testing.T) {
	require.InDelta(t, 1.0, Levenshtein("kitten", "kitten"), 1e-9)
	require.InDelta(t, 1-3.0/7.0, Levenshtein("kitten", "sitting"), 1e-9)
}

func TestJaccard(t *testing.T) {
	require.InDelta(t, 0.5, Jaccard("a b c", "a b d"), 1e-9)
	require.InDelta(t, 1.0, Jaccard("", ""), 1e-9)
}

func TestSoundex(t *testing.T) {
	require.Equal(t, Soundex("Robert"), Soundex("Rupert"))
	require.Equal(t, "R163", Soundex("Robert"))
}

func TestKernelScenarioA(t *testing.T) {
	k := New(AlgoJaroWinkler, []FieldWeight{{Field: "name", Weight: 1.0}}, valid.NullSkip, valid.NormalizeOptions{Lower: true, Strip: true})

	r1 := map[string]any{"name": "John Smith"}
	r2 := map[string]any{"name": "Jon Smith"}
	score, fields := k.Score(r1, r2)
	assert.GreaterOrEqual(t, score, 0.75)
	assert.Contains(t, fields, "name")
}

func TestKernelNullModes(t *testing.T) {
	fields := []FieldWeight{{Field: "a", Weight: 1}, {Field: "b", Weight: 1}}

	skip := New(AlgoLevenshtein, fields, valid.NullSkip, valid.NormalizeOptions{})
	score, _ := skip.Score(map[string]any{"a": "x"}, map[string]any{"a": "x"})
	assert.InDelta(t, 1.0, score, 1e-9)

	zero := New(AlgoLevenshtein, fields, valid.NullZero, valid.NormalizeOptions{})
	score, fs := zero.Score(map[string]any{"a": "x"}, map[string]any{"a": "x"})
	assert.InDelta(t, 0.5, score, 1e-9)
	assert.Equal(t, 0.0, fs["b"])

	def := New(AlgoLevenshtein, fields, valid.NullDefault, valid.NormalizeOptions{})
	score, _ = def.Score(map[string]any{"a": "x"}, map[string]any{"a": "x", "b": ""})
	assert.InDelta(t, 1.0, score, 1e-9)
}

func TestKernelDottedPath(t *testing.T) {
	k := New(AlgoJaroWinkler, []FieldWeight{{Field: "address.city", Weight: 1}}, valid.NullSkip, valid.NormalizeOptions{Lower: true})
	a := map[string]any{"address": map[string]any{"city": "Austin"}}
	b := map[string]any{"address": map[string]any{"city": "Austin"}}
	score, _ := k.Score(a, b)
	assert.InDelta(t, 1.0, score, 1e-9)
}
