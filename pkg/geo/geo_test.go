package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineKnownDistance(t *testing.T) {
	// New York to Los Angeles is roughly 3940km.
	ny := Point{Lat: 40.7128, Lon: -74.0060}
	la := Point{Lat: 34.0522, Lon: -118.2437}
	d := HaversineKm(ny, la)
	assert.InDelta(t, 3940, d, 60)
}

func TestIndexNeighborsWithinRadius(t *testing.T) {
	ix := NewIndex()
	ix.Add("downtown", Point{Lat: 40.7128, Lon: -74.0060})
	ix.Add("nearby", Point{Lat: 40.72, Lon: -74.00})
	ix.Add("far", Point{Lat: 34.0522, Lon: -118.2437})

	neighbors := ix.Neighbors(Point{Lat: 40.7128, Lon: -74.0060}, 10)
	assert.Contains(t, neighbors, "downtown")
	assert.Contains(t, neighbors, "nearby")
	assert.NotContains(t, neighbors, "far")
}

func TestIndexCandidatePairsCanonicalOrder(t *testing.T) {
	ix := NewIndex()
	ix.Add("b", Point{Lat: 10, Lon: 10})
	ix.Add("a", Point{Lat: 10.001, Lon: 10.001})

	pairs := ix.CandidatePairs(5)
	assert.Len(t, pairs, 1)
	assert.Equal(t, "a", pairs[0][0])
	assert.Equal(t, "b", pairs[0][1])
}

func TestIndexRemove(t *testing.T) {
	ix := NewIndex()
	ix.Add("a", Point{Lat: 1, Lon: 1})
	assert.Equal(t, 1, ix.Len())
	ix.Remove("a")
	assert.Equal(t, 0, ix.Len())
	assert.Empty(t, ix.Neighbors(Point{Lat: 1, Lon: 1}, 100))
}
