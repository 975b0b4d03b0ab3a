package erstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBleveIndexSearchRanksByRelevance(t *testing.T) {
	idx, err := NewBleveIndex()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index("1", "123 Main Street Springfield IL"))
	require.NoError(t, idx.Index("2", "456 Oak Avenue Springfield IL"))
	require.NoError(t, idx.Index("3", "999 Nowhere Lane Anchorage AK"))

	hits, err := idx.Search("Main Street Springfield", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "1", hits[0].ID)
}

func TestBleveIndexDelete(t *testing.T) {
	idx, err := NewBleveIndex()
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index("1", "hello world"))
	require.NoError(t, idx.Delete("1"))

	hits, err := idx.Search("hello", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
