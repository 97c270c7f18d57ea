package cursor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFromSortedEmpty(t *testing.T) {
	tr := BuildFromSorted(4, nil, 0.93)
	pos := tr.Descend(key(1), ModeExact, false)
	assert.False(t, pos.Found)
	pos.Release(false)
}

func TestBuildFromSortedSingleLeaf(t *testing.T) {
	var entries []Entry
	for i := int64(1); i <= 3; i++ {
		entries = append(entries, Entry{Key: key(i)})
	}
	tr := BuildFromSorted(8, entries, 0.93)
	assert.Equal(t, 1, tr.Height())
	for i := int64(1); i <= 3; i++ {
		pos := tr.Descend(key(i), ModeExact, false)
		assert.True(t, pos.Found)
		pos.Release(false)
	}
}

func TestBuildFromSortedMultiLevelPreservesOrderAndLinks(t *testing.T) {
	var entries []Entry
	for i := int64(1); i <= 50; i++ {
		entries = append(entries, Entry{Key: key(i)})
	}
	tr := BuildFromSorted(4, entries, 0.93)
	require.Greater(t, tr.Height(), 1)

	for i := int64(1); i <= 50; i++ {
		pos := tr.Descend(key(i), ModeExact, false)
		assert.True(t, pos.Found, "key %d", i)
		pos.Release(false)
	}

	// Walk the leaf chain and confirm it yields every key once, in order.
	var got []int64
	leaf := tr.FirstLeaf()
	for leaf != nil {
		LockShared(leaf)
		for _, e := range NodeEntries(leaf) {
			got = append(got, e.Key[0].Int)
		}
		next := leaf.Next()
		UnlockShared(leaf)
		leaf = next
	}
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, int64(i+1), v)
	}
}
