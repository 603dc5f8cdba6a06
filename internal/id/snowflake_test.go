package id

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsMonotonicAndUnique(t *testing.T) {
	seen := make(map[int64]struct{}, 1000)
	prev := New()
	for i := 0; i < 1000; i++ {
		next := New()
		require.Greater(t, next, prev)
		_, dup := seen[next]
		require.False(t, dup, "duplicate id %d", next)
		seen[next] = struct{}{}
		prev = next
	}
}

func TestInitRejectsOutOfRangeNode(t *testing.T) {
	assert.Error(t, Init(-1))
	assert.NoError(t, Init(7))
	assert.NotZero(t, New())
}
