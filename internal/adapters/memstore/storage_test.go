package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorage(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v"))
	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	snap := s.Snapshot()
	snap["k"] = "mutated"
	v, _, _ = s.Get(ctx, "k")
	assert.Equal(t, "v", v)

	require.NoError(t, s.Remove(ctx, "k"))
	assert.Empty(t, s.Snapshot())
}
