package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "idem:inventory.order-paid:abc", Key("inventory.order-paid", "abc"))
}

func TestMemorySeenAfterMark(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)

	seen, err := m.Seen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, m.Mark(ctx, "k"))
	seen, err = m.Seen(ctx, "k")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryExpires(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Minute)
	now := time.Now()
	m.now = func() time.Time { return now }

	require.NoError(t, m.Mark(ctx, "k"))
	m.now = func() time.Time { return now.Add(2 * time.Minute) }

	seen, err := m.Seen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, seen)
}
