package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDeduper(t *testing.T) {
	d := NewMemory(time.Minute)
	ctx := context.Background()

	seen, err := d.Seen(ctx, "chan:msg-1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = d.Seen(ctx, "chan:msg-1")
	require.NoError(t, err)
	assert.True(t, seen)

	seen, err = d.Seen(ctx, "chan:msg-2")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestMemoryDeduperExpiry(t *testing.T) {
	d := NewMemory(time.Minute)
	now := time.Now()
	d.now = func() time.Time { return now }

	seen, err := d.Seen(context.Background(), "k")
	require.NoError(t, err)
	require.False(t, seen)

	now = now.Add(2 * time.Minute)
	seen, err = d.Seen(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, seen)
}
