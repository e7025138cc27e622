package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "credreg/pkg/platform/audit"
)

func TestRingBufferDropsOldest(t *testing.T) {
	b := NewRingBuffer(2)
	assert.False(t, b.Enqueue(audit.Event{ID: "1"}))
	assert.False(t, b.Enqueue(audit.Event{ID: "2"}))
	assert.True(t, b.Enqueue(audit.Event{ID: "3"}))

	got := b.DequeueBatch(10)
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "3", got[1].ID)
	assert.Equal(t, int64(1), b.Dropped())
	assert.Zero(t, b.Len())
}

func TestRingBufferDequeueBatchBounds(t *testing.T) {
	b := NewRingBuffer(8)
	for _, id := range []string{"a", "b", "c"} {
		b.Enqueue(audit.Event{ID: id})
	}

	first := b.DequeueBatch(2)
	require.Len(t, first, 2)
	assert.Equal(t, "a", first[0].ID)
	assert.Equal(t, 1, b.Len())
	assert.Nil(t, NewRingBuffer(1).DequeueBatch(1))
}

func TestRingBufferSignalsReady(t *testing.T) {
	b := NewRingBuffer(4)
	b.Enqueue(audit.Event{ID: "x"})
	b.Enqueue(audit.Event{ID: "y"})

	select {
	case <-b.Ready():
	default:
		t.Fatal("expected ready signal")
	}
}
