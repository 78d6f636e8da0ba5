package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOffer_DropOldestOnFull(t *testing.T) {
	t.Parallel()

	q := New[int](2)
	_, dropped := q.Offer(1)
	assert.False(t, dropped)
	_, dropped = q.Offer(2)
	assert.False(t, dropped)
	evicted, dropped := q.Offer(3)
	assert.True(t, dropped, "third offer should evict the oldest item")
	assert.Equal(t, 1, evicted)

	first, ok := q.TryPoll()
	require.True(t, ok)
	assert.Equal(t, 2, first, "oldest item should have been discarded")

	second, ok := q.TryPoll()
	require.True(t, ok)
	assert.Equal(t, 3, second)

	_, ok = q.TryPoll()
	assert.False(t, ok)
}

func TestOffer_BurstKeepsNewest(t *testing.T) {
	t.Parallel()

	q := New[int](2)
	for i := 0; i < 100; i++ {
		q.Offer(i)
	}

	// After a burst faster than the consumer, only the freshest items remain.
	first, ok := q.TryPoll()
	require.True(t, ok)
	assert.Equal(t, 98, first)

	second, ok := q.TryPoll()
	require.True(t, ok)
	assert.Equal(t, 99, second)
}

func TestPoll_TimesOutWhenEmpty(t *testing.T) {
	t.Parallel()

	q := New[string](1)
	start := time.Now()
	_, ok := q.Poll(20 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPoll_ReceivesQueuedItem(t *testing.T) {
	t.Parallel()

	q := New[string](1)
	q.Offer("frame")
	item, ok := q.Poll(time.Second)
	require.True(t, ok)
	assert.Equal(t, "frame", item)
}

func TestNew_MinimumCapacity(t *testing.T) {
	t.Parallel()

	q := New[int](0)
	assert.Equal(t, 1, q.Cap())
}
