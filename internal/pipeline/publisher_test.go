package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zdex/zdex-go/internal/detection"
)

func TestPublisher_PollReturnsOnlyNewBatches(t *testing.T) {
	t.Parallel()

	pub := NewPublisher()
	_, ok := pub.Poll()
	assert.False(t, ok, "empty publisher yields nothing")

	batch := &detection.Batch{FrameSeq: 1}
	pub.Publish(batch)

	polled, ok := pub.Poll()
	require.True(t, ok)
	assert.Equal(t, uint64(1), polled.FrameSeq)

	_, ok = pub.Poll()
	assert.False(t, ok, "batch must only be delivered once per publish")

	pub.Publish(&detection.Batch{FrameSeq: 2})
	polled, ok = pub.Poll()
	require.True(t, ok)
	assert.Equal(t, uint64(2), polled.FrameSeq)
}

func TestPublisher_LatestIgnoresPollState(t *testing.T) {
	t.Parallel()

	pub := NewPublisher()
	pub.Publish(&detection.Batch{FrameSeq: 7})
	_, ok := pub.Poll()
	require.True(t, ok)

	latest := pub.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, uint64(7), latest.FrameSeq)
}

func TestPublisher_NewerBatchReplacesUnpolled(t *testing.T) {
	t.Parallel()

	pub := NewPublisher()
	pub.Publish(&detection.Batch{FrameSeq: 1})
	pub.Publish(&detection.Batch{FrameSeq: 2})

	polled, ok := pub.Poll()
	require.True(t, ok)
	assert.Equal(t, uint64(2), polled.FrameSeq, "only the latest batch matters to the UI")
}
