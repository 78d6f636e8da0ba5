package pipeline

import (
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/detection"
	"github.com/zdex/zdex-go/internal/frame"
	"github.com/zdex/zdex-go/internal/queue"
)

// fakeEngine is a scriptable inference backend. It never touches the frame
// mat, so tests can use zero-value packets without camera hardware.
type fakeEngine struct {
	mu          sync.Mutex
	detectCalls int
	candidates  []detection.Candidate
	detectErr   error
	detectDelay time.Duration
	classify    detection.Classification
}

func (f *fakeEngine) Detect(_ gocv.Mat) ([]detection.Candidate, error) {
	f.mu.Lock()
	f.detectCalls++
	f.mu.Unlock()
	if f.detectDelay > 0 {
		time.Sleep(f.detectDelay)
	}
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.candidates, nil
}

func (f *fakeEngine) Classify(_ gocv.Mat, _ image.Rectangle) (detection.Classification, error) {
	return f.classify, nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detectCalls
}

func testSettings() conf.DetectionSettings {
	return conf.DetectionSettings{
		Interval:        time.Millisecond,
		QueueTimeout:    10 * time.Millisecond,
		ResultQueueSize: 2,
	}
}

func newPacket(seq uint64) *frame.Packet {
	return &frame.Packet{Seq: seq, Timestamp: time.Now()}
}

func startPipeline(t *testing.T, settings conf.DetectionSettings, engine detection.Engine, frames *queue.Queue[*frame.Packet]) *Pipeline {
	t.Helper()
	p := New(settings, engine, frames, nil, nil)
	p.Start()
	t.Cleanup(p.Stop)
	return p
}

func pollBatch(t *testing.T, p *Pipeline) *detection.Batch {
	t.Helper()
	batch, ok := p.Results().Poll(2 * time.Second)
	require.True(t, ok, "expected a batch before timeout")
	return batch
}

func TestInferenceRateGated(t *testing.T) {
	settings := testSettings()
	settings.Interval = time.Hour // only the first frame may trigger inference

	engine := &fakeEngine{}
	frames := queue.New[*frame.Packet](8)
	p := startPipeline(t, settings, engine, frames)

	for seq := uint64(1); seq <= 8; seq++ {
		frames.Offer(newPacket(seq))
	}

	pollBatch(t, p)
	// Give the loop time to drain the remaining frames.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, engine.calls(), "inference must be rate-gated, not frame-gated")
}

func TestInferenceErrorIsolated(t *testing.T) {
	engine := &fakeEngine{detectErr: errors.New("accelerator hiccup")}
	frames := queue.New[*frame.Packet](8)
	p := startPipeline(t, testSettings(), engine, frames)

	frames.Offer(newPacket(1))
	batch := pollBatch(t, p)
	assert.True(t, batch.Empty(), "failed inference must publish an empty batch")

	// The loop must survive the failure and keep processing frames.
	time.Sleep(5 * time.Millisecond)
	frames.Offer(newPacket(2))
	batch = pollBatch(t, p)
	assert.Equal(t, uint64(2), batch.FrameSeq)
	assert.GreaterOrEqual(t, engine.calls(), 2)
}

func TestBatchesPublishedInFrameOrder(t *testing.T) {
	engine := &fakeEngine{}
	frames := queue.New[*frame.Packet](16)
	settings := testSettings()
	settings.Interval = time.Microsecond
	settings.ResultQueueSize = 16
	p := startPipeline(t, settings, engine, frames)

	var lastSeq uint64
	for seq := uint64(1); seq <= 5; seq++ {
		frames.Offer(newPacket(seq))
		batch := pollBatch(t, p)
		assert.Greater(t, batch.FrameSeq, lastSeq, "batches must preserve source order")
		lastSeq = batch.FrameSeq
	}
}

func TestLatencyExcludesQueueWait(t *testing.T) {
	engine := &fakeEngine{detectDelay: 30 * time.Millisecond}
	frames := queue.New[*frame.Packet](2)

	// The frame waits in the queue well before the pipeline starts; the
	// reported latency must only cover the engine invocation.
	frames.Offer(newPacket(1))
	time.Sleep(100 * time.Millisecond)

	p := startPipeline(t, testSettings(), engine, frames)
	batch := pollBatch(t, p)
	assert.GreaterOrEqual(t, batch.Latency, 30*time.Millisecond)
	assert.Less(t, batch.Latency, 90*time.Millisecond,
		"latency must not include time spent waiting in the frame queue")
}

func TestResultQueueDropsOldest(t *testing.T) {
	engine := &fakeEngine{
		candidates: []detection.Candidate{{Box: image.Rect(0, 0, 10, 10), Confidence: 0.8}},
		classify:   detection.Classification{SpeciesID: "uuid-dog", CommonName: "Dog", Score: 0.95},
	}
	frames := queue.New[*frame.Packet](16)
	settings := testSettings()
	settings.Interval = time.Microsecond
	settings.ResultQueueSize = 2
	p := New(settings, engine, frames, nil, nil)
	p.Start()
	defer p.Stop()

	// No consumer, so the result queue overflows and must keep the newest.
	for seq := uint64(1); seq <= 6; seq++ {
		frames.Offer(newPacket(seq))
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return p.Results().Len() == 2 },
		time.Second, 5*time.Millisecond)
	p.Stop()

	first, ok := p.Results().TryPoll()
	require.True(t, ok)
	second, ok := p.Results().TryPoll()
	require.True(t, ok)
	assert.Equal(t, uint64(5), first.FrameSeq)
	assert.Equal(t, uint64(6), second.FrameSeq)
}

func TestBatchResultsSortedByScore(t *testing.T) {
	engine := &scoringEngine{}
	frames := queue.New[*frame.Packet](2)
	p := startPipeline(t, testSettings(), engine, frames)

	frames.Offer(newPacket(1))
	batch := pollBatch(t, p)
	require.Len(t, batch.Results, 3)
	assert.Equal(t, "uuid-best", batch.Top().Classification.SpeciesID)
	assert.GreaterOrEqual(t, batch.Results[0].Classification.Score, batch.Results[1].Classification.Score)
	assert.GreaterOrEqual(t, batch.Results[1].Classification.Score, batch.Results[2].Classification.Score)
}

func TestBatchResultsCappedAtTopK(t *testing.T) {
	engine := &scoringEngine{}
	frames := queue.New[*frame.Packet](2)
	settings := testSettings()
	settings.TopK = 2
	p := startPipeline(t, settings, engine, frames)

	frames.Offer(newPacket(1))
	batch := pollBatch(t, p)
	require.Len(t, batch.Results, 2, "batches keep only the top-scored hypotheses")
	assert.Equal(t, "uuid-best", batch.Results[0].Classification.SpeciesID)
	assert.Equal(t, "uuid-mid", batch.Results[1].Classification.SpeciesID)
}

// scoringEngine returns candidates whose classification scores arrive
// unsorted, to exercise the pipeline's ordering of results.
type scoringEngine struct{ call int }

func (s *scoringEngine) Detect(_ gocv.Mat) ([]detection.Candidate, error) {
	return []detection.Candidate{
		{Box: image.Rect(0, 0, 10, 10), ClassID: 1, Confidence: 0.5},
		{Box: image.Rect(0, 0, 20, 20), ClassID: 2, Confidence: 0.6},
		{Box: image.Rect(0, 0, 30, 30), ClassID: 3, Confidence: 0.7},
	}, nil
}

func (s *scoringEngine) Classify(_ gocv.Mat, box image.Rectangle) (detection.Classification, error) {
	switch box.Dx() {
	case 10:
		return detection.Classification{SpeciesID: "uuid-mid", Score: 0.5}, nil
	case 20:
		return detection.Classification{SpeciesID: "uuid-best", Score: 0.9}, nil
	default:
		return detection.Classification{SpeciesID: "uuid-low", Score: 0.2}, nil
	}
}

func (s *scoringEngine) Close() error { return nil }
