// Package pipeline implements the core detection loop: it pulls the
// freshest frame from the source queue, rate-limits inference invocations,
// runs the engine, and publishes immutable detection batches to a bounded
// result queue. Per-frame failures are isolated so the loop never dies.
package pipeline

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/detection"
	"github.com/zdex/zdex-go/internal/frame"
	"github.com/zdex/zdex-go/internal/logging"
	"github.com/zdex/zdex-go/internal/metrics"
	"github.com/zdex/zdex-go/internal/observability"
	"github.com/zdex/zdex-go/internal/queue"
)

// Pipeline consumes camera frames and emits detection batches. It owns a
// single dedicated goroutine; at most one inference call is in flight at any
// time, which bounds accelerator contention independent of camera FPS.
type Pipeline struct {
	settings conf.DetectionSettings
	engine   detection.Engine
	frames   *queue.Queue[*frame.Packet]
	results  *queue.Queue[*detection.Batch]
	recorder *metrics.Recorder
	obs      *observability.PipelineMetrics
	log      *slog.Logger

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	lastInference time.Time
	lastSeq       uint64

	snapshotMu sync.Mutex
	snapshot   gocv.Mat
	hasSnap    bool
}

// New creates a pipeline reading from frames. The result queue is created
// with the configured capacity; only the latest batches matter downstream.
func New(
	settings conf.DetectionSettings,
	engine detection.Engine,
	frames *queue.Queue[*frame.Packet],
	recorder *metrics.Recorder,
	obs *observability.PipelineMetrics,
) *Pipeline {
	return &Pipeline{
		settings: settings,
		engine:   engine,
		frames:   frames,
		results:  queue.New[*detection.Batch](settings.ResultQueueSize),
		recorder: recorder,
		obs:      obs,
		log:      logging.ForService("pipeline"),
	}
}

// Results returns the bounded result queue fed by the detection loop.
func (p *Pipeline) Results() *queue.Queue[*detection.Batch] {
	return p.results
}

// Start launches the detection goroutine.
func (p *Pipeline) Start() {
	if !p.running.CompareAndSwap(false, true) {
		p.log.Warn("pipeline already running")
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.loop()
	p.log.Info("detection pipeline started",
		"interval", p.settings.Interval, "result_queue", p.settings.ResultQueueSize)
}

// Stop signals the detection goroutine and waits for it with a bounded
// timeout.
func (p *Pipeline) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.stop)
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		p.log.Warn("detection goroutine did not stop within timeout")
	}
	p.releaseSnapshot()
	p.log.Info("detection pipeline stopped")
}

func (p *Pipeline) loop() {
	defer close(p.done)

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		packet, ok := p.frames.Poll(p.settings.QueueTimeout)
		if !ok {
			continue
		}

		// Frame sequence numbers strictly increase; a stale packet would
		// mean the single-consumer invariant was broken somewhere.
		if packet.Seq <= p.lastSeq {
			p.log.Error("out-of-order frame discarded", "seq", packet.Seq, "last_seq", p.lastSeq)
			packet.Close()
			continue
		}
		p.lastSeq = packet.Seq

		// Inference is rate-gated, not frame-gated: skip frames arriving
		// faster than the configured interval.
		if time.Since(p.lastInference) < p.settings.Interval {
			packet.Close()
			continue
		}
		p.lastInference = time.Now()

		batch := p.infer(packet)
		p.storeSnapshot(packet)
		packet.Close()

		if _, dropped := p.results.Offer(batch); dropped && p.obs != nil {
			p.obs.DroppedBatches.Inc()
		}
	}
}

// infer runs one detect+classify pass. The reported latency covers only the
// engine invocation, never time spent waiting in the frame queue. Any engine
// error is recovered locally and yields an empty batch.
func (p *Pipeline) infer(packet *frame.Packet) *detection.Batch {
	start := time.Now()
	candidates, err := p.engine.Detect(packet.Image)
	if err != nil {
		return p.recoverInference(packet, err, time.Since(start))
	}

	results := make([]detection.Result, 0, len(candidates))
	for i := range candidates {
		classification, err := p.engine.Classify(packet.Image, candidates[i].Box)
		if err != nil {
			return p.recoverInference(packet, err, time.Since(start))
		}
		results = append(results, detection.Result{
			Candidate:      candidates[i],
			Classification: classification,
		})
	}
	latency := time.Since(start)

	slices.SortFunc(results, func(a, b detection.Result) int {
		switch {
		case a.Classification.Score > b.Classification.Score:
			return -1
		case a.Classification.Score < b.Classification.Score:
			return 1
		default:
			return 0
		}
	})
	// Only the best few hypotheses matter downstream; a busy frame should
	// not inflate batches with low-scored duplicates.
	if p.settings.TopK > 0 && len(results) > p.settings.TopK {
		results = results[:p.settings.TopK]
	}

	batch := &detection.Batch{
		FrameSeq:  packet.Seq,
		FrameTime: packet.Timestamp,
		Latency:   latency,
		Timestamp: time.Now(),
		Results:   results,
	}

	p.recordBatch(batch)
	return batch
}

// recoverInference logs an engine failure and produces an empty batch so
// downstream consumers stay responsive. The loop must never terminate
// because of a single bad inference call.
func (p *Pipeline) recoverInference(packet *frame.Packet, err error, elapsed time.Duration) *detection.Batch {
	p.log.Error("inference failed, treating as zero detections",
		"error", err, "frame_seq", packet.Seq)
	if p.obs != nil {
		p.obs.InferenceTotal.Inc()
		p.obs.InferenceErrors.Inc()
	}
	if p.recorder != nil {
		p.recorder.LogLatency("inference_error", elapsed, map[string]any{
			"frame_seq": packet.Seq,
			"error":     err.Error(),
		})
	}
	return &detection.Batch{
		FrameSeq:  packet.Seq,
		FrameTime: packet.Timestamp,
		Latency:   elapsed,
		Timestamp: time.Now(),
	}
}

func (p *Pipeline) recordBatch(batch *detection.Batch) {
	if p.obs != nil {
		p.obs.InferenceTotal.Inc()
		p.obs.InferenceDuration.Observe(batch.Latency.Seconds())
		for i := range batch.Results {
			p.obs.DetectionCounter.WithLabelValues(batch.Results[i].Classification.CommonName).Inc()
		}
	}
	if p.recorder == nil {
		return
	}

	latencyMs := float64(batch.Latency.Microseconds()) / 1000.0
	p.recorder.LogLatency("inference", batch.Latency, map[string]any{
		"detections": len(batch.Results),
		"frame_seq":  batch.FrameSeq,
	})
	for i := range batch.Results {
		r := &batch.Results[i]
		p.recorder.LogDetection(metrics.DetectionEvent{
			SpeciesID:           r.Classification.SpeciesID,
			SpeciesName:         r.Classification.CommonName,
			DetectionConfidence: r.Candidate.Confidence,
			ClassificationScore: r.Classification.Score,
			LatencyMs:           latencyMs,
			BBoxArea:            r.Candidate.Area(),
			DetectionsInFrame:   len(batch.Results),
		})
	}
}

// storeSnapshot keeps a copy of the most recently processed frame so a
// capture can persist the image it was decided on.
func (p *Pipeline) storeSnapshot(packet *frame.Packet) {
	if packet.Image.Ptr() == nil || packet.Image.Empty() {
		return
	}
	clone := packet.Image.Clone()
	p.snapshotMu.Lock()
	if p.hasSnap {
		_ = p.snapshot.Close()
	}
	p.snapshot = clone
	p.hasSnap = true
	p.snapshotMu.Unlock()
}

// WriteSnapshot writes the most recent processed frame as an image file.
// Returns false if no frame has been processed yet or the write failed.
func (p *Pipeline) WriteSnapshot(path string) bool {
	p.snapshotMu.Lock()
	defer p.snapshotMu.Unlock()
	if !p.hasSnap {
		return false
	}
	if ok := gocv.IMWrite(path, p.snapshot); !ok {
		p.log.Error("failed to write capture image", "path", path)
		return false
	}
	return true
}

func (p *Pipeline) releaseSnapshot() {
	p.snapshotMu.Lock()
	defer p.snapshotMu.Unlock()
	if p.hasSnap {
		_ = p.snapshot.Close()
		p.hasSnap = false
	}
}
