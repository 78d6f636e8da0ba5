// Package realtime wires the camera, detection pipeline, tracker and
// capture coordinator into one running system and owns their lifecycle.
//
// Ownership is strict: the camera goroutine produces frame packets, the
// pipeline goroutine consumes them and produces batches, and a single
// dispatcher goroutine consumes batches and drives the tracker. Capture
// decisions flow from the dispatcher into the coordinator; everything
// downstream of a capture (persistence, stats, notifications) happens on
// the dispatcher goroutine except bus delivery, which is asynchronous.
package realtime

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zdex/zdex-go/internal/capture"
	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/datastore"
	"github.com/zdex/zdex-go/internal/detection"
	"github.com/zdex/zdex-go/internal/enrich"
	"github.com/zdex/zdex-go/internal/errors"
	"github.com/zdex/zdex-go/internal/events"
	"github.com/zdex/zdex-go/internal/frame"
	"github.com/zdex/zdex-go/internal/gamify"
	"github.com/zdex/zdex-go/internal/logging"
	"github.com/zdex/zdex-go/internal/metrics"
	"github.com/zdex/zdex-go/internal/mqtt"
	"github.com/zdex/zdex-go/internal/observability"
	"github.com/zdex/zdex-go/internal/pipeline"
	"github.com/zdex/zdex-go/internal/tracker"
)

// Status is a point-in-time snapshot of the running system, safe to hand
// to UI consumers.
type Status struct {
	State              string
	Species            string
	Streak             int
	CountdownRemaining time.Duration
	LatestBatch        *detection.Batch
	SmoothedTop        *detection.Result
	DroppedFrames      uint64
	TotalCaptures      int
	CameraHealthy      bool
}

// Runner owns the full detection-to-capture system.
type Runner struct {
	settings *conf.Settings

	source      *frame.Source
	pipe        *pipeline.Pipeline
	track       *tracker.Tracker
	smooth      *tracker.Smoother
	publisher   *pipeline.Publisher
	store       capture.Store
	game        *gamify.System
	coordinator *capture.Coordinator
	recorder    *metrics.Recorder
	obs         *observability.Metrics
	bus         *events.Bus
	enricher    *enrich.Client
	mqttPub     *mqtt.Publisher
	log         *slog.Logger

	location string

	manual  chan struct{}
	stop    chan struct{}
	done    chan struct{}
	running atomic.Bool

	// statusMu guards the tracker and the smoothed display result, which
	// are written by the dispatcher goroutine and read by Status callers.
	statusMu sync.Mutex
	smoothed *detection.Result
}

// New builds a runner from settings and an inference engine. The engine is
// injected so hardware-specific backends stay out of this package.
func New(settings *conf.Settings, engine detection.Engine) (*Runner, error) {
	recorder, err := metrics.NewRecorder(settings.Metrics.EventLogPath)
	if err != nil {
		return nil, err
	}

	obs, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	store, err := datastore.Open(settings.Capture.DBPath)
	if err != nil {
		return nil, err
	}

	game := gamify.NewSystem(settings.Capture.StatsPath, settings.Capture.AchievementPath)
	bus := events.NewBus(64, 2)
	coordinator := capture.NewCoordinator(settings.Capture, store, game, recorder, obs.Capture, bus)

	source := frame.NewSource(settings.Camera)
	pipe := pipeline.New(settings.Detection, engine, source.Queue(), recorder, obs.Pipeline)

	r := &Runner{
		settings:    settings,
		source:      source,
		pipe:        pipe,
		track:       tracker.New(settings.Tracking),
		smooth:      tracker.NewSmoother(settings.Tracking.SmoothingWindow),
		publisher:   pipeline.NewPublisher(),
		store:       store,
		game:        game,
		coordinator: coordinator,
		recorder:    recorder,
		obs:         obs,
		bus:         bus,
		enricher:    enrich.NewClient(settings.Enrichment),
		location:    settings.Capture.DefaultLocation,
		log:         logging.ForService("realtime"),
		manual:      make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	if settings.MQTT.Enabled {
		r.mqttPub = mqtt.NewPublisher(settings.MQTT, settings.Main.Name)
		bus.Subscribe(r.mqttPub)
	}

	return r, nil
}

// Start brings the system up: camera first, then pipeline, then the batch
// dispatcher. Returns an error when the camera cannot be opened.
func (r *Runner) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}

	if err := os.MkdirAll(r.settings.Capture.ImageDir, 0o755); err != nil {
		r.running.Store(false)
		return err
	}

	if err := r.coordinator.Rehydrate(); err != nil {
		// Stale cooldowns are an availability tradeoff, not a startup
		// failure.
		r.log.Warn("capture history rehydration failed", "error", err)
	}

	if loc := r.enricher.Locate(ctx, r.settings.Capture.DefaultLocation); loc != "" {
		r.location = loc
	}

	if r.mqttPub != nil {
		if err := r.mqttPub.Connect(); err != nil {
			r.log.Warn("mqtt unavailable, notifications disabled for this run", "error", err)
		}
	}
	r.bus.Start()

	if r.settings.Metrics.Prometheus {
		go func() {
			if err := r.obs.Serve(r.settings.Metrics.Listen); err != nil {
				r.log.Error("metrics endpoint failed", "error", err)
			}
		}()
	}

	if err := r.source.Start(); err != nil {
		r.running.Store(false)
		return err
	}
	r.pipe.Start()
	r.bus.Publish(events.TypeCameraStatus, "started")

	go r.dispatch()
	r.log.Info("realtime system started",
		"camera", r.settings.Camera.DeviceID, "location", r.location)
	return nil
}

// RequestCapture asks the dispatcher to attempt a manual capture of the
// currently tracked species. Non-blocking; returns false when a request is
// already pending.
func (r *Runner) RequestCapture() bool {
	if !r.running.Load() {
		return false
	}
	select {
	case r.manual <- struct{}{}:
		return true
	default:
		return false
	}
}

// dispatch is the single consumer of the pipeline's result queue. It owns
// the tracker and the smoother.
func (r *Runner) dispatch() {
	defer close(r.done)

	lost := r.source.Lost()
	for {
		select {
		case <-r.stop:
			return
		case <-lost:
			lost = nil
			r.log.Error("camera lost mid-stream, waiting for restart")
			r.bus.Publish(events.TypeCameraStatus, "lost")
			continue
		case <-r.manual:
			r.statusMu.Lock()
			req := r.track.RequestManualCapture()
			r.statusMu.Unlock()
			if req != nil {
				r.handleCapture(req)
			} else {
				r.log.Info("manual capture ignored, nothing tracked")
			}
			continue
		default:
		}

		batch, ok := r.pipe.Results().Poll(r.settings.Detection.QueueTimeout)
		if !ok {
			continue
		}

		r.publisher.Publish(batch)
		smoothed := r.smooth.Add(batch.Top())

		r.statusMu.Lock()
		r.smoothed = smoothed
		req := r.track.Observe(batch)
		r.statusMu.Unlock()

		if req != nil {
			r.handleCapture(req)
		}
	}
}

// handleCapture turns a tracker decision into a persisted capture: write
// the frame snapshot, record through the coordinator, then kick off the
// background summary lookup.
func (r *Runner) handleCapture(req *tracker.CaptureRequest) {
	imagePath := filepath.Join(r.settings.Capture.ImageDir,
		fmt.Sprintf("%s_%d.jpg", req.SpeciesID, time.Now().UnixNano()))
	if !r.pipe.WriteSnapshot(imagePath) {
		imagePath = ""
	}

	event, err := r.coordinator.Capture(&capture.Request{
		SpeciesID:      req.SpeciesID,
		PredictedName:  req.CommonName,
		ScientificName: req.ScientificName,
		Confidence:     req.Confidence,
		Score:          req.Score,
		Location:       r.location,
		Auto:           req.Auto,
		ImagePath:      imagePath,
		BatchTime:      req.BatchTime,
	})
	if err != nil {
		if errors.Is(err, errors.ErrDuplicateCapture) {
			r.log.Debug("capture suppressed by cooldown", "species", req.CommonName)
		} else {
			r.log.Error("capture failed", "species", req.CommonName, "error", err)
		}
		return
	}

	// Summary lookup is slow network I/O; never on the dispatcher path.
	go func(scientificName string) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if summary, err := r.enricher.Summary(ctx, scientificName); err == nil && summary != nil {
			r.log.Info("species summary",
				"species", summary.Title, "url", summary.PageURL)
		}
	}(event.ScientificName)
}

// Status reports the current system state for UI consumers. The tracker is
// only touched under statusMu; everything else here is safe on its own.
func (r *Runner) Status() Status {
	r.statusMu.Lock()
	status := Status{
		State:              r.track.State().String(),
		CountdownRemaining: r.track.Remaining(),
		SmoothedTop:        r.smoothed,
	}
	identity := r.track.Identity()
	r.statusMu.Unlock()

	status.LatestBatch = r.publisher.Latest()
	status.DroppedFrames = r.source.Dropped()
	status.TotalCaptures = r.game.TotalCaptures()
	status.CameraHealthy = r.source.Healthy()
	if identity != nil {
		status.Species = identity.CommonName
		status.Streak = identity.Streak
	}
	return status
}

// Results exposes the display publisher for UI polling.
func (r *Runner) Results() *pipeline.Publisher {
	return r.publisher
}

// Stop shuts the system down in reverse dependency order: camera, pipeline,
// dispatcher, then the aggregate flush and the event bus.
func (r *Runner) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}

	r.bus.Publish(events.TypeCameraStatus, "stopping")
	r.source.Stop()
	r.pipe.Stop()

	close(r.stop)
	select {
	case <-r.done:
	case <-time.After(5 * time.Second):
		r.log.Warn("dispatcher did not stop in time")
	}

	r.game.Flush()
	r.bus.Shutdown(3 * time.Second)
	if r.mqttPub != nil {
		r.mqttPub.Disconnect()
	}
	if err := r.store.Close(); err != nil {
		r.log.Error("failed to close capture store", "error", err)
	}
	if err := r.recorder.Close(); err != nil {
		r.log.Error("failed to close metrics recorder", "error", err)
	}
	r.log.Info("realtime system stopped")
}
