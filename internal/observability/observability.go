// Package observability provides Prometheus metrics for the detection
// pipeline and capture flow.
package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Pipeline *PipelineMetrics
	Capture  *CaptureMetrics
}

// NewMetrics creates a Metrics instance with all collectors registered on a
// fresh registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	pipelineMetrics, err := NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}
	captureMetrics, err := NewCaptureMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Pipeline: pipelineMetrics,
		Capture:  captureMetrics,
	}, nil
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Serve exposes /metrics on the given address. Blocks until the server
// stops; run it on its own goroutine.
func (m *Metrics) Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// PipelineMetrics covers frame acquisition and inference.
type PipelineMetrics struct {
	InferenceDuration prometheus.Histogram
	InferenceTotal    prometheus.Counter
	InferenceErrors   prometheus.Counter
	DetectionCounter  *prometheus.CounterVec
	DroppedFrames     prometheus.Counter
	DroppedBatches    prometheus.Counter
}

// NewPipelineMetrics registers pipeline collectors on the given registry.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zdex_inference_duration_seconds",
			Help:    "Time taken by a single inference invocation.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}),
		InferenceTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zdex_inference_total",
			Help: "Total number of inference invocations.",
		}),
		InferenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zdex_inference_errors_total",
			Help: "Inference invocations that failed and were treated as zero detections.",
		}),
		DetectionCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zdex_detections_total",
			Help: "Total detections partitioned by species common name.",
		}, []string{"species"}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zdex_dropped_frames_total",
			Help: "Frames discarded by the drop-oldest frame queue.",
		}),
		DroppedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zdex_dropped_batches_total",
			Help: "Detection batches discarded by the drop-oldest result queue.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.InferenceDuration, m.InferenceTotal, m.InferenceErrors,
		m.DetectionCounter, m.DroppedFrames, m.DroppedBatches,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register pipeline metric: %w", err)
		}
	}
	return m, nil
}

// CaptureMetrics covers the capture coordinator.
type CaptureMetrics struct {
	CapturesTotal        *prometheus.CounterVec
	CooldownRejections   prometheus.Counter
	PersistenceErrors    prometheus.Counter
	AchievementsUnlocked prometheus.Counter
}

// NewCaptureMetrics registers capture collectors on the given registry.
func NewCaptureMetrics(registry *prometheus.Registry) (*CaptureMetrics, error) {
	m := &CaptureMetrics{
		CapturesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zdex_captures_total",
			Help: "Accepted captures partitioned by trigger mode (auto or manual).",
		}, []string{"mode"}),
		CooldownRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zdex_capture_cooldown_rejections_total",
			Help: "Capture requests rejected by the per-species cooldown.",
		}),
		PersistenceErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zdex_capture_persistence_errors_total",
			Help: "Captures that could not be durably saved.",
		}),
		AchievementsUnlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zdex_achievements_unlocked_total",
			Help: "Achievements unlocked during this process lifetime.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.CapturesTotal, m.CooldownRejections, m.PersistenceErrors, m.AchievementsUnlocked,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register capture metric: %w", err)
		}
	}
	return m, nil
}
