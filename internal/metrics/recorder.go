// Package metrics provides the append-only structured event log shared by
// the pipeline and the capture coordinator. Events are written as one JSON
// object per line; a single writer lock guarantees no two events interleave
// mid-record. No global temporal ordering is promised across producers, each
// event carries its own timestamp for offline reconstruction.
//
// Metrics are strictly best-effort: write failures are logged and swallowed
// and must never take down detection or capture flows.
package metrics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zdex/zdex-go/internal/errors"
	"github.com/zdex/zdex-go/internal/logging"
)

// DetectionEvent records one detected candidate within an inference pass.
type DetectionEvent struct {
	Event                 string  `json:"event"`
	Timestamp             float64 `json:"timestamp"`
	SpeciesID             string  `json:"species_uuid"`
	SpeciesName           string  `json:"species_name"`
	DetectionConfidence   float64 `json:"detection_confidence"`
	ClassificationScore   float64 `json:"classification_score"`
	LatencyMs             float64 `json:"latency_ms"`
	BBoxArea              int     `json:"bbox_area"`
	DetectionsInFrame     int     `json:"detections_in_frame"`
}

// CaptureEvent records an accepted capture, with enough context to
// reconstruct precision statistics offline.
type CaptureEvent struct {
	Event               string  `json:"event"`
	Timestamp           float64 `json:"timestamp"`
	SpeciesID           string  `json:"species_uuid"`
	PredictedName       string  `json:"predicted_name"`
	GroundTruthName     string  `json:"ground_truth_name"`
	Correct             bool    `json:"correct"`
	DetectionConfidence float64 `json:"detection_confidence"`
	ClassificationScore float64 `json:"classification_score"`
	LatencyMs           float64 `json:"latency_ms"`
	Location            string  `json:"location"`
	AutoCapture         bool    `json:"auto_capture"`
}

// LatencyEvent records a timing sample for a pipeline stage.
type LatencyEvent struct {
	Event      string         `json:"event"`
	Timestamp  float64        `json:"timestamp"`
	Stage      string         `json:"stage"`
	DurationMs float64        `json:"duration_ms"`
	Metadata   map[string]any `json:"metadata"`
}

// Recorder appends metrics events to a JSONL file. Safe for concurrent use.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	path string
	log  *slog.Logger
}

// NewRecorder opens (creating if needed) the event log at path for append.
func NewRecorder(path string) (*Recorder, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.New(fmt.Errorf("creating metrics directory: %w", err)).
				Component("metrics").
				Category(errors.CategoryFileIO).
				Build()
		}
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) //nolint:gosec // G304: path comes from settings
	if err != nil {
		return nil, errors.New(fmt.Errorf("opening metrics log: %w", err)).
			Component("metrics").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	return &Recorder{
		file: file,
		path: path,
		log:  logging.ForService("metrics"),
	}, nil
}

// LogDetection appends a detection event.
func (r *Recorder) LogDetection(ev DetectionEvent) {
	ev.Event = "detection"
	r.append(&ev, &ev.Timestamp)
}

// LogCapture appends a capture event.
func (r *Recorder) LogCapture(ev CaptureEvent) {
	ev.Event = "capture"
	r.append(&ev, &ev.Timestamp)
}

// LogLatency appends a latency sample for the given stage.
func (r *Recorder) LogLatency(stage string, duration time.Duration, metadata map[string]any) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	ev := LatencyEvent{
		Stage:      stage,
		DurationMs: float64(duration.Microseconds()) / 1000.0,
		Metadata:   metadata,
		Event:      "latency",
	}
	r.append(&ev, &ev.Timestamp)
}

// append serializes and writes one event under the writer lock. Failures
// are logged and swallowed.
func (r *Recorder) append(event any, timestamp *float64) {
	if *timestamp == 0 {
		*timestamp = float64(time.Now().UnixNano()) / float64(time.Second)
	}
	line, err := json.Marshal(event)
	if err != nil {
		r.log.Error("failed to marshal metrics event", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	if _, err := r.file.Write(append(line, '\n')); err != nil {
		r.log.Error("failed to write metrics event", "error", err, "path", r.path)
	}
}

// Close flushes and closes the underlying file. Subsequent appends are
// silently discarded.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}
