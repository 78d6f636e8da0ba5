// Package frame owns the camera resource and produces timestamped frame
// packets. A dedicated goroutine reads frames at the device's native rate
// and pushes them into a small bounded queue with a drop-oldest policy, so
// the detection pipeline always sees the freshest available frame.
package frame

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/errors"
	"github.com/zdex/zdex-go/internal/logging"
	"github.com/zdex/zdex-go/internal/queue"
)

// Packet is a single camera frame handed to the pipeline. The sequence
// number is strictly increasing for the lifetime of a Source. The Image mat
// is owned by the receiver once polled from the queue and must be closed by
// whoever consumes the packet.
type Packet struct {
	Seq       uint64
	Image     gocv.Mat
	Timestamp time.Time
}

// Close releases the frame's pixel data.
func (p *Packet) Close() {
	if p.Image.Ptr() != nil {
		_ = p.Image.Close()
	}
}

// device is the camera handle surface used by the capture loop. Splitting it
// from gocv.VideoCapture keeps read-failure handling testable without
// hardware.
type device interface {
	Read(img *gocv.Mat) bool
	Close() error
}

// openDevice opens and configures the camera. Package variable so tests can
// substitute a scripted device.
var openDevice = func(settings conf.CameraSettings) (device, error) {
	capture, err := gocv.OpenVideoCapture(settings.DeviceID)
	if err != nil {
		return nil, err
	}
	capture.Set(gocv.VideoCaptureFrameWidth, float64(settings.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(settings.Height))
	capture.Set(gocv.VideoCaptureFPS, float64(settings.FPS))
	return capture, nil
}

// Source captures frames from a video device on a background goroutine.
type Source struct {
	settings conf.CameraSettings
	queue    *queue.Queue[*Packet]
	log      *slog.Logger

	// Read-failure tuning; the defaults give a disconnected device about
	// five seconds to come back before the source declares it lost.
	maxReadFailures int
	readRetryDelay  time.Duration

	mu      sync.Mutex
	capture device
	running atomic.Bool
	healthy atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	lost    chan struct{}

	seq           atomic.Uint64
	droppedFrames atomic.Uint64
}

// NewSource creates a frame source for the configured device. The camera is
// not opened until Start is called.
func NewSource(settings conf.CameraSettings) *Source {
	return &Source{
		settings:        settings,
		queue:           queue.New[*Packet](settings.FrameQueueSize),
		log:             logging.ForService("frame"),
		maxReadFailures: 100,
		readRetryDelay:  50 * time.Millisecond,
	}
}

// Queue returns the bounded frame queue fed by the capture goroutine.
// The pipeline is its single consumer.
func (s *Source) Queue() *queue.Queue[*Packet] {
	return s.queue
}

// Dropped returns the number of frames discarded by the drop-oldest policy.
func (s *Source) Dropped() uint64 {
	return s.droppedFrames.Load()
}

// Healthy reports whether the camera is currently delivering frames.
func (s *Source) Healthy() bool {
	return s.healthy.Load()
}

// Lost returns a channel that is closed when the camera fails mid-stream
// and the source gives up on it. Nil before Start.
func (s *Source) Lost() <-chan struct{} {
	return s.lost
}

// Start opens the camera and launches the capture goroutine. Opening the
// device is done synchronously so a missing camera fails pipeline startup
// instead of surfacing later as an empty stream.
func (s *Source) Start() error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Warn("frame source already running")
		return nil
	}

	capture, err := openDevice(s.settings)
	if err != nil {
		s.running.Store(false)
		return errors.New(fmt.Errorf("%w: device %d: %v", errors.ErrCameraUnavailable, s.settings.DeviceID, err)).
			Component("frame").
			Category(errors.CategoryCamera).
			Context("device_id", s.settings.DeviceID).
			Build()
	}

	s.mu.Lock()
	s.capture = capture
	s.mu.Unlock()

	s.healthy.Store(true)
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.lost = make(chan struct{})
	go s.captureLoop()

	s.log.Info("frame source started", "device_id", s.settings.DeviceID,
		"width", s.settings.Width, "height", s.settings.Height)
	return nil
}

// Stop signals the capture goroutine, waits for it with a bounded timeout,
// and releases the camera regardless of whether the goroutine exited.
func (s *Source) Stop() {
	if !s.running.CompareAndSwap(true, false) {
		return
	}
	s.healthy.Store(false)
	close(s.stop)

	select {
	case <-s.done:
	case <-time.After(2 * time.Second):
		s.log.Warn("capture goroutine did not stop within timeout")
	}

	s.release()
	s.log.Info("frame source stopped", "dropped_frames", s.droppedFrames.Load())
}

func (s *Source) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capture != nil {
		if err := s.capture.Close(); err != nil {
			s.log.Error("failed to release camera", "error", err)
		}
		s.capture = nil
	}
}

func (s *Source) captureLoop() {
	defer close(s.done)

	consecutiveReadFailures := 0
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		img := gocv.NewMat()
		s.mu.Lock()
		capture := s.capture
		s.mu.Unlock()
		if capture == nil {
			_ = img.Close()
			return
		}

		if ok := capture.Read(&img); !ok || img.Empty() {
			_ = img.Close()
			consecutiveReadFailures++
			if consecutiveReadFailures >= s.maxReadFailures {
				// Device likely disconnected mid-stream. Mark the camera
				// lost so the runner can surface it; the pipeline keeps
				// running on an empty queue.
				s.log.Error("camera read failing persistently, stopping capture",
					"failures", consecutiveReadFailures)
				s.healthy.Store(false)
				s.running.Store(false)
				s.release()
				close(s.lost)
				return
			}
			time.Sleep(s.readRetryDelay)
			continue
		}
		consecutiveReadFailures = 0

		packet := &Packet{
			Seq:       s.seq.Add(1),
			Image:     img,
			Timestamp: time.Now(),
		}
		// Drop-oldest on overflow; the evicted frame's mat is closed here
		// so pixel buffers do not leak during bursts.
		if evicted, dropped := s.queue.Offer(packet); dropped {
			if evicted != nil {
				evicted.Close()
			}
			s.droppedFrames.Add(1)
		}
	}
}
