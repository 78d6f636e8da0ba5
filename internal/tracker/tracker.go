// Package tracker implements the confidence-gated freeze and auto-capture
// state machine. It consumes detection batches and tracks, for a single
// subject at a time, whether confidence has been sustained long enough to
// freeze the view and count down toward an automatic capture.
package tracker

import (
	"log/slog"
	"time"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/detection"
	"github.com/zdex/zdex-go/internal/logging"
)

// State enumerates the tracking states.
type State int

const (
	// StateIdle means no identity is being tracked.
	StateIdle State = iota
	// StateTracking means an identity is observed but confidence has not
	// been sustained for the required streak yet.
	StateTracking
	// StateFrozen means confidence was sustained; the UI should hold the
	// current view. Entering Frozen starts the auto-capture countdown.
	StateFrozen
	// StateCountdown means the auto-capture timer is running toward an
	// automatic capture.
	StateCountdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTracking:
		return "tracking"
	case StateFrozen:
		return "frozen"
	case StateCountdown:
		return "countdown"
	default:
		return "unknown"
	}
}

// Identity is the species currently being observed. Owned solely by the
// tracker; one active identity at a time.
type Identity struct {
	SpeciesID      string
	CommonName     string
	ScientificName string
	Streak         int // consecutive qualifying batches for this species
	FirstSeen      time.Time
	LastSeen       time.Time
	Deadline       time.Time // auto-capture countdown deadline; zero when not running
	LastResult     detection.Result
	LastBatchTime  time.Time
}

// CaptureRequest is the tracker's decision that a capture should happen.
type CaptureRequest struct {
	SpeciesID      string
	CommonName     string
	ScientificName string
	Confidence     float64 // detector confidence of the deciding candidate
	Score          float64 // classification score of the deciding candidate
	Auto           bool
	BatchTime      time.Time // frame time of the deciding batch
}

// Tracker is the detection state machine. It is driven from a single
// goroutine (the batch dispatcher) and is not safe for concurrent use.
type Tracker struct {
	settings conf.TrackingSettings
	clock    func() time.Time
	log      *slog.Logger

	state    State
	identity *Identity
	missed   int // consecutive batches without a qualifying detection
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(t *Tracker) { t.clock = clock }
}

// New creates a tracker in the Idle state.
func New(settings conf.TrackingSettings, opts ...Option) *Tracker {
	t := &Tracker{
		settings: settings,
		clock:    time.Now,
		log:      logging.ForService("tracker"),
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

// Identity returns a copy of the tracked identity, or nil when idle.
func (t *Tracker) Identity() *Identity {
	if t.identity == nil {
		return nil
	}
	cloned := *t.identity
	return &cloned
}

// Remaining returns the time left on the auto-capture countdown, or zero
// when no countdown is running.
func (t *Tracker) Remaining() time.Duration {
	if t.identity == nil || t.identity.Deadline.IsZero() {
		return 0
	}
	remaining := t.identity.Deadline.Sub(t.clock())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Observe advances the state machine with one detection batch. It returns a
// non-nil CaptureRequest when the auto-capture countdown has expired.
// Malformed batches (no candidates) are treated as "no detection this
// tick", never as errors.
func (t *Tracker) Observe(batch *detection.Batch) *CaptureRequest {
	top := batch.Top()
	if top == nil || top.Classification.Score < t.settings.FreezeConfidence {
		t.observeMiss()
		return nil
	}

	now := t.clock()
	t.missed = 0

	if t.identity == nil || t.identity.SpeciesID != top.Classification.SpeciesID {
		// New subject, or the species changed mid-track: the streak and
		// countdown reset immediately.
		if t.identity != nil {
			t.log.Debug("tracked species changed, streak reset",
				"from", t.identity.CommonName, "to", top.Classification.CommonName)
		}
		t.identity = &Identity{
			SpeciesID:      top.Classification.SpeciesID,
			CommonName:     top.Classification.CommonName,
			ScientificName: top.Classification.ScientificName,
			Streak:         1,
			FirstSeen:      now,
			LastSeen:       now,
			LastResult:     *top,
			LastBatchTime:  batch.FrameTime,
		}
		t.state = StateTracking
		return nil
	}

	t.identity.Streak++
	t.identity.LastSeen = now
	t.identity.LastResult = *top
	t.identity.LastBatchTime = batch.FrameTime

	switch t.state {
	case StateTracking:
		if t.identity.Streak >= t.settings.RequiredStreak {
			t.identity.Deadline = now.Add(t.settings.AutoCaptureAfter)
			t.state = StateFrozen
			t.log.Info("high-confidence detection sustained, freezing",
				"species", t.identity.CommonName,
				"score", top.Classification.Score,
				"streak", t.identity.Streak)
		}
	case StateFrozen, StateCountdown:
		if !now.Before(t.identity.Deadline) {
			return t.fire(true)
		}
		t.state = StateCountdown
	case StateIdle:
		// Unreachable: an identity exists. Recover by tracking.
		t.state = StateTracking
	}
	return nil
}

// observeMiss handles a batch with no qualifying detection. The identity is
// cleared, and any countdown cancelled, once misses exceed the loss window
// of consecutive batches.
func (t *Tracker) observeMiss() {
	if t.state == StateIdle {
		return
	}
	t.missed++
	if t.missed > t.settings.LossWindow {
		t.log.Debug("detection lost, returning to idle",
			"species", t.identity.CommonName, "missed_batches", t.missed)
		t.identity = nil
		t.missed = 0
		t.state = StateIdle
	}
}

// RequestManualCapture asks for a capture of the currently tracked subject.
// It is accepted in any state except Idle; the countdown is reset after
// completion. Returns nil when there is nothing to capture.
func (t *Tracker) RequestManualCapture() *CaptureRequest {
	if t.state == StateIdle || t.identity == nil {
		return nil
	}
	return t.fire(false)
}

// fire produces a capture request and resets the machine to Tracking so the
// streak must build up again before the next freeze.
func (t *Tracker) fire(auto bool) *CaptureRequest {
	req := &CaptureRequest{
		SpeciesID:      t.identity.SpeciesID,
		CommonName:     t.identity.CommonName,
		ScientificName: t.identity.ScientificName,
		Confidence:     t.identity.LastResult.Candidate.Confidence,
		Score:          t.identity.LastResult.Classification.Score,
		Auto:           auto,
		BatchTime:      t.identity.LastBatchTime,
	}
	t.identity.Streak = 1
	t.identity.Deadline = time.Time{}
	t.state = StateTracking
	t.log.Info("capture requested", "species", req.CommonName, "auto", auto)
	return req
}
