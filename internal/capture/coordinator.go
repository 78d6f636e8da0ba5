package capture

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/errors"
	"github.com/zdex/zdex-go/internal/events"
	"github.com/zdex/zdex-go/internal/gamify"
	"github.com/zdex/zdex-go/internal/logging"
	"github.com/zdex/zdex-go/internal/metrics"
	"github.com/zdex/zdex-go/internal/observability"
)

// Coordinator records captures. Safe for concurrent use; the species stats
// aggregate is guarded inside gamify.System and the store serializes its
// own writes.
type Coordinator struct {
	settings conf.CaptureSettings
	store    Store
	game     *gamify.System
	cooldown *Cooldown
	recorder *metrics.Recorder
	obs      *observability.CaptureMetrics
	bus      *events.Bus
	clock    func() time.Time
	log      *slog.Logger
}

// NewCoordinator wires a coordinator. recorder, obs and bus may be nil;
// metrics and notifications are best-effort.
func NewCoordinator(
	settings conf.CaptureSettings,
	store Store,
	game *gamify.System,
	recorder *metrics.Recorder,
	obs *observability.CaptureMetrics,
	bus *events.Bus,
) *Coordinator {
	return &Coordinator{
		settings: settings,
		store:    store,
		game:     game,
		cooldown: NewCooldown(settings.Cooldown),
		recorder: recorder,
		obs:      obs,
		bus:      bus,
		clock:    time.Now,
		log:      logging.ForService("capture"),
	}
}

// Rehydrate replays stored captures into the cooldown gate so a restart
// does not reopen cooldown windows closed before shutdown.
func (c *Coordinator) Rehydrate() error {
	captures, err := c.store.LoadAll()
	if err != nil {
		return errors.New(fmt.Errorf("loading capture history: %w", err)).
			Component("capture").
			Category(errors.CategoryDatabase).
			Build()
	}
	for i := range captures {
		event := &captures[i]
		if c.clock().Sub(event.Timestamp) < c.settings.Cooldown {
			c.cooldown.MarkAt(event.SpeciesID, event.Timestamp)
		}
	}
	c.log.Info("capture history rehydrated", "captures", len(captures))
	return nil
}

// Capture records one capture decision. Returns ErrDuplicateCapture when
// the species is within its cooldown window; that is a reported outcome,
// not a failure. A persistence error leaves stats, achievements and the
// cooldown untouched.
func (c *Coordinator) Capture(req *Request) (*Event, error) {
	if !c.cooldown.Allowed(req.SpeciesID) {
		c.log.Info("capture rejected by cooldown",
			"species", req.PredictedName, "cooldown", c.settings.Cooldown)
		if c.obs != nil {
			c.obs.CooldownRejections.Inc()
		}
		if c.bus != nil {
			c.bus.Publish(events.TypeCaptureRejected, req.PredictedName)
		}
		return nil, errors.New(fmt.Errorf("%w: %s", errors.ErrDuplicateCapture, req.PredictedName)).
			Component("capture").
			Category(errors.CategoryCapture).
			Context("species", req.SpeciesID).
			Build()
	}

	event := &Event{
		ID:             uuid.NewString(),
		SpeciesID:      req.SpeciesID,
		PredictedName:  req.PredictedName,
		ScientificName: req.ScientificName,
		GroundTruth:    req.GroundTruth,
		Confidence:     req.Confidence,
		Score:          req.Score,
		Location:       req.Location,
		Auto:           req.Auto,
		ImagePath:      req.ImagePath,
		Timestamp:      c.clock(),
	}

	// Persist first: a capture that cannot be saved must not mutate the
	// aggregate or consume the cooldown.
	if err := c.store.Append(event); err != nil {
		if c.obs != nil {
			c.obs.PersistenceErrors.Inc()
		}
		c.log.Error("failed to persist capture", "species", req.PredictedName, "error", err)
		return nil, errors.New(fmt.Errorf("persisting capture: %w", err)).
			Component("capture").
			Category(errors.CategoryDatabase).
			Context("species", req.SpeciesID).
			Build()
	}

	c.cooldown.Mark(req.SpeciesID)

	unlocked := c.game.RecordSighting(req.ScientificName, req.PredictedName, req.Location, req.Score)

	if c.obs != nil {
		mode := "manual"
		if req.Auto {
			mode = "auto"
		}
		c.obs.CapturesTotal.WithLabelValues(mode).Inc()
		c.obs.AchievementsUnlocked.Add(float64(len(unlocked)))
	}

	// Notifications are fire-and-forget; failure to deliver never rolls
	// back the capture or an unlock.
	if c.bus != nil {
		c.bus.Publish(events.TypeCaptureCompleted, event)
		for i := range unlocked {
			c.bus.Publish(events.TypeAchievementUnlocked, unlocked[i])
		}
	}

	c.recordMetrics(event, req)

	c.log.Info("capture recorded",
		"species", req.PredictedName, "auto", req.Auto, "location", req.Location)
	return event, nil
}

func (c *Coordinator) recordMetrics(event *Event, req *Request) {
	if c.recorder == nil {
		return
	}
	var latencyMs float64
	if !req.BatchTime.IsZero() {
		latencyMs = float64(event.Timestamp.Sub(req.BatchTime).Microseconds()) / 1000.0
	}
	c.recorder.LogCapture(metrics.CaptureEvent{
		SpeciesID:           event.SpeciesID,
		PredictedName:       event.PredictedName,
		GroundTruthName:     event.GroundTruth,
		Correct:             event.Correct(),
		DetectionConfidence: event.Confidence,
		ClassificationScore: event.Score,
		LatencyMs:           latencyMs,
		Location:            event.Location,
		AutoCapture:         event.Auto,
	})
}
