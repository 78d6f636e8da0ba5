package realtime

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zdex/zdex-go/internal/conf"
	"github.com/zdex/zdex-go/internal/detection"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()
	dir := t.TempDir()
	return &conf.Settings{
		Main: conf.MainSettings{Name: "zdex-test", DataDir: dir},
		Camera: conf.CameraSettings{
			DeviceID:       0,
			FrameQueueSize: 2,
		},
		Detection: conf.DetectionSettings{
			Interval:        10 * time.Millisecond,
			QueueTimeout:    10 * time.Millisecond,
			Threshold:       0.25,
			ResultQueueSize: 2,
		},
		Tracking: conf.TrackingSettings{
			FreezeConfidence: 0.9,
			RequiredStreak:   1,
			LossWindow:       2,
			SmoothingWindow:  3,
			AutoCaptureAfter: 0,
		},
		Capture: conf.CaptureSettings{
			Cooldown:        time.Minute,
			ImageDir:        filepath.Join(dir, "images"),
			DBPath:          filepath.Join(dir, "captures.db"),
			StatsPath:       filepath.Join(dir, "stats.json"),
			AchievementPath: filepath.Join(dir, "achievements.json"),
			DefaultLocation: "Backyard",
		},
		Metrics: conf.MetricsSettings{
			EventLogPath: filepath.Join(dir, "events.jsonl"),
		},
		Enrichment: conf.EnrichmentSettings{
			CacheTTL: time.Minute,
			Timeout:  time.Second,
		},
	}
}

func dogBatch(seq uint64, score float64) *detection.Batch {
	return &detection.Batch{
		FrameSeq:  seq,
		FrameTime: time.Now(),
		Timestamp: time.Now(),
		Results: []detection.Result{{
			Candidate: detection.Candidate{Confidence: 0.95},
			Classification: detection.Classification{
				SpeciesID:      "uuid-dog",
				CommonName:     "Dog",
				ScientificName: "Canis familiaris",
				Score:          score,
			},
		}},
	}
}

func TestDispatcherRecordsAutoCapture(t *testing.T) {
	settings := testSettings(t)
	runner, err := New(settings, nil)
	require.NoError(t, err)

	go runner.dispatch()
	defer func() {
		close(runner.stop)
		<-runner.done
		_ = runner.store.Close()
	}()

	// First batch starts tracking, the second freezes (streak 1 suffices),
	// and the third passes the zero-length countdown and fires the auto
	// capture.
	for seq := uint64(1); seq <= 3; seq++ {
		runner.pipe.Results().Offer(dogBatch(seq, 0.95))
		time.Sleep(30 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		events, err := runner.store.LoadAll()
		return err == nil && len(events) == 1
	}, 2*time.Second, 20*time.Millisecond)

	events, err := runner.store.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, "Dog", events[0].PredictedName)
	assert.True(t, events[0].Auto)
	assert.Equal(t, "Backyard", events[0].Location)
	assert.Equal(t, 1, runner.game.TotalCaptures())
}

func TestStatusReflectsTracking(t *testing.T) {
	settings := testSettings(t)
	settings.Tracking.RequiredStreak = 5
	runner, err := New(settings, nil)
	require.NoError(t, err)

	go runner.dispatch()
	defer func() {
		close(runner.stop)
		<-runner.done
		_ = runner.store.Close()
	}()

	runner.pipe.Results().Offer(dogBatch(1, 0.95))

	require.Eventually(t, func() bool {
		return runner.Status().Species == "Dog"
	}, 2*time.Second, 20*time.Millisecond)

	status := runner.Status()
	assert.Equal(t, "tracking", status.State)
	assert.Equal(t, 1, status.Streak)
	require.NotNil(t, status.LatestBatch)
	assert.EqualValues(t, 1, status.LatestBatch.FrameSeq)
}

func TestStatusSafeDuringDispatch(t *testing.T) {
	settings := testSettings(t)
	settings.Tracking.RequiredStreak = 100 // keep the tracker mutating without firing
	runner, err := New(settings, nil)
	require.NoError(t, err)

	go runner.dispatch()
	defer func() {
		close(runner.stop)
		<-runner.done
		_ = runner.store.Close()
	}()

	stopPolling := make(chan struct{})
	polled := make(chan struct{})
	go func() {
		defer close(polled)
		for {
			select {
			case <-stopPolling:
				return
			default:
				_ = runner.Status()
			}
		}
	}()

	// Alternate hits and misses so the tracker keeps creating, advancing and
	// clearing its identity while Status reads it.
	for seq := uint64(1); seq <= 50; seq++ {
		score := 0.95
		if seq%5 == 0 {
			score = 0.1
		}
		runner.pipe.Results().Offer(dogBatch(seq, score))
		time.Sleep(2 * time.Millisecond)
	}

	close(stopPolling)
	<-polled
	assert.NotEmpty(t, runner.Status().State)
}

func TestRequestCaptureBeforeStartRejected(t *testing.T) {
	runner, err := New(testSettings(t), nil)
	require.NoError(t, err)
	defer func() { _ = runner.store.Close() }()

	assert.False(t, runner.RequestCapture())
}
