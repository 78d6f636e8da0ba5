package gamify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSystem(t *testing.T) *System {
	t.Helper()
	dir := t.TempDir()
	return NewSystem(
		filepath.Join(dir, "stats.json"),
		filepath.Join(dir, "achievements.json"),
	)
}

func TestRecordSighting_UpdatesStats(t *testing.T) {
	t.Parallel()

	s := newTestSystem(t)
	s.RecordSighting("Vulpes vulpes", "Red Fox", "Helsinki", 0.85)
	s.RecordSighting("Vulpes vulpes", "Red Fox", "Oulu", 0.92)
	s.RecordSighting("Vulpes vulpes", "Red Fox", "Helsinki", 0.60)

	stats := s.Stats("Vulpes vulpes")
	require.NotNil(t, stats)
	assert.Equal(t, 3, stats.TotalSightings)
	assert.InDelta(t, 0.92, stats.BestConfidence, 0.001, "best confidence is a max")
	assert.ElementsMatch(t, []string{"Helsinki", "Oulu"}, stats.Locations)
	assert.NotNil(t, stats.FirstSeen)
	assert.NotNil(t, stats.LastSeen)
	assert.Equal(t, 3, s.TotalCaptures())
}

func TestFirstCaptureUnlocksExactlyOnce(t *testing.T) {
	t.Parallel()

	s := newTestSystem(t)
	unlocked := s.RecordSighting("Canis familiaris", "Domestic Dog", "", 0.9)

	ids := make([]string, 0, len(unlocked))
	for _, a := range unlocked {
		ids = append(ids, a.ID)
	}
	assert.Contains(t, ids, "first_capture")

	// Subsequent captures must never re-trigger the unlock.
	for i := 0; i < 5; i++ {
		for _, a := range s.RecordSighting("Canis familiaris", "Domestic Dog", "", 0.9) {
			assert.NotEqual(t, "first_capture", a.ID)
		}
	}

	a, ok := s.Achievement("first_capture")
	require.True(t, ok)
	assert.True(t, a.Unlocked)
	assert.NotNil(t, a.UnlockDate)
}

func TestUniqueSpeciesAchievement(t *testing.T) {
	t.Parallel()

	s := newTestSystem(t)
	species := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}
	var explorerUnlocked bool
	for _, name := range species {
		for _, a := range s.RecordSighting(name, name, "", 0.5) {
			if a.ID == "explorer" {
				explorerUnlocked = true
			}
		}
	}
	assert.True(t, explorerUnlocked, "10 unique species unlocks explorer")
}

func TestGroupAchievementCountsSightings(t *testing.T) {
	t.Parallel()

	s := newTestSystem(t)
	var unlockedDogLover bool
	for i := 0; i < 10; i++ {
		for _, a := range s.RecordSighting("Canis familiaris", "Domestic Dog", "", 0.8) {
			if a.ID == "dog_lover" {
				unlockedDogLover = true
			}
		}
	}
	assert.True(t, unlockedDogLover)
}

func TestPersistenceRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statsPath := filepath.Join(dir, "stats.json")
	achPath := filepath.Join(dir, "achievements.json")

	s := NewSystem(statsPath, achPath)
	s.RecordSighting("Felis catus", "Domestic Cat", "Turku", 0.77)
	s.Flush()

	// A fresh system picks up where the last one left off.
	reloaded := NewSystem(statsPath, achPath)
	assert.Equal(t, 1, reloaded.TotalCaptures())
	stats := reloaded.Stats("Felis catus")
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.TotalSightings)

	a, ok := reloaded.Achievement("first_capture")
	require.True(t, ok)
	assert.True(t, a.Unlocked, "unlock state must survive a restart")
}

func TestCorruptStatsFileStartsEmpty(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statsPath := filepath.Join(dir, "stats.json")
	require.NoError(t, os.WriteFile(statsPath, []byte("{not json"), 0o600))

	s := NewSystem(statsPath, filepath.Join(dir, "achievements.json"))
	assert.Equal(t, 0, s.TotalCaptures())
}

func TestSaveWritesParseableJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	statsPath := filepath.Join(dir, "stats.json")
	s := NewSystem(statsPath, filepath.Join(dir, "achievements.json"),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC) }))
	s.RecordSighting("Vulpes vulpes", "Red Fox", "Helsinki", 0.8)

	raw, err := os.ReadFile(statsPath)
	require.NoError(t, err)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.EqualValues(t, 1, payload["total_captures"])
}
