// Package gamify tracks per-species sighting statistics and achievement
// progress. The aggregate is guarded by a single mutex with short critical
// sections; persistence happens outside the lock from a snapshot.
package gamify

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/zdex/zdex-go/internal/logging"
)

// SpeciesStats aggregates sightings for one species.
type SpeciesStats struct {
	SpeciesName    string     `json:"species_name"` // scientific name
	CommonName     string     `json:"common_name"`
	TotalSightings int        `json:"total_sightings"`
	FirstSeen      *time.Time `json:"first_seen,omitempty"`
	LastSeen       *time.Time `json:"last_seen,omitempty"`
	Locations      []string   `json:"locations"`
	BestConfidence float64    `json:"best_confidence"`
}

// Achievement represents one gamification achievement. Unlock is monotonic
// and idempotent: once true, the predicate is never evaluated again.
type Achievement struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Icon        string     `json:"icon"`
	Unlocked    bool       `json:"unlocked"`
	UnlockDate  *time.Time `json:"unlock_date,omitempty"`
	Progress    int        `json:"progress"`
	Target      int        `json:"target"`
}

func defaultAchievements() []Achievement {
	return []Achievement{
		{ID: "first_capture", Name: "First Capture", Description: "Capture your first animal", Icon: "🎯", Target: 1},
		{ID: "explorer", Name: "Explorer", Description: "Capture 10 different species", Icon: "🗺️", Target: 10},
		{ID: "researcher", Name: "Researcher", Description: "Capture 25 different species", Icon: "🔬", Target: 25},
		{ID: "naturalist", Name: "Naturalist", Description: "Capture 50 different species", Icon: "🌿", Target: 50},
		{ID: "dedicated", Name: "Dedicated", Description: "Record 100 total captures", Icon: "⭐", Target: 100},
		{ID: "master", Name: "Master", Description: "Record 500 total captures", Icon: "👑", Target: 500},
		{ID: "dog_lover", Name: "Dog Lover", Description: "Capture 10 dogs", Icon: "🐕", Target: 10},
		{ID: "cat_lover", Name: "Cat Lover", Description: "Capture 10 cats", Icon: "🐈", Target: 10},
		{ID: "bird_watcher", Name: "Bird Watcher", Description: "Capture 15 birds", Icon: "🦅", Target: 15},
		{ID: "global_explorer", Name: "Global Explorer", Description: "Capture animals in 5 different locations", Icon: "🌍", Target: 5},
	}
}

// System manages species stats and achievements for the process lifetime.
// Constructed once at startup and passed to the capture coordinator; there
// are no package-level singletons.
type System struct {
	statsPath        string
	achievementsPath string
	clock            func() time.Time
	log              *slog.Logger

	mu            sync.Mutex
	species       map[string]*SpeciesStats
	achievements  map[string]*Achievement
	totalCaptures int
	sessionStart  time.Time
}

// Option configures a System.
type Option func(*System)

// WithClock overrides the time source, for deterministic tests.
func WithClock(clock func() time.Time) Option {
	return func(s *System) { s.clock = clock }
}

// NewSystem loads persisted stats and achievements, seeding any missing
// achievement definitions. Load failures start from an empty aggregate;
// they are logged, not fatal.
func NewSystem(statsPath, achievementsPath string, opts ...Option) *System {
	s := &System{
		statsPath:        statsPath,
		achievementsPath: achievementsPath,
		clock:            time.Now,
		log:              logging.ForService("gamify"),
		species:          make(map[string]*SpeciesStats),
		achievements:     make(map[string]*Achievement),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sessionStart = s.clock()
	s.load()
	s.seedAchievements()
	return s
}

// seedAchievements installs default definitions, preserving the unlocked
// state and progress of any already-loaded achievement.
func (s *System) seedAchievements() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, def := range defaultAchievements() {
		if existing, ok := s.achievements[def.ID]; ok {
			def.Unlocked = existing.Unlocked
			def.UnlockDate = existing.UnlockDate
			def.Progress = existing.Progress
		}
		a := def
		s.achievements[def.ID] = &a
	}
}

// RecordSighting updates the aggregate with one accepted capture and
// returns copies of any newly unlocked achievements. The caller persists
// via the returned snapshot having already been written by Save.
func (s *System) RecordSighting(speciesName, commonName, location string, confidence float64) []Achievement {
	now := s.clock()

	s.mu.Lock()
	stats, ok := s.species[speciesName]
	if !ok {
		stats = &SpeciesStats{
			SpeciesName: speciesName,
			CommonName:  commonName,
			FirstSeen:   &now,
		}
		s.species[speciesName] = stats
	}
	stats.TotalSightings++
	stats.LastSeen = &now
	if confidence > stats.BestConfidence {
		stats.BestConfidence = confidence
	}
	if location != "" && !contains(stats.Locations, location) {
		stats.Locations = append(stats.Locations, location)
	}
	s.totalCaptures++

	unlocked := s.checkAchievementsLocked(commonName, now)
	s.mu.Unlock()

	// Persist outside the lock; the aggregate must never do I/O while held.
	s.Save()

	s.log.Info("sighting recorded", "species", commonName, "total_captures", s.TotalCaptures())
	return unlocked
}

// checkAchievementsLocked evaluates every not-yet-unlocked achievement
// against the current aggregate. Caller holds s.mu.
func (s *System) checkAchievementsLocked(commonName string, now time.Time) []Achievement {
	uniqueSpecies := len(s.species)
	uniqueLocations := make(map[string]struct{})
	for _, stats := range s.species {
		for _, loc := range stats.Locations {
			uniqueLocations[loc] = struct{}{}
		}
	}
	groupCount := func(group string) int {
		total := 0
		for _, stats := range s.species {
			if strings.Contains(strings.ToLower(stats.CommonName), group) {
				total += stats.TotalSightings
			}
		}
		return total
	}

	progress := map[string]int{
		"first_capture":   s.totalCaptures,
		"explorer":        uniqueSpecies,
		"researcher":      uniqueSpecies,
		"naturalist":      uniqueSpecies,
		"dedicated":       s.totalCaptures,
		"master":          s.totalCaptures,
		"global_explorer": len(uniqueLocations),
	}
	lower := strings.ToLower(commonName)
	if strings.Contains(lower, "dog") {
		progress["dog_lover"] = groupCount("dog")
	}
	if strings.Contains(lower, "cat") {
		progress["cat_lover"] = groupCount("cat")
	}
	if strings.Contains(lower, "bird") {
		progress["bird_watcher"] = groupCount("bird")
	}

	var newlyUnlocked []Achievement
	for id, value := range progress {
		achievement, ok := s.achievements[id]
		if !ok {
			continue
		}
		if achievement.Unlocked {
			// Monotonic: never re-evaluate, never flip back.
			continue
		}
		achievement.Progress = value
		if achievement.Progress >= achievement.Target {
			achievement.Unlocked = true
			unlockTime := now
			achievement.UnlockDate = &unlockTime
			newlyUnlocked = append(newlyUnlocked, *achievement)
			s.log.Info("achievement unlocked", "id", id, "name", achievement.Name)
		}
	}
	return newlyUnlocked
}

// TotalCaptures returns the number of captures recorded across all runs.
func (s *System) TotalCaptures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalCaptures
}

// Stats returns a copy of the stats for one species, or nil.
func (s *System) Stats(speciesName string) *SpeciesStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, ok := s.species[speciesName]
	if !ok {
		return nil
	}
	cloned := *stats
	cloned.Locations = append([]string(nil), stats.Locations...)
	return &cloned
}

// Achievements returns copies of all achievements.
func (s *System) Achievements() []Achievement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Achievement, 0, len(s.achievements))
	for _, a := range s.achievements {
		out = append(out, *a)
	}
	return out
}

// Achievement returns a copy of one achievement by id.
func (s *System) Achievement(id string) (Achievement, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.achievements[id]
	if !ok {
		return Achievement{}, false
	}
	return *a, true
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
