package gamify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// statsFile is the on-disk shape of the species stats aggregate.
type statsFile struct {
	Species       map[string]*SpeciesStats `json:"species"`
	TotalCaptures int                      `json:"total_captures"`
	SessionStart  time.Time                `json:"session_start"`
}

// load reads stats and achievements from disk. Missing files are a fresh
// start; corrupt files are logged and skipped.
func (s *System) load() {
	if raw, err := os.ReadFile(s.statsPath); err == nil {
		var payload statsFile
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.log.Error("failed to parse species stats, starting empty", "error", err, "path", s.statsPath)
		} else {
			s.mu.Lock()
			if payload.Species != nil {
				s.species = payload.Species
			}
			s.totalCaptures = payload.TotalCaptures
			s.mu.Unlock()
			s.log.Info("species stats loaded", "species", len(payload.Species), "total_captures", payload.TotalCaptures)
		}
	}

	if raw, err := os.ReadFile(s.achievementsPath); err == nil {
		var payload map[string]*Achievement
		if err := json.Unmarshal(raw, &payload); err != nil {
			s.log.Error("failed to parse achievements, starting empty", "error", err, "path", s.achievementsPath)
		} else {
			s.mu.Lock()
			s.achievements = payload
			s.mu.Unlock()
			s.log.Info("achievements loaded", "count", len(payload))
		}
	}
}

// Save snapshots the aggregate under the lock and writes both files outside
// of it. Write failures are logged; stats survive in memory until the next
// mutation retries the save.
func (s *System) Save() {
	s.mu.Lock()
	stats := statsFile{
		Species:       make(map[string]*SpeciesStats, len(s.species)),
		TotalCaptures: s.totalCaptures,
		SessionStart:  s.sessionStart,
	}
	for name, sp := range s.species {
		cloned := *sp
		cloned.Locations = append([]string(nil), sp.Locations...)
		stats.Species[name] = &cloned
	}
	achievements := make(map[string]*Achievement, len(s.achievements))
	for id, a := range s.achievements {
		cloned := *a
		achievements[id] = &cloned
	}
	s.mu.Unlock()

	s.writeJSON(s.statsPath, stats)
	s.writeJSON(s.achievementsPath, achievements)
}

func (s *System) writeJSON(path string, payload any) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Error("failed to create directory", "error", err, "path", dir)
			return
		}
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		s.log.Error("failed to marshal state", "error", err, "path", path)
		return
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		s.log.Error("failed to write state", "error", err, "path", path)
	}
}

// Flush persists the aggregate; called at shutdown.
func (s *System) Flush() {
	s.Save()
}
