package tracker

import (
	"github.com/zdex/zdex-go/internal/detection"
)

// Smoother stabilizes the detection shown to the UI with a majority vote
// over the last few top detections, so a single misclassified frame does
// not flap the displayed species. It only affects display selection; the
// state machine sees raw batches.
type Smoother struct {
	window  int
	history []*detection.Result // nil entries mark batches without detections
}

// NewSmoother creates a smoother over the given window of recent batches.
func NewSmoother(window int) *Smoother {
	if window < 1 {
		window = 1
	}
	return &Smoother{window: window}
}

// Add records the top result of a batch (nil for an empty batch) and
// returns the smoothed current detection: the most recent result matching
// the most frequent species in the window, or nil when the window holds no
// detections.
func (s *Smoother) Add(top *detection.Result) *detection.Result {
	s.history = append(s.history, top)
	if len(s.history) > s.window {
		s.history = s.history[1:]
	}

	counts := make(map[string]int)
	for _, r := range s.history {
		if r != nil {
			counts[r.Classification.SpeciesID]++
		}
	}
	if len(counts) == 0 {
		return nil
	}

	var bestSpecies string
	var bestCount int
	for id, count := range counts {
		if count > bestCount {
			bestSpecies = id
			bestCount = count
		}
	}

	// Most recent result for the winning species keeps the bounding box
	// fresh while the label stays stable.
	for i := len(s.history) - 1; i >= 0; i-- {
		if r := s.history[i]; r != nil && r.Classification.SpeciesID == bestSpecies {
			return r
		}
	}
	return nil
}

// Reset clears the history.
func (s *Smoother) Reset() {
	s.history = s.history[:0]
}
