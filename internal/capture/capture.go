// Package capture turns capture decisions into persisted records. It
// applies per-species cooldown deduplication, updates the species stats
// aggregate, evaluates achievements, and emits capture metrics. Ordering is
// persist-then-aggregate: a capture that cannot be durably saved updates
// neither stats nor achievements.
package capture

import (
	"time"
)

// Event is a single recorded capture. Immutable once created; persisted
// exactly once.
type Event struct {
	ID             string    // unique capture id
	SpeciesID      string    // stable species identifier (label UUID)
	PredictedName  string    // common name predicted by the classifier
	ScientificName string
	GroundTruth    string // optional user correction of the predicted name
	Confidence     float64
	Score          float64
	Location       string
	Auto           bool // automatic (countdown) vs manual capture
	ImagePath      string
	Timestamp      time.Time
}

// Correct reports whether the prediction matched the ground truth. With no
// correction recorded the prediction is assumed correct.
func (e *Event) Correct() bool {
	return e.GroundTruth == "" || e.GroundTruth == e.PredictedName
}

// Request carries everything the coordinator needs to record a capture.
type Request struct {
	SpeciesID      string
	PredictedName  string
	ScientificName string
	GroundTruth    string
	Confidence     float64
	Score          float64
	Location       string
	Auto           bool
	ImagePath      string
	BatchTime      time.Time // frame time of the batch that triggered this capture
}

// Store is the durable, append-only persistence for capture events.
type Store interface {
	// Append durably saves one capture event.
	Append(event *Event) error
	// LoadAll returns every stored capture, oldest first, for stats
	// rehydration at startup.
	LoadAll() ([]Event, error)
	// Latest returns the most recent capture, or nil when the store is
	// empty.
	Latest() (*Event, error)
	// Close releases the store.
	Close() error
}
