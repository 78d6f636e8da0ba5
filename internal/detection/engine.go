package detection

import (
	"image"

	"gocv.io/x/gocv"
)

// Engine is the inference backend contract. A concrete backend is selected
// once at startup and never inspected by type at call sites. Implementations
// do not need to be safe for concurrent use: the pipeline issues at most one
// call at a time from its own goroutine.
type Engine interface {
	// Detect runs object detection over a full frame and returns candidate
	// boxes above the backend's confidence floor.
	Detect(frame gocv.Mat) ([]Candidate, error)

	// Classify identifies the species inside a cropped region of the frame.
	Classify(frame gocv.Mat, box image.Rectangle) (Classification, error)

	// Close releases backend resources (model handles, device contexts).
	Close() error
}
