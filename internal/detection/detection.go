// Package detection provides the domain models for the detection and
// classification flow. These models are runtime types, independent of the
// persistence schema, and are immutable once a batch is published.
package detection

import (
	"image"
	"time"
)

// Candidate is a single bounding box plus coarse class guess produced by
// the detector stage.
type Candidate struct {
	Box        image.Rectangle // pixel space, clamped to the frame
	ClassID    int             // detector class id
	Confidence float64         // detector confidence, 0.0-1.0
}

// Area returns the bounding box area in pixels.
func (c *Candidate) Area() int {
	return c.Box.Dx() * c.Box.Dy()
}

// Classification is the fine-grained species identity produced by
// classifying a cropped candidate.
type Classification struct {
	SpeciesID      string  // stable species identifier (label UUID)
	CommonName     string  // e.g. "Red Fox"
	ScientificName string  // e.g. "Vulpes vulpes"
	Score          float64 // classifier score, 0.0-1.0
}

// Result pairs a detector candidate with its classification.
type Result struct {
	Candidate      Candidate
	Classification Classification
}

// Batch is one inference pass over a single frame. Results are ordered by
// descending classification score; Top() is the best-scoring pairing.
// A batch is immutable once published.
type Batch struct {
	FrameSeq  uint64        // source frame sequence number
	FrameTime time.Time     // when the frame was captured
	Latency   time.Duration // inference invocation time only, excludes queue wait
	Timestamp time.Time     // when the batch was built
	Results   []Result
}

// Empty reports whether the batch contains no detections. Malformed or
// failed inference passes publish empty batches rather than errors.
func (b *Batch) Empty() bool {
	return len(b.Results) == 0
}

// Top returns the best-scoring result, or nil for an empty batch.
func (b *Batch) Top() *Result {
	if len(b.Results) == 0 {
		return nil
	}
	return &b.Results[0]
}
