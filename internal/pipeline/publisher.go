package pipeline

import (
	"sync"

	"github.com/zdex/zdex-go/internal/detection"
)

// Publisher holds the most recently published detection batch for the UI
// consumer. The UI polls on its own cadence and must never block the
// pipeline; Publish and Poll only take a short mutex.
type Publisher struct {
	mu       sync.Mutex
	latest   *detection.Batch
	consumed bool
}

// NewPublisher creates an empty publisher.
func NewPublisher() *Publisher {
	return &Publisher{consumed: true}
}

// Publish replaces the latest batch.
func (p *Publisher) Publish(batch *detection.Batch) {
	p.mu.Lock()
	p.latest = batch
	p.consumed = false
	p.mu.Unlock()
}

// Poll returns the most recently published batch; ok is false when nothing
// new has been published since the last poll.
func (p *Publisher) Poll() (*detection.Batch, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.consumed {
		return nil, false
	}
	p.consumed = true
	return p.latest, true
}

// Latest returns the newest batch regardless of poll state. Used for
// display contexts that want the current view rather than a delta.
func (p *Publisher) Latest() *detection.Batch {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}
