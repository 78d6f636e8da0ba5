package capture

import (
	"sync"
	"time"
)

// Cooldown tracks the last accepted capture time per species and gates new
// captures behind a minimum interval. Checking and marking are separate so
// a failed persist does not consume the species' cooldown slot.
type Cooldown struct {
	mu       sync.Mutex
	lastSeen map[string]time.Time
	window   time.Duration
	clock    func() time.Time
}

// NewCooldown creates a cooldown gate with the given window.
func NewCooldown(window time.Duration) *Cooldown {
	return &Cooldown{
		lastSeen: make(map[string]time.Time),
		window:   window,
		clock:    time.Now,
	}
}

// Allowed reports whether a capture of the species would currently pass the
// cooldown. Does not record anything.
func (c *Cooldown) Allowed(speciesID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	last, exists := c.lastSeen[speciesID]
	return !exists || c.clock().Sub(last) >= c.window
}

// Mark records an accepted capture for the species.
func (c *Cooldown) Mark(speciesID string) {
	c.MarkAt(speciesID, c.clock())
}

// MarkAt records an accepted capture at an explicit time, used when
// replaying stored history at startup.
func (c *Cooldown) MarkAt(speciesID string, when time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen[speciesID] = when
}

// Reset clears the cooldown state for a species.
func (c *Cooldown) Reset(speciesID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lastSeen, speciesID)
}
