// Package events provides an asynchronous notification bus with
// non-blocking publish guarantees. The capture coordinator and pipeline
// publish fire-and-forget; consumers (the UI layer, integrations) process
// on worker goroutines. A failed or slow consumer never blocks a producer.
package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zdex/zdex-go/internal/logging"
)

// Type tags the kind of notification carried by an Event.
type Type string

const (
	TypeCaptureCompleted    Type = "capture-completed"
	TypeCaptureRejected     Type = "capture-rejected"
	TypeAchievementUnlocked Type = "achievement-unlocked"
	TypeCameraStatus        Type = "camera-status"
)

// Event is a single notification. Payload is consumer-defined per Type.
type Event struct {
	Type      Type
	Timestamp time.Time
	Payload   any
}

// Consumer processes events delivered by the bus.
type Consumer interface {
	Name() string
	ProcessEvent(event Event) error
}

// Bus fans events out to registered consumers from a bounded buffer.
type Bus struct {
	eventChan  chan Event
	bufferSize int
	workers    int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.RWMutex
	consumers []Consumer
	running   atomic.Bool

	published atomic.Uint64
	dropped   atomic.Uint64

	log *slog.Logger
}

// NewBus creates a bus with the given buffer size and worker count.
func NewBus(bufferSize, workers int) *Bus {
	if bufferSize < 1 {
		bufferSize = 64
	}
	if workers < 1 {
		workers = 1
	}
	return &Bus{
		eventChan:  make(chan Event, bufferSize),
		bufferSize: bufferSize,
		workers:    workers,
		log:        logging.ForService("events"),
	}
}

// Subscribe registers a consumer. Must be called before Start.
func (b *Bus) Subscribe(consumer Consumer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumers = append(b.consumers, consumer)
}

// Start launches the worker goroutines.
func (b *Bus) Start() {
	if !b.running.CompareAndSwap(false, true) {
		return
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker()
	}
	b.log.Info("event bus started", "workers", b.workers, "buffer", b.bufferSize)
}

// Publish enqueues an event without blocking. When the buffer is full the
// event is dropped and counted; notification delivery is best-effort.
func (b *Bus) Publish(eventType Type, payload any) bool {
	if !b.running.Load() {
		return false
	}
	event := Event{Type: eventType, Timestamp: time.Now(), Payload: payload}
	select {
	case b.eventChan <- event:
		b.published.Add(1)
		return true
	default:
		b.dropped.Add(1)
		b.log.Warn("event bus buffer full, notification dropped", "type", eventType)
		return false
	}
}

func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ctx.Done():
			return
		case event := <-b.eventChan:
			b.dispatch(event)
		}
	}
}

// dispatch delivers one event to every consumer, isolating failures and
// panics so one consumer cannot starve the others.
func (b *Bus) dispatch(event Event) {
	b.mu.RLock()
	consumers := b.consumers
	b.mu.RUnlock()

	for _, consumer := range consumers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("event consumer panicked", "consumer", consumer.Name(), "panic", r)
				}
			}()
			if err := consumer.ProcessEvent(event); err != nil {
				b.log.Error("event consumer failed", "consumer", consumer.Name(),
					"type", event.Type, "error", err)
			}
		}()
	}
}

// Shutdown stops the workers, draining nothing: undelivered events are
// dropped, consistent with the fire-and-forget contract.
func (b *Bus) Shutdown(timeout time.Duration) {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	b.cancel()

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		b.log.Warn("event bus workers did not stop within timeout")
	}
	b.log.Info("event bus stopped", "published", b.published.Load(), "dropped", b.dropped.Load())
}

// Stats returns the number of published and dropped events.
func (b *Bus) Stats() (published, dropped uint64) {
	return b.published.Load(), b.dropped.Load()
}
