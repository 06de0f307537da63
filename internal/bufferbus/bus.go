// Package bufferbus fans extracted media buffers out to multiple subscribers.
//
// The bus is a streamplayout.BufferSink: hand it to the player (alone or in a
// streamplayout.Tee) and every forwarded buffer is offered to each subscriber's
// channel. If a subscriber's channel is full the buffer is dropped for that
// subscriber instead of queued, so a slow subscriber never stalls the stage
// callback that feeds the bus.
//
// # Basic Usage
//
//	bus := bufferbus.New()
//	defer bus.Close()
//
//	ch := make(chan streamplayout.MediaBuffer, 64)
//	bus.Subscribe("recorder", ch)
//
//	player, _ := streamplayout.NewPlayer(eng, description, bus)
//
// # Ownership
//
// All subscribers receive the same MediaBuffer value and therefore share its
// Data slice. Subscribers must treat Data as read-only; use MediaBuffer.Clone
// before modifying it.
//
// # Thread Safety
//
// All methods are safe for concurrent use. Subscribe and Unsubscribe may be
// called while buffers are being published.
package bufferbus

import (
	"errors"
	"sync"
	"sync/atomic"

	streamplayout "github.com/e7canasta/stream-playout"
	"github.com/e7canasta/stream-playout/internal/metrics"
)

var (
	// ErrSubscriberExists is returned when Subscribe is called with a duplicate id.
	ErrSubscriberExists = errors.New("bufferbus: subscriber id already exists")

	// ErrSubscriberNotFound is returned when Unsubscribe is called with unknown id.
	ErrSubscriberNotFound = errors.New("bufferbus: subscriber id not found")

	// ErrBusClosed is returned when operations are attempted on a closed bus.
	ErrBusClosed = errors.New("bufferbus: bus is closed")

	// ErrNilChannel is returned when Subscribe is called with a nil channel.
	ErrNilChannel = errors.New("bufferbus: subscriber channel cannot be nil")
)

// BusStats contains global and per-subscriber metrics.
type BusStats struct {
	// TotalPublished is the number of Publish() calls on an open bus
	TotalPublished uint64

	// TotalSent is the sum of buffers sent to all subscribers
	TotalSent uint64

	// TotalDropped is the sum of buffers dropped across all subscribers
	TotalDropped uint64

	// Subscribers contains per-subscriber breakdown
	Subscribers map[string]SubscriberStats
}

// SubscriberStats tracks metrics for a single subscriber.
type SubscriberStats struct {
	// Sent is the number of buffers delivered to this subscriber's channel
	Sent uint64

	// Dropped is the number of buffers dropped due to a full channel
	Dropped uint64
}

type subscriber struct {
	ch      chan<- streamplayout.MediaBuffer
	sent    atomic.Uint64
	dropped atomic.Uint64
}

// Bus distributes media buffers to subscribers with a drop-on-full policy.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool

	totalPublished atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a channel to receive buffers.
func (b *Bus) Subscribe(id string, ch chan<- streamplayout.MediaBuffer) error {
	if ch == nil {
		return ErrNilChannel
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return ErrSubscriberExists
	}

	b.subscribers[id] = &subscriber{ch: ch}
	return nil
}

// Unsubscribe removes a subscriber by id. The subscriber's channel is not closed.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBusClosed
	}
	if _, exists := b.subscribers[id]; !exists {
		return ErrSubscriberNotFound
	}

	delete(b.subscribers, id)
	return nil
}

// Publish offers buf to every subscriber without blocking.
//
// For each subscriber:
//   - If the channel has space: buf is sent, Sent incremented
//   - If the channel is full: buf is dropped, Dropped incremented
//
// Publishing on a closed bus is a silent no-op, since stage callbacks may
// still be draining while the process shuts down.
func (b *Bus) Publish(buf streamplayout.MediaBuffer) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.totalPublished.Add(1)

	for id, sub := range b.subscribers {
		select {
		case sub.ch <- buf:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
			metrics.BusDrops.WithLabelValues(id).Inc()
		}
	}
}

// HandleBuffer implements streamplayout.BufferSink.
func (b *Bus) HandleBuffer(buf streamplayout.MediaBuffer) {
	b.Publish(buf)
}

// Stats returns a statistics snapshot. It keeps working after Close.
func (b *Bus) Stats() BusStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := BusStats{
		TotalPublished: b.totalPublished.Load(),
		Subscribers:    make(map[string]SubscriberStats, len(b.subscribers)),
	}

	for id, sub := range b.subscribers {
		sent := sub.sent.Load()
		dropped := sub.dropped.Load()

		result.TotalSent += sent
		result.TotalDropped += dropped
		result.Subscribers[id] = SubscriberStats{Sent: sent, Dropped: dropped}
	}

	return result
}

// Close stops the bus. Subscriber channels are left open; each subscriber owns
// its channel's lifecycle. Idempotent.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	return nil
}

// DropRate returns the fraction (0.0 to 1.0) of offered buffers that were
// dropped across all subscribers.
func DropRate(stats BusStats) float64 {
	total := stats.TotalSent + stats.TotalDropped
	if total == 0 {
		return 0.0
	}
	return float64(stats.TotalDropped) / float64(total)
}

// SubscriberDropRate returns the drop rate for one subscriber, or 0.0 if the
// subscriber is unknown or has not been offered anything.
func SubscriberDropRate(stats BusStats, id string) float64 {
	sub, exists := stats.Subscribers[id]
	if !exists {
		return 0.0
	}
	total := sub.Sent + sub.Dropped
	if total == 0 {
		return 0.0
	}
	return float64(sub.Dropped) / float64(total)
}
