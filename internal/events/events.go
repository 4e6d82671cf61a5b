// Package events bridges engine progress to a consumer (the editor UI, a
// logger, a test) over a bounded channel. Publishing never blocks the
// generation path: when the consumer lags, the oldest event is dropped.
package events

import (
	"sync"
	"time"
)

// Type discriminates engine events.
type Type string

const (
	RequestStarted   Type = "request_started"
	ChunkReceived    Type = "chunk_received"
	RequestCompleted Type = "request_completed"
	RequestFailed    Type = "request_failed"
	RequestCancelled Type = "request_cancelled"
)

// Event is one engine progress notification.
type Event struct {
	Type      Type
	RequestID string
	Provider  string
	Chunk     string
	Err       string
	At        time.Time
}

// Bus is a single-consumer event channel with drop-oldest overflow.
type Bus struct {
	mu      sync.Mutex
	ch      chan Event
	closed  bool
	dropped uint64
}

// NewBus creates a bus with the given buffer capacity.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{ch: make(chan Event, capacity)}
}

// Events returns the receive side. A single consumer should range over it.
func (b *Bus) Events() <-chan Event { return b.ch }

// Publish enqueues an event without blocking. If the buffer is full the
// oldest event is discarded to make room.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for {
		select {
		case b.ch <- ev:
			return
		default:
		}
		select {
		case <-b.ch:
			b.dropped++
		default:
		}
	}
}

// Dropped reports how many events were discarded due to a slow consumer.
func (b *Bus) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Close shuts the channel. Publish becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
