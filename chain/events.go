package chain

import (
	"context"
	"sync"
)

// Event is an advisory message emitted during a run.
type Event struct {
	Kind   Kind
	Params []string
}

// Sink receives the advisory events of a run.
type Sink interface {
	Send(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Send(e Event) {
	f(e)
}

type discardSink struct{}

func (discardSink) Send(Event) {}

// Handoff passes events one at a time from a run to a consumer. Deliver
// returns only once the consumer has acknowledged the event.
type Handoff struct {
	events chan Event
	ack    chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewHandoff() *Handoff {
	return &Handoff{
		events: make(chan Event),
		ack:    make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Send implements Sink. The event is dropped once the handoff is closed.
func (h *Handoff) Send(e Event) {
	h.Deliver(context.Background(), e)
}

// Deliver blocks until the event has been acknowledged, the handoff closed
// or ctx cancelled. It must not be called concurrently with Close.
func (h *Handoff) Deliver(ctx context.Context, e Event) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	select {
	case h.events <- e:
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-h.ack:
		return nil
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns the stream to range over. Every event received must be
// followed by a call to Ack.
func (h *Handoff) Events() <-chan Event {
	return h.events
}

func (h *Handoff) Ack() {
	select {
	case h.ack <- struct{}{}:
	case <-h.done:
	}
}

// Close ends the stream. It must be called by the producer once all
// events have been delivered.
func (h *Handoff) Close() {
	h.once.Do(func() {
		close(h.done)
		close(h.events)
	})
}
