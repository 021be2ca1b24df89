// Package events carries engine output to rendering and network layers.
// Delivery is synchronous and single pass: a listener must not call back
// into the engine.
package events

import "github.com/nathoo/parley/types"

// Listener receives outbound engine events.
type Listener interface {
	Handle(ev types.Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev types.Event)

func (f ListenerFunc) Handle(ev types.Event) { f(ev) }

// Bus fans every event out to its listeners in registration order.
type Bus struct {
	listeners []Listener
}

// Subscribe adds a listener.
func (b *Bus) Subscribe(l Listener) {
	b.listeners = append(b.listeners, l)
}

func (b *Bus) Handle(ev types.Event) {
	for _, l := range b.listeners {
		l.Handle(ev)
	}
}

// Recorder buffers events until drained.
type Recorder struct {
	events []types.Event
}

func (r *Recorder) Handle(ev types.Event) {
	r.events = append(r.events, ev)
}

// Events returns the buffered events without clearing them.
func (r *Recorder) Events() []types.Event {
	return r.events
}

// Drain returns the buffered events and clears the buffer.
func (r *Recorder) Drain() []types.Event {
	evs := r.events
	r.events = nil
	return evs
}

// Filter returns the events of the given kind, in order.
func Filter(evs []types.Event, kind types.EventKind) []types.Event {
	var out []types.Event
	for _, ev := range evs {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
