// Package connectivity reports whether the remote store can be reached.
//
// An Observer gives an initial snapshot through Fetch and then pushes
// changes to subscribers. A snapshot may be unknown (IsConnected == nil),
// which is how every observer starts before its first check.
package connectivity

import (
	"context"
	"fmt"
	"sync"
)

// Event is a connectivity snapshot. A nil IsConnected means unknown.
type Event struct {
	IsConnected *bool `json:"isConnected"`
}

// Known returns an event with a definite state.
func Known(connected bool) Event {
	return Event{IsConnected: &connected}
}

// Unknown returns an event with no state.
func Unknown() Event {
	return Event{}
}

// IsKnown reports whether the event carries a state.
func (e Event) IsKnown() bool {
	return e.IsConnected != nil
}

// Online reports a known, connected state.
func (e Event) Online() bool {
	return e.IsConnected != nil && *e.IsConnected
}

// Equal reports whether two events carry the same state.
func (e Event) Equal(o Event) bool {
	if e.IsConnected == nil || o.IsConnected == nil {
		return e.IsConnected == nil && o.IsConnected == nil
	}
	return *e.IsConnected == *o.IsConnected
}

func (e Event) String() string {
	switch {
	case e.IsConnected == nil:
		return "unknown"
	case *e.IsConnected:
		return "online"
	default:
		return "offline"
	}
}

// Observer is a source of connectivity state.
type Observer interface {
	// Fetch returns the current state.
	Fetch(ctx context.Context) (Event, error)

	// Subscribe calls fn on every change until the returned func is called.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// hub tracks subscribers and the last published state.
type hub struct {
	mu      sync.Mutex
	current Event
	subs    map[int]func(Event)
	next    int
}

func (h *hub) snapshot() Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

func (h *hub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.next
	h.next++
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// publish records e and notifies subscribers if the state changed.
func (h *hub) publish(e Event) bool {
	h.mu.Lock()
	if h.current.Equal(e) {
		h.mu.Unlock()
		return false
	}
	h.current = e
	subs := make([]func(Event), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(e)
	}
	return true
}

// Manual is an Observer whose state is set by the caller.
// Use it for forced online/offline modes and in tests.
type Manual struct {
	hub
}

// NewManual returns an observer starting in state e.
func NewManual(e Event) *Manual {
	m := &Manual{}
	m.current = e
	return m
}

// Fetch implements Observer.
func (m *Manual) Fetch(context.Context) (Event, error) {
	return m.snapshot(), nil
}

// Subscribe implements Observer.
func (m *Manual) Subscribe(fn func(Event)) func() {
	return m.subscribe(fn)
}

// Set publishes e. Subscribers are called synchronously, only on change.
func (m *Manual) Set(e Event) {
	m.publish(e)
}

// SetOnline publishes a known state.
func (m *Manual) SetOnline(connected bool) {
	m.publish(Known(connected))
}

// ParseMode validates a configured connectivity mode.
func ParseMode(s string) (string, error) {
	switch s {
	case "probe", "marker", "online", "offline":
		return s, nil
	}
	return "", fmt.Errorf("invalid connectivity mode %q (want probe, marker, online or offline)", s)
}
