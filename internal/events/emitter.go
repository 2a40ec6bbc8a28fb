// Package events provides a synchronous named-event emitter.
//
// Listeners are registered per event name and invoked in registration order
// on every emission. Emission is fail-fast: the first listener error stops the
// fan-out and is returned to the caller of Emit.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Listener is a callback registered under an event name.
// Arguments passed to Emit are forwarded verbatim.
type Listener func(args ...any) error

// Observer is notified after every emission that reached at least one listener.
// The metrics collector implements it.
type Observer interface {
	Emitted(name string, listeners int, took time.Duration, err error)
}

// ListenerError is returned by Emit when a listener fails.
type ListenerError struct {
	Event string
	Index int // position of the failing listener in registration order
	Err   error
}

func (e *ListenerError) Error() string {
	return fmt.Sprintf("event %q: listener %d: %v", e.Event, e.Index, e.Err)
}

func (e *ListenerError) Unwrap() error {
	return e.Err
}

// Emitter maps event names to ordered listener lists.
//
// The registry only grows: there is no removal and no "once" registration.
// A single RWMutex guards the registry so On and Emit may be called from
// different goroutines; listeners themselves run on the goroutine that
// called Emit.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[string][]Listener

	logger   *slog.Logger
	observer Observer
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger sets the logger used for debug tracing of emissions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) {
		e.logger = logger
	}
}

// WithObserver attaches an Observer.
func WithObserver(o Observer) Option {
	return func(e *Emitter) {
		e.observer = o
	}
}

// New creates an empty Emitter.
func New(opts ...Option) *Emitter {
	e := &Emitter{
		listeners: make(map[string][]Listener),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// On appends listener to the list for name. Registering the same function
// twice makes it run twice per emission. A nil listener is ignored.
func (e *Emitter) On(name string, listener Listener) {
	if listener == nil {
		return
	}
	e.mu.Lock()
	e.listeners[name] = append(e.listeners[name], listener)
	e.mu.Unlock()
}

// Emit synchronously invokes every listener registered under name, in
// registration order, passing args through.
//
// The listener list is captured when Emit starts: listeners added while the
// emission is running are not invoked by it. Emitting a name with no
// listeners is a no-op and returns nil. A listener error halts the emission
// and is returned as a *ListenerError. Panics are not recovered.
func (e *Emitter) Emit(name string, args ...any) error {
	e.mu.RLock()
	snapshot := e.listeners[name]
	e.mu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	start := time.Now()
	var err error
	for i, l := range snapshot {
		if lerr := l(args...); lerr != nil {
			err = &ListenerError{Event: name, Index: i, Err: lerr}
			break
		}
	}

	if e.logger != nil && e.logger.Enabled(context.Background(), slog.LevelDebug) {
		e.logger.Debug("event_emitted",
			"event", name,
			"listeners", len(snapshot),
			"error", err,
		)
	}
	if e.observer != nil {
		e.observer.Emitted(name, len(snapshot), time.Since(start), err)
	}
	return err
}

// ListenerCount returns the number of listeners registered under name.
func (e *Emitter) ListenerCount(name string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners[name])
}

// Listeners returns a copy of the listeners registered under name.
func (e *Emitter) Listeners(name string) []Listener {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Listener, len(e.listeners[name]))
	copy(out, e.listeners[name])
	return out
}

// EventNames returns the registered event names, sorted.
func (e *Emitter) EventNames() []string {
	e.mu.RLock()
	names := make([]string, 0, len(e.listeners))
	for name := range e.listeners {
		names = append(names, name)
	}
	e.mu.RUnlock()
	sort.Strings(names)
	return names
}
