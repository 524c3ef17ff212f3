package events

import (
	"context"
	"errors"
	"sync"

	"github.com/aegisshield/compliance-tracker/internal/compliance"
)

// Multi fans an event out to several sinks. Every sink is attempted; the
// returned error joins the failures.
type Multi []compliance.EventSink

// Publish implements compliance.EventSink
func (m Multi) Publish(ctx context.Context, event compliance.Event) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory
type Recorder struct {
	mu     sync.Mutex
	events []compliance.Event
}

// Publish implements compliance.EventSink
func (r *Recorder) Publish(_ context.Context, event compliance.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []compliance.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]compliance.Event(nil), r.events...)
}

// OfType returns recorded events of one type
func (r *Recorder) OfType(t compliance.EventType) []compliance.Event {
	var out []compliance.Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
