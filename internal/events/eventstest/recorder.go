// Package eventstest provides an event bus that records instead of
// delivering.
package eventstest

import (
	"context"
	"sync"

	"dispatch_backend/internal/events"
)

// Recorder is a Bus that keeps every published event.
type Recorder struct {
	mu     sync.Mutex
	Events []events.Event
}

// Publish implements events.Bus.
func (r *Recorder) Publish(_ context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, event)
}

// PublishSync implements events.Bus.
func (r *Recorder) PublishSync(ctx context.Context, event events.Event) error {
	r.Publish(ctx, event)
	return nil
}

// Subscribe implements events.Bus. Recorded events are never delivered.
func (r *Recorder) Subscribe(string, events.Handler) {}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.EventName()
	}
	return out
}

var _ events.Bus = (*Recorder)(nil)
