package herald

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// EventError is the reserved event type that receives *VerificationError
// values when request verification fails.
const EventError = "error"

// Listener handles a single dispatched event payload.
type Listener func(ctx context.Context, event any) error

// Registry stores event listeners keyed by event type. It is safe for
// concurrent use.
type Registry struct {
	mu        sync.RWMutex
	listeners map[string][]Listener
}

// NewRegistry creates an empty listener registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[string][]Listener)}
}

// On registers fn for eventType. Listeners for a type run in registration
// order.
func (r *Registry) On(eventType string, fn Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[eventType] = append(r.listeners[eventType], fn)
}

// Listeners returns a copy of the listeners registered for eventType, in
// registration order.
func (r *Registry) Listeners(eventType string) []Listener {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Listener, len(r.listeners[eventType]))
	copy(out, r.listeners[eventType])
	return out
}

// Emit invokes every listener registered for eventType in registration
// order. A listener that returns an error or panics does not stop the
// remaining listeners; the collected failures are returned after all
// listeners have run. Emitting a type with no listeners is a no-op.
func (r *Registry) Emit(ctx context.Context, eventType string, event any) error {
	var errs []error
	for _, fn := range r.Listeners(eventType) {
		if err := invoke(ctx, fn, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// invoke runs a single listener, converting a panic into an error.
func invoke(ctx context.Context, fn Listener, event any) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("listener panic: %v", rec)
		}
	}()
	return fn(ctx, event)
}
