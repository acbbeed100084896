package task

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrTypePending means a handler for the task type is already
	// registered. A second dispatch of the same type before the first
	// settles is a programming error and must not silently clobber the
	// first caller's future.
	ErrTypePending = errors.New("task type already has a pending handler")
)

// Error is a backend-reported task failure: the task finished but the
// backend attached a non-empty message to the outcome.
type Error struct {
	Type        Type
	Description string
	Message     string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("task %s failed: %s", e.Type, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Description, e.Message)
}

// Registry maps each task type to its single pending future. It owns no
// timers and performs no backend calls; the engine settles entries through
// it as completions are discovered.
type Registry struct {
	mu      sync.RWMutex
	pending map[Type]*Future
}

func NewRegistry() *Registry {
	return &Registry{
		pending: make(map[Type]*Future),
	}
}

// Register stores the future keyed by its task type. It fails with
// ErrTypePending if an entry for that type already exists.
func (r *Registry) Register(f *Future) error {
	typ := f.record.Type
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[typ]; ok {
		return fmt.Errorf("%w: %s", ErrTypePending, typ)
	}
	r.pending[typ] = f
	return nil
}

// Unregister removes the entry for the type. Removing an absent type is a
// no-op.
func (r *Registry) Unregister(typ Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, typ)
}

func (r *Registry) Has(typ Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.pending[typ]
	return ok
}

// Settle delivers a finished task's outcome to the pending future for the
// type. The entry is removed before the future settles, so a continuation
// that immediately re-dispatches the same type does not collide with the
// old entry. Returns false if no handler was registered; the outcome is
// then dropped, since abandoning interest in a result is legitimate.
func (r *Registry) Settle(typ Type, out Outcome) (Record, bool) {
	r.mu.Lock()
	f, ok := r.pending[typ]
	if ok {
		delete(r.pending, typ)
	}
	r.mu.Unlock()
	if !ok {
		return Record{}, false
	}

	rec := f.Record()
	if out.Failed() {
		f.reject(&Error{
			Type:        typ,
			Description: rec.Meta.Description,
			Message:     out.Message,
		})
		return rec, true
	}
	f.resolve(out)
	return rec, true
}

// Fail settles the pending future for the type with an engine-local error,
// e.g. a user cancellation while the task was in flight.
func (r *Registry) Fail(typ Type, err error) (Record, bool) {
	r.mu.Lock()
	f, ok := r.pending[typ]
	if ok {
		delete(r.pending, typ)
	}
	r.mu.Unlock()
	if !ok {
		return Record{}, false
	}
	f.reject(err)
	return f.Record(), true
}

// Pending returns a snapshot of all outstanding task records.
func (r *Registry) Pending() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.pending))
	for _, f := range r.pending {
		out = append(out, f.Record())
	}
	return out
}

// Reset drops all entries without settling them, e.g. when the session
// that dispatched them ends.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = make(map[Type]*Future)
}
