package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/numera-app/numera/internal/backend"
	"github.com/numera-app/numera/internal/history"
	"github.com/numera-app/numera/internal/observability"
	"github.com/numera-app/numera/internal/task"
)

// ErrUserCancelled marks an operation aborted by the user, as opposed to a
// genuine backend failure. UI code branches on this with errors.Is to
// suppress error notifications for intentional cancellations.
var ErrUserCancelled = errors.New("cancelled by user")

// StartFunc performs exactly one task-starting backend call and returns
// the assigned task id. The engine never retries it.
type StartFunc func(ctx context.Context) (task.ID, error)

// Backend is the slice of the backend API the engine polls.
type Backend interface {
	QueryTasks(ctx context.Context) (backend.TaskList, error)
	TaskOutcome(ctx context.Context, id task.ID) (task.Outcome, bool, error)
}

// Event is emitted whenever a dispatched task settles, for the UI stream.
type Event struct {
	TaskID      task.ID   `json:"task_id"`
	Type        task.Type `json:"type"`
	Description string    `json:"description"`
	Success     bool      `json:"success"`
	Message     string    `json:"message,omitempty"`
	At          time.Time `json:"at"`
}

// Engine correlates dispatched backend tasks with their polled outcomes.
type Engine struct {
	backend  Backend
	registry *task.Registry
	journal  *history.Journal
	metrics  *observability.Metrics

	mu       sync.Mutex
	inflight map[task.ID]task.Type
	reserved map[task.Type]struct{}

	subMu       sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int
}

func New(b Backend, registry *task.Registry, journal *history.Journal, metrics *observability.Metrics) *Engine {
	return &Engine{
		backend:     b,
		registry:    registry,
		journal:     journal,
		metrics:     metrics,
		inflight:    make(map[task.ID]task.Type),
		reserved:    make(map[task.Type]struct{}),
		subscribers: make(map[int]chan Event),
	}
}

// Await starts a backend task and returns the future that settles when the
// poller later discovers its outcome. A second Await for a type that is
// still outstanding fails with task.ErrTypePending before the start call is
// made; silently clobbering the first caller's future would strand it
// forever.
func (e *Engine) Await(ctx context.Context, typ task.Type, meta task.Meta, start StartFunc) (*task.Future, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("unknown task type %q", typ)
	}
	if err := e.reserve(typ); err != nil {
		return nil, err
	}

	id, err := start(ctx)
	if err != nil {
		e.unreserve(typ)
		return nil, fmt.Errorf("start %s task: %w", typ, err)
	}
	if !id.Valid() {
		e.unreserve(typ)
		return nil, fmt.Errorf("start %s task: backend returned task id %d", typ, id)
	}

	fut := task.NewFuture(id, typ, meta)
	if err := e.registry.Register(fut); err != nil {
		// Someone registered the type on the shared registry behind our
		// back. The already-started backend task will surface as abandoned.
		e.unreserve(typ)
		return nil, err
	}

	e.mu.Lock()
	delete(e.reserved, typ)
	e.inflight[id] = typ
	e.mu.Unlock()
	if e.metrics != nil {
		e.metrics.TasksInFlight.Inc()
	}
	return fut, nil
}

// reserve claims the type for a single dispatch. The reservation is held
// across the start call, so a concurrent Await of the same type is rejected
// before it can issue a second backend call.
func (e *Engine) reserve(typ task.Type) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.reserved[typ]; ok {
		return fmt.Errorf("%w: %s", task.ErrTypePending, typ)
	}
	if e.registry.Has(typ) {
		return fmt.Errorf("%w: %s", task.ErrTypePending, typ)
	}
	e.reserved[typ] = struct{}{}
	return nil
}

func (e *Engine) unreserve(typ task.Type) {
	e.mu.Lock()
	delete(e.reserved, typ)
	e.mu.Unlock()
}

// Reset drops all id tracking, so completions of tasks dispatched before
// the reset can no longer reach futures registered after it. Called when
// the session that dispatched the tasks ends, together with the registry
// and notification store resets.
func (e *Engine) Reset() {
	e.mu.Lock()
	n := len(e.inflight)
	e.inflight = make(map[task.ID]task.Type)
	e.mu.Unlock()
	if n > 0 && e.metrics != nil {
		e.metrics.TasksInFlight.Sub(float64(n))
	}
}

// Cancel settles the outstanding task of the given type with
// ErrUserCancelled. Returns false when nothing of that type is in flight.
// The backend computation is not aborted; its eventual completion is
// dropped as abandoned.
func (e *Engine) Cancel(typ task.Type) bool {
	rec, ok := e.registry.Fail(typ, ErrUserCancelled)
	if !ok {
		return false
	}
	e.forget(rec.ID)
	if e.metrics != nil {
		e.metrics.ObserveTaskSettled(string(typ), "cancelled", time.Since(rec.StartedAt))
	}
	return true
}

// PollTasks runs one poll cycle: ask the backend which tasks finished,
// fetch the outcome of every finished task this engine dispatched, and
// settle the matching registry entries. One unfetchable outcome does not
// block the rest of the cycle.
func (e *Engine) PollTasks(ctx context.Context) error {
	list, err := e.backend.QueryTasks(ctx)
	if err != nil {
		return fmt.Errorf("query tasks: %w", err)
	}

	var firstErr error
	for _, id := range list.Completed {
		typ, tracked := e.trackedType(id)
		if !tracked {
			// Not one of ours, or the backend re-reported an id we
			// already forgot. Either way there is nothing to deliver to.
			continue
		}

		outcome, done, err := e.backend.TaskOutcome(ctx, id)
		if err != nil {
			if errors.Is(err, backend.ErrTaskNotFound) {
				// Backend forgot the task between the list and the fetch.
				e.forget(id)
				e.registry.Unregister(typ)
				continue
			}
			if firstErr == nil {
				firstErr = fmt.Errorf("task %d outcome: %w", id, err)
			}
			continue
		}
		if !done {
			continue
		}
		e.settle(id, typ, outcome)
	}
	return firstErr
}

// Snapshot returns all in-flight task records.
func (e *Engine) Snapshot() []task.Record {
	return e.registry.Pending()
}

// Subscribe returns a channel receiving settle events. Slow subscribers
// drop; the cancel func releases the subscription.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	e.subMu.Lock()
	e.nextSubID++
	id := e.nextSubID
	e.subscribers[id] = ch
	e.subMu.Unlock()

	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(c)
		}
	}
}

func (e *Engine) settle(id task.ID, typ task.Type, outcome task.Outcome) {
	e.forget(id)

	rec, delivered := e.registry.Settle(typ, outcome)
	if !delivered {
		// The caller abandoned the future. Benign: the view may simply
		// have been closed before the task finished.
		if e.metrics != nil {
			e.metrics.ObserveIndicator("abandoned_task")
		}
		return
	}

	success := !outcome.Failed()
	result := "success"
	if !success {
		result = "failure"
	}
	now := time.Now().UTC()
	if e.metrics != nil {
		e.metrics.ObserveTaskSettled(string(typ), result, now.Sub(rec.StartedAt))
	}
	if e.journal != nil {
		e.journal.Record(history.Entry{
			TaskID:      id,
			Type:        typ,
			Description: rec.Meta.Description,
			Success:     success,
			Message:     outcome.Message,
			StartedAt:   rec.StartedAt,
			SettledAt:   now,
		})
	}
	e.publish(Event{
		TaskID:      id,
		Type:        typ,
		Description: rec.Meta.Description,
		Success:     success,
		Message:     outcome.Message,
		At:          now,
	})
}

func (e *Engine) trackedType(id task.ID) (task.Type, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	typ, ok := e.inflight[id]
	return typ, ok
}

func (e *Engine) forget(id task.ID) {
	e.mu.Lock()
	_, ok := e.inflight[id]
	delete(e.inflight, id)
	e.mu.Unlock()
	if ok && e.metrics != nil {
		e.metrics.TasksInFlight.Dec()
	}
}

func (e *Engine) publish(evt Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}
