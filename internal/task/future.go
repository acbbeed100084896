package task

import (
	"context"
	"sync"
	"time"
)

// Future is the pending result of a dispatched task. It settles exactly
// once, either with the backend-reported outcome or with an error.
type Future struct {
	record Record

	once    sync.Once
	done    chan struct{}
	outcome Outcome
	err     error
}

func NewFuture(id ID, typ Type, meta Meta) *Future {
	return &Future{
		record: Record{
			ID:        id,
			Type:      typ,
			Meta:      meta.Clone(),
			StartedAt: time.Now().UTC(),
		},
		done: make(chan struct{}),
	}
}

func (f *Future) Record() Record {
	return f.record.Clone()
}

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future settles or ctx is cancelled. Abandoning a
// Wait does not unregister the task; a later completion with no waiter is
// dropped by the registry.
func (f *Future) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-f.done:
		return f.outcome, f.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (f *Future) resolve(out Outcome) {
	f.once.Do(func() {
		f.outcome = out
		close(f.done)
	})
}

func (f *Future) reject(err error) {
	f.once.Do(func() {
		f.err = err
		close(f.done)
	})
}
