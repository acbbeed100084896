package history

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultRingSize = 256

// Journal keeps the most recent settled tasks in memory and mirrors them to
// the optional store. Writes to the store are best-effort and asynchronous;
// a write failure never affects task settlement.
type Journal struct {
	mu      sync.RWMutex
	ring    []Entry
	ringMax int
	store   Store
}

func NewJournal(store Store) *Journal {
	return &Journal{
		ringMax: defaultRingSize,
		store:   store,
	}
}

func (j *Journal) Record(entry Entry) {
	j.mu.Lock()
	j.ring = append(j.ring, entry)
	if len(j.ring) > j.ringMax {
		trimFrom := len(j.ring) - j.ringMax
		j.ring = append([]Entry(nil), j.ring[trimFrom:]...)
	}
	store := j.store
	j.mu.Unlock()

	if store == nil {
		return
	}
	go func(snapshot Entry) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = store.SaveEntry(ctx, snapshot)
	}(entry)
}

// Recent returns up to limit entries, newest first, merging the in-memory
// ring with the store when one is configured. Store failures degrade to the
// ring contents.
func (j *Journal) Recent(ctx context.Context, limit int) []Entry {
	if limit <= 0 {
		limit = 50
	}

	j.mu.RLock()
	mem := make([]Entry, len(j.ring))
	copy(mem, j.ring)
	store := j.store
	j.mu.RUnlock()

	merged := mem
	if store != nil {
		persisted, err := store.ListRecent(ctx, limit)
		if err == nil {
			seen := make(map[int64]bool, len(mem))
			for _, e := range mem {
				seen[int64(e.TaskID)] = true
			}
			for _, e := range persisted {
				if !seen[int64(e.TaskID)] {
					merged = append(merged, e)
				}
			}
		}
	}

	sort.Slice(merged, func(i, k int) bool {
		return merged[i].SettledAt.After(merged[k].SettledAt)
	})
	if limit > len(merged) {
		limit = len(merged)
	}
	return merged[:limit]
}

// Persistent reports whether entries are mirrored to a configured store.
func (j *Journal) Persistent() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.store != nil
}

func (j *Journal) Close() error {
	j.mu.RLock()
	store := j.store
	j.mu.RUnlock()
	if store == nil {
		return nil
	}
	return store.Close()
}
