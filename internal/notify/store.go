package notify

import (
	"strings"
	"sync"
	"time"

	"github.com/numera-app/numera/internal/observability"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Notification is one user-facing message. Ids are strictly increasing and
// unique within a session; a notification is never mutated after creation.
type Notification struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

type draft struct {
	title    string
	message  string
	severity Severity
}

// Store owns the process-wide notification list. Mutations replace the
// backing slice so concurrent readers always observe a complete list, never
// a partially appended batch.
type Store struct {
	metrics *observability.Metrics

	mu     sync.RWMutex
	nextID int64
	list   []Notification

	subscribers map[int]chan Notification
	nextSubID   int
}

func NewStore(metrics *observability.Metrics) *Store {
	return &Store{
		metrics:     metrics,
		nextID:      1,
		subscribers: make(map[int]chan Notification),
	}
}

// Push appends a single locally-produced notification, e.g. a poll cycle
// failure surfaced by the monitor.
func (s *Store) Push(title, message string, severity Severity) Notification {
	out := s.append([]draft{{title: title, message: message, severity: severity}})
	return out[0]
}

// append assigns ids in one monotonic pass and installs the whole batch
// atomically. Empty batches mutate nothing and consume no ids.
func (s *Store) append(batch []draft) []Notification {
	if len(batch) == 0 {
		return nil
	}
	now := time.Now().UTC()

	s.mu.Lock()
	created := make([]Notification, 0, len(batch))
	for _, d := range batch {
		created = append(created, Notification{
			ID:        s.nextID,
			Title:     strings.TrimSpace(d.title),
			Message:   strings.TrimSpace(d.message),
			Severity:  d.severity,
			CreatedAt: now,
		})
		s.nextID++
	}
	next := make([]Notification, 0, len(s.list)+len(created))
	next = append(next, s.list...)
	next = append(next, created...)
	s.list = next
	subs := s.subscribers
	for _, n := range created {
		for _, ch := range subs {
			select {
			case ch <- n:
			default:
			}
		}
	}
	s.mu.Unlock()

	if s.metrics != nil {
		for _, n := range created {
			s.metrics.Notifications.WithLabelValues(string(n.Severity)).Inc()
		}
	}
	return created
}

// List returns a snapshot of all live notifications in creation order.
func (s *Store) List() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Notification, len(s.list))
	copy(out, s.list)
	return out
}

// Dismiss removes the notification with the given id. Returns false when no
// such notification is live.
func (s *Store) Dismiss(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.list {
		if n.ID != id {
			continue
		}
		next := make([]Notification, 0, len(s.list)-1)
		next = append(next, s.list[:i]...)
		next = append(next, s.list[i+1:]...)
		s.list = next
		return true
	}
	return false
}

// Clear drops all live notifications. The id counter keeps running so ids
// never repeat within a session.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
}

// Reset restores the store to its initial state, dropping ids as well.
// Used when the owning session ends.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.list = nil
	s.nextID = 1
}

// Subscribe returns a channel receiving every notification created after
// the call. Slow subscribers drop; the returned cancel func releases the
// subscription.
func (s *Store) Subscribe() (<-chan Notification, func()) {
	ch := make(chan Notification, 64)
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = ch
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(c)
		}
	}
}
