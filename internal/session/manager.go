package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/numera-app/numera/internal/observability"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var (
	ErrNotFound      = errors.New("session not found")
	ErrAlreadyActive = errors.New("user already has an active session")
)

// Session ties a logged-in backend user to the monitoring the daemon runs
// on their behalf. The id is a local correlation id for the UI, not a
// backend credential.
type Session struct {
	ID             string    `json:"session_id"`
	Username       string    `json:"username"`
	Status         Status    `json:"status"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	sessionByUser     map[string]string
	inactivityTimeout time.Duration
	metrics           *observability.Metrics
	onLogin           func(*Session)
	onEnd             func(*Session)
}

func NewManager(inactivityTimeout time.Duration, metrics *observability.Metrics) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 30 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		sessionByUser:     make(map[string]string),
		inactivityTimeout: inactivityTimeout,
		metrics:           metrics,
	}
}

// SetHooks installs the lifecycle callbacks. onLogin fires when a session
// is created, onEnd when it is logged out or expired. Hooks run outside
// the manager lock.
func (m *Manager) SetHooks(onLogin, onEnd func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLogin = onLogin
	m.onEnd = onEnd
}

// Login creates the session for a backend user. A user holds at most one
// active session at a time.
func (m *Manager) Login(username string) (*Session, error) {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		Username:       username,
		Status:         StatusActive,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	if id, ok := m.sessionByUser[username]; ok {
		if cur, ok := m.sessions[id]; ok && cur.Status == StatusActive {
			m.mu.Unlock()
			return nil, ErrAlreadyActive
		}
	}
	m.sessions[s.ID] = s
	m.sessionByUser[username] = s.ID
	hook := m.onLogin
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Inc()
	}
	if hook != nil {
		hook(clone(s))
	}
	return clone(s), nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Touch records UI activity, pushing back the inactivity deadline.
func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != StatusActive {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

// Logout ends the session. A second Logout of the same id returns
// ErrNotFound rather than firing the end hook again.
func (m *Manager) Logout(sessionID string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok || s.Status != StatusActive {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	delete(m.sessionByUser, s.Username)
	hook := m.onEnd
	ended := clone(s)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ActiveSessions.Dec()
	}
	if hook != nil {
		hook(ended)
	}
	return ended, nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireInactive()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, s := range m.sessions {
		if s.Status == StatusActive {
			count++
		}
	}
	return count
}

func (m *Manager) expireInactive() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for _, s := range m.sessions {
		if s.Status != StatusActive {
			continue
		}
		if now.Sub(s.LastActivityAt) < m.inactivityTimeout {
			continue
		}
		s.Status = StatusEnded
		s.LastActivityAt = now
		delete(m.sessionByUser, s.Username)
		expired = append(expired, clone(s))
	}
	hook := m.onEnd
	m.mu.Unlock()

	for _, s := range expired {
		if m.metrics != nil {
			m.metrics.ActiveSessions.Dec()
		}
		if hook != nil {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
