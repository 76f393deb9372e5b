package session

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrSessionExists is returned when a session is already active for a call.
var ErrSessionExists = errors.New("session already exists for call")

// Manager tracks the active sessions, at most one per call id.
type Manager struct {
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{
		logger:   logger.With("subsystem", "sessions"),
		sessions: make(map[string]*Session),
	}
}

// Add registers a session under its call id. A second session for the same
// call id is rejected; the caller must tear its session down.
func (m *Manager) Add(s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.info.CallID]; ok {
		return ErrSessionExists
	}
	m.sessions[s.info.CallID] = s
	m.logger.Info("session registered", "call_id", s.info.CallID, "active", len(m.sessions))
	return nil
}

// Get returns the active session for a call id.
func (m *Manager) Get(callID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[callID]
	return s, ok
}

// Remove drops a session from the registry. Safe if already removed.
func (m *Manager) Remove(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[callID]; ok {
		delete(m.sessions, callID)
		m.logger.Info("session removed", "call_id", callID, "active", len(m.sessions))
	}
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Each calls fn for every active session.
func (m *Manager) Each(fn func(*Session)) {
	m.mu.Lock()
	snapshot := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		snapshot = append(snapshot, s)
	}
	m.mu.Unlock()
	for _, s := range snapshot {
		fn(s)
	}
}
