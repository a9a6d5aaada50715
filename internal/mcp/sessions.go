// ABOUTME: In-memory MCP session table keyed by opaque, time-ordered ids
// ABOUTME: Sessions remember the principal that created them and live until deleted

package mcp

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionInfo describes one client session.
type SessionInfo struct {
	ID        string
	Principal string // empty for anonymous sessions
	CreatedAt time.Time
}

// SessionManager tracks active sessions. It has its own lock, separate from
// the dispatcher's.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]SessionInfo
	done     map[string]chan struct{} // closed on Remove
}

// NewSessionManager creates an empty session table.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]SessionInfo),
		done:     make(map[string]chan struct{}),
	}
}

// Create mints and registers a new session owned by principal.
func (m *SessionManager) Create(principal string) SessionInfo {
	info := SessionInfo{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Principal: principal,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.sessions[info.ID] = info
	m.done[info.ID] = make(chan struct{})
	m.mu.Unlock()
	return info
}

// Owned reports whether id is a live session created by principal.
func (m *SessionManager) Owned(id, principal string) bool {
	info, ok := m.Get(id)
	return ok && info.Principal == principal
}

// Get returns the session for id.
func (m *SessionManager) Get(id string) (SessionInfo, bool) {
	m.mu.RLock()
	info, ok := m.sessions[id]
	m.mu.RUnlock()
	return info, ok
}

// Remove deletes a session and reports whether it existed.
func (m *SessionManager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, existed := m.sessions[id]
	if !existed {
		return false
	}
	delete(m.sessions, id)
	close(m.done[id])
	delete(m.done, id)
	return true
}

// Done returns a channel closed when the session is removed, or nil if the
// session does not exist.
func (m *SessionManager) Done(id string) <-chan struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.done[id]
	if !ok {
		return nil
	}
	return ch
}

// Count returns the number of live sessions.
func (m *SessionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
