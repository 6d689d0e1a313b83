package binding

import (
	"sort"
	"sync"

	"github.com/siakad/templar/internal/errors"
)

type entry struct {
	mu      sync.Mutex
	session *Session
}

// Manager keeps one open Session per template for the long-running
// surfaces. Calls on the same template are serialized.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*entry)}
}

// Open starts a session for doc, replacing any session already open for
// the same template.
func (m *Manager) Open(doc Document, initial Set, version int64) *Session {
	s := NewSession(doc, initial)
	s.SetVersion(version)

	m.mu.Lock()
	m.sessions[doc.TemplateID] = &entry{session: s}
	m.mu.Unlock()
	return s
}

// With runs fn with exclusive access to the session for templateID.
func (m *Manager) With(templateID string, fn func(*Session) error) error {
	m.mu.Lock()
	e, ok := m.sessions[templateID]
	m.mu.Unlock()
	if !ok {
		return errors.NewNotFound("session " + templateID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.session)
}

// Close discards the session for templateID. It reports whether one was open.
func (m *Manager) Close(templateID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[templateID]; !ok {
		return false
	}
	delete(m.sessions, templateID)
	return true
}

// List returns the template IDs with an open session, sorted.
func (m *Manager) List() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
