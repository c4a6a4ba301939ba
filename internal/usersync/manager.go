package usersync

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager resolves sync handlers by name
type Manager struct {
	handlers map[string]Handler
	mu       sync.RWMutex
}

// NewManager creates a manager with the default handler registered
func NewManager() *Manager {
	m := &Manager{handlers: make(map[string]Handler)}
	m.Register(NewDefaultHandler(DefaultHandlerName))
	return m
}

// Register adds or replaces a handler
func (m *Manager) Register(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handlers[h.Name()] = h
	logrus.WithField("handler", h.Name()).Debug("Sync handler registered")
}

// GetSyncHandler returns the handler registered under name
func (m *Manager) GetSyncHandler(name string) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.handlers[name]
	return h, ok
}

// ListHandlers returns the registered handler names, sorted
func (m *Manager) ListHandlers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
