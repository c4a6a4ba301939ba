package idp

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Manager resolves identity providers by name
type Manager struct {
	providers map[string]Provider
	mu        sync.RWMutex
}

// NewManager creates an empty provider manager
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]Provider),
	}
}

// Register adds a provider under its own name, replacing any previous one
func (m *Manager) Register(p Provider) {
	m.mu.Lock()
	m.providers[p.Name()] = p
	m.mu.Unlock()

	logrus.WithField("name", p.Name()).Info("Identity provider registered")
}

// CreateProvider builds a provider through the factory registry and registers it
func (m *Manager) CreateProvider(cfg ProviderConfig) (Provider, error) {
	p, err := NewProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider instance: %w", err)
	}
	m.Register(p)
	return p, nil
}

// Unregister removes a provider
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	delete(m.providers, name)
	m.mu.Unlock()

	logrus.WithField("name", name).Info("Identity provider unregistered")
}

// GetProvider returns the provider registered under name
func (m *Manager) GetProvider(name string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[name]
	return p, ok
}

// ListProviders returns the registered provider names, sorted
func (m *Manager) ListProviders() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
