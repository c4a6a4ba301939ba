package idp

import (
	"context"
	"fmt"
	"sync"
)

// Provider defines the interface that all identity providers must implement
type Provider interface {
	// Name returns the provider name, constant for the lifetime of the instance
	Name() string

	// GetUser returns the identity for a user id
	GetUser(ctx context.Context, userID string) (*ExternalIdentity, error)

	// GetIdentity resolves a reference. A reference owned by another provider
	// yields (nil, nil).
	GetIdentity(ctx context.Context, ref ExternalIdentityRef) (*ExternalIdentity, error)

	// GetGroup returns a group by name, or (nil, nil) when unknown
	GetGroup(ctx context.Context, name string) (*ExternalGroup, error)

	// Authenticate maps credentials to an identity. Unknown credential kinds
	// fail with ErrUnsupportedCredentials.
	Authenticate(ctx context.Context, credentials any) (*ExternalIdentity, error)

	// ListUsers enumerates the provider's users
	ListUsers(ctx context.Context) ([]*ExternalIdentity, error)

	// ListGroups enumerates the provider's groups
	ListGroups(ctx context.Context) ([]*ExternalGroup, error)
}

// ProviderFactory creates a Provider from a ProviderConfig
type ProviderFactory func(cfg ProviderConfig) (Provider, error)

var (
	registryMu sync.RWMutex
	// registry holds registered provider factories
	registry = map[string]ProviderFactory{}
)

// RegisterProvider registers a provider factory for a given type
func RegisterProvider(providerType string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[providerType] = factory
}

// NewProvider creates a new Provider instance from a ProviderConfig
func NewProvider(cfg ProviderConfig) (Provider, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
	return factory(cfg)
}
