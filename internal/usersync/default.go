package usersync

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/maxiofs/headerauth/internal/idp"
	"github.com/maxiofs/headerauth/internal/repository"
)

// DefaultHandlerName is the name of the built-in sync handler
const DefaultHandlerName = "default"

// DefaultHandler creates a user record on first sync and maps identity
// properties onto record attributes.
type DefaultHandler struct {
	name string
	now  func() time.Time
}

// NewDefaultHandler returns a handler registered under name, or under
// DefaultHandlerName when name is empty
func NewDefaultHandler(name string) *DefaultHandler {
	if name == "" {
		name = DefaultHandlerName
	}
	return &DefaultHandler{name: name, now: time.Now}
}

// Name implements Handler
func (h *DefaultHandler) Name() string {
	return h.name
}

// FindIdentity implements Handler
func (h *DefaultHandler) FindIdentity(ctx context.Context, repo repository.Repository, userID string) (*repository.UserRecord, error) {
	rec, err := repo.FindUser(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateContext implements Handler
func (h *DefaultHandler) CreateContext(provider idp.Provider, txn repository.Txn) (Context, error) {
	if provider == nil || txn == nil {
		return nil, fmt.Errorf("sync context requires a provider and a transaction")
	}
	return &defaultContext{handler: h, provider: provider, txn: txn}, nil
}

type defaultContext struct {
	handler  *DefaultHandler
	provider idp.Provider
	txn      repository.Txn
	closed   bool
}

func (c *defaultContext) Sync(ctx context.Context, identity *idp.ExternalIdentity) (Status, error) {
	if c.closed {
		return StatusFailed, ErrContextClosed
	}
	if identity == nil || identity.ID == "" {
		return StatusFailed, ErrInvalidIdentity
	}
	if identity.ProviderName != "" && identity.ProviderName != c.provider.Name() {
		return StatusFailed, fmt.Errorf("%w: %s", ErrForeignIdentity, identity.ProviderName)
	}

	now := c.handler.now().Unix()

	existing, err := c.txn.GetUser(ctx, identity.ID)
	if errors.Is(err, repository.ErrUserNotFound) {
		rec := &repository.UserRecord{
			ID:            uuid.New().String(),
			UserID:        identity.ID,
			PrincipalName: identity.PrincipalName,
			ExternalRef:   identity.Ref.String(),
			Attributes:    maps.Clone(identity.Properties),
			CreatedAt:     now,
			UpdatedAt:     now,
			LastSyncedAt:  now,
		}
		if err := c.txn.PutUser(ctx, rec); err != nil {
			return StatusFailed, err
		}
		return StatusCreated, nil
	}
	if err != nil {
		return StatusFailed, err
	}

	// Another writer created the record after the fast path missed it
	if maps.Equal(existing.Attributes, identity.Properties) {
		return StatusUnchanged, nil
	}

	existing.Attributes = maps.Clone(identity.Properties)
	existing.UpdatedAt = now
	existing.LastSyncedAt = now
	if err := c.txn.PutUser(ctx, existing); err != nil {
		return StatusFailed, err
	}
	return StatusUpdated, nil
}

func (c *defaultContext) Close() error {
	c.closed = true
	return nil
}
