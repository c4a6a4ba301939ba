package usersync

import (
	"context"
	"errors"
	"time"

	"github.com/maxiofs/headerauth/internal/idp"
	"github.com/maxiofs/headerauth/internal/repository"
)

// MaxSyncAttempts bounds the optimistic retry loop. Not configurable.
const MaxSyncAttempts = 3

// Status is the result of reconciling one identity
type Status string

const (
	StatusCreated   Status = "created"
	StatusUpdated   Status = "updated"
	StatusUnchanged Status = "unchanged"
	StatusFailed    Status = "failed"
)

// Sync errors
var (
	ErrAttemptsExhausted = errors.New("sync attempts exhausted")
	ErrInvalidIdentity   = errors.New("invalid external identity")
	ErrForeignIdentity   = errors.New("identity belongs to a different provider")
	ErrContextClosed     = errors.New("sync context is closed")
	ErrHandlerNotFound   = errors.New("sync handler not found")
)

// Outcome describes a finished sync. Attempts is 0 when the fast path found
// an existing record and no transaction was opened.
type Outcome struct {
	Status   Status
	Attempts int
	Err      error
}

// OK reports whether the sync reached the repository successfully
func (o Outcome) OK() bool {
	return o.Status != StatusFailed
}

// Handler reconciles external identities into a repository
type Handler interface {
	Name() string

	// FindIdentity looks up an already synced record. A missing record is
	// reported as (nil, nil).
	FindIdentity(ctx context.Context, repo repository.Repository, userID string) (*repository.UserRecord, error)

	// CreateContext opens a sync context bound to one transaction. Contexts
	// are single use and must be closed before the next one is created.
	CreateContext(provider idp.Provider, txn repository.Txn) (Context, error)
}

// Context applies identities inside a single transaction
type Context interface {
	Sync(ctx context.Context, identity *idp.ExternalIdentity) (Status, error)
	Close() error
}

// Recorder receives sync outcomes for metrics
type Recorder interface {
	RecordSync(status string, attempts int, duration time.Duration)
}
