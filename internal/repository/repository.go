package repository

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Common repository errors
var (
	ErrUserNotFound   = errors.New("user record not found")
	ErrCommitConflict = errors.New("commit conflict: concurrent write invalidated transaction")
	ErrTxnDone        = errors.New("transaction already committed or discarded")
	ErrInvalidRecord  = errors.New("invalid user record")
)

// UserRecord is the persisted counterpart of a synchronized external identity
type UserRecord struct {
	ID            string            `json:"id"`
	UserID        string            `json:"user_id"`
	PrincipalName string            `json:"principal_name"`
	ExternalRef   string            `json:"external_ref"`
	Attributes    map[string]string `json:"attributes,omitempty"`
	Version       int64             `json:"version"`
	CreatedAt     int64             `json:"created_at"`
	UpdatedAt     int64             `json:"updated_at"`
	LastSyncedAt  int64             `json:"last_synced_at"`
}

func (r *UserRecord) validate() error {
	if r == nil || r.UserID == "" {
		return ErrInvalidRecord
	}
	return nil
}

func (r *UserRecord) clone() *UserRecord {
	c := *r
	if r.Attributes != nil {
		c.Attributes = make(map[string]string, len(r.Attributes))
		for k, v := range r.Attributes {
			c.Attributes[k] = v
		}
	}
	return &c
}

// Repository is a user-record store with optimistic concurrency: reads come
// from a snapshot and conflicting writers are detected at commit time.
type Repository interface {
	// FindUser looks up a record outside of any write transaction
	FindUser(ctx context.Context, userID string) (*UserRecord, error)

	// Begin opens a read-write transaction. Transactions are not reusable:
	// after Commit or Discard a new one must be opened.
	Begin(ctx context.Context) (Txn, error)

	// Close releases the underlying storage
	Close() error
}

// Txn is a single optimistic transaction
type Txn interface {
	// GetUser reads a record as seen by this transaction
	GetUser(ctx context.Context, userID string) (*UserRecord, error)

	// PutUser stages a record write. The record's Version is set by the
	// repository to one more than the version this transaction observed.
	PutUser(ctx context.Context, record *UserRecord) error

	// Commit applies staged writes. A concurrent conflicting commit yields an
	// error wrapping ErrCommitConflict.
	Commit(ctx context.Context) error

	// Discard abandons the transaction. It is safe to call after Commit.
	Discard()
}

// Backend names
const (
	BackendBadger = "badger"
	BackendPebble = "pebble"
	BackendSQLite = "sqlite"
)

// Options selects and configures a repository backend
type Options struct {
	Backend string
	DataDir string
	Logger  *logrus.Logger
}

// Open creates the repository for the configured backend
func Open(opts Options) (Repository, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	dir := filepath.Join(opts.DataDir, "identities")

	switch opts.Backend {
	case BackendBadger, "":
		return NewBadgerRepository(BadgerOptions{Dir: dir, Logger: opts.Logger})
	case BackendPebble:
		return NewPebbleRepository(PebbleOptions{Dir: dir, Logger: opts.Logger})
	case BackendSQLite:
		return NewSQLiteRepository(SQLiteOptions{Path: filepath.Join(dir, "identities.db"), Logger: opts.Logger})
	default:
		return nil, fmt.Errorf("unknown repository backend: %s", opts.Backend)
	}
}

func userKey(userID string) []byte {
	return []byte("user:" + userID)
}
