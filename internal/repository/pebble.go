package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/sirupsen/logrus"
)

// PebbleRepository stores user records in Pebble. Pebble has no
// transactions of its own, so each Txn reads from a snapshot, buffers writes
// in a batch and validates the versions it read when committing.
type PebbleRepository struct {
	db       *pebble.DB
	commitMu sync.Mutex
	logger   *logrus.Logger
}

// PebbleOptions contains configuration options for PebbleRepository
type PebbleOptions struct {
	Dir    string
	Logger *logrus.Logger
}

// NewPebbleRepository opens a Pebble-backed repository
func NewPebbleRepository(opts PebbleOptions) (*PebbleRepository, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create identity directory: %w", err)
	}

	db, err := pebble.Open(opts.Dir, &pebble.Options{
		Logger: &pebbleLogger{logger: opts.Logger},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db: %w", err)
	}

	opts.Logger.WithField("path", opts.Dir).Info("Pebble identity repository initialized")
	return &PebbleRepository{db: db, logger: opts.Logger}, nil
}

// FindUser implements Repository
func (r *PebbleRepository) FindUser(ctx context.Context, userID string) (*UserRecord, error) {
	return pebbleGet(r.db, userID)
}

// Begin implements Repository
func (r *PebbleRepository) Begin(ctx context.Context) (Txn, error) {
	return &pebbleTxn{
		repo:   r,
		snap:   r.db.NewSnapshot(),
		reads:  make(map[string]int64),
		writes: make(map[string]*UserRecord),
	}, nil
}

// Close implements Repository
func (r *PebbleRepository) Close() error {
	return r.db.Close()
}

type pebbleTxn struct {
	repo   *PebbleRepository
	snap   *pebble.Snapshot
	reads  map[string]int64 // version observed per user id; 0 means absent
	writes map[string]*UserRecord
	done   bool
}

func (t *pebbleTxn) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	if t.done {
		return nil, ErrTxnDone
	}
	if rec, ok := t.writes[userID]; ok {
		return rec.clone(), nil
	}

	rec, err := pebbleGet(t.snap, userID)
	switch {
	case err == nil:
		t.reads[userID] = rec.Version
		return rec, nil
	case errors.Is(err, ErrUserNotFound):
		t.reads[userID] = 0
		return nil, err
	default:
		return nil, err
	}
}

func (t *pebbleTxn) PutUser(ctx context.Context, record *UserRecord) error {
	if t.done {
		return ErrTxnDone
	}
	if err := record.validate(); err != nil {
		return err
	}

	if _, seen := t.reads[record.UserID]; !seen {
		if _, err := t.GetUser(ctx, record.UserID); err != nil && !errors.Is(err, ErrUserNotFound) {
			return err
		}
	}

	record.Version = t.reads[record.UserID] + 1
	t.writes[record.UserID] = record.clone()
	return nil
}

func (t *pebbleTxn) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxnDone
	}
	defer t.Discard()

	if len(t.writes) == 0 {
		return nil
	}

	t.repo.commitMu.Lock()
	defer t.repo.commitMu.Unlock()

	for userID, seen := range t.reads {
		var current int64
		rec, err := pebbleGet(t.repo.db, userID)
		switch {
		case err == nil:
			current = rec.Version
		case !errors.Is(err, ErrUserNotFound):
			return err
		}
		if current != seen {
			return fmt.Errorf("%w: user %s changed from version %d to %d", ErrCommitConflict, userID, seen, current)
		}
	}

	batch := t.repo.db.NewBatch()
	defer batch.Close()

	for userID, rec := range t.writes {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal user record: %w", err)
		}
		if err := batch.Set(userKey(userID), data, nil); err != nil {
			return fmt.Errorf("failed to stage user record: %w", err)
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (t *pebbleTxn) Discard() {
	if t.done {
		return
	}
	t.done = true
	_ = t.snap.Close()
}

type pebbleReader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func pebbleGet(r pebbleReader, userID string) (*UserRecord, error) {
	val, closer, err := r.Get(userKey(userID))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user record: %w", err)
	}
	defer closer.Close()

	var rec UserRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user record: %w", err)
	}
	return &rec, nil
}

// pebbleLogger adapts logrus to pebble's Logger interface
type pebbleLogger struct {
	logger *logrus.Logger
}

func (l *pebbleLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatalf("[Pebble] "+format, args...)
}

func (l *pebbleLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[Pebble] "+format, args...)
}
