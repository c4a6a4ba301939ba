package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerRepository stores user records in BadgerDB, relying on its
// serializable snapshot isolation for conflict detection
type BadgerRepository struct {
	db     *badger.DB
	logger *logrus.Logger
}

// BadgerOptions contains configuration options for BadgerRepository
type BadgerOptions struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
	Logger     *logrus.Logger
}

// NewBadgerRepository opens a BadgerDB-backed repository
func NewBadgerRepository(opts BadgerOptions) (*BadgerRepository, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	badgerOpts := badger.DefaultOptions(opts.Dir).
		WithLogger(&badgerLogger{logger: opts.Logger}).
		WithSyncWrites(opts.SyncWrites).
		WithNumVersionsToKeep(1)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	opts.Logger.WithFields(logrus.Fields{
		"path":      opts.Dir,
		"in_memory": opts.InMemory,
	}).Info("BadgerDB identity repository initialized")

	return &BadgerRepository{db: db, logger: opts.Logger}, nil
}

// FindUser implements Repository
func (r *BadgerRepository) FindUser(ctx context.Context, userID string) (*UserRecord, error) {
	var rec *UserRecord
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = badgerGet(txn, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Begin implements Repository
func (r *BadgerRepository) Begin(ctx context.Context) (Txn, error) {
	return &badgerTxn{txn: r.db.NewTransaction(true)}, nil
}

// Close implements Repository
func (r *BadgerRepository) Close() error {
	return r.db.Close()
}

type badgerTxn struct {
	txn  *badger.Txn
	done bool
}

func (t *badgerTxn) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	if t.done {
		return nil, ErrTxnDone
	}
	return badgerGet(t.txn, userID)
}

func (t *badgerTxn) PutUser(ctx context.Context, record *UserRecord) error {
	if t.done {
		return ErrTxnDone
	}
	if err := record.validate(); err != nil {
		return err
	}

	// Reading the current value adds the key to the transaction's read set,
	// so a concurrent writer of the same user makes Commit fail.
	var version int64
	existing, err := badgerGet(t.txn, record.UserID)
	switch {
	case err == nil:
		version = existing.Version
	case !errors.Is(err, ErrUserNotFound):
		return err
	}
	record.Version = version + 1

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal user record: %w", err)
	}
	return t.txn.Set(userKey(record.UserID), data)
}

func (t *badgerTxn) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true

	err := t.txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrCommitConflict, err)
	}
	return err
}

func (t *badgerTxn) Discard() {
	t.done = true
	t.txn.Discard()
}

func badgerGet(txn *badger.Txn, userID string) (*UserRecord, error) {
	item, err := txn.Get(userKey(userID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user record: %w", err)
	}

	var rec UserRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user record: %w", err)
	}
	return &rec, nil
}

// badgerLogger adapts logrus to badger's Logger interface
type badgerLogger struct {
	logger *logrus.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef("[BadgerDB] "+format, args...)
}
