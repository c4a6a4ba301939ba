package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/maxiofs/headerauth/internal/db/migrations"
	"github.com/sirupsen/logrus"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// SQLiteRepository stores user records in SQLite. Each record carries a
// version column; commits insert new records or update only when the stored
// version still matches the one the transaction read.
type SQLiteRepository struct {
	db     *sql.DB
	logger *logrus.Logger
}

// SQLiteOptions contains configuration options for SQLiteRepository
type SQLiteOptions struct {
	Path   string
	Logger *logrus.Logger
}

// NewSQLiteRepository opens the database and applies migrations
func NewSQLiteRepository(opts SQLiteOptions) (*SQLiteRepository, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", opts.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := migrations.NewMigrationManager(db, opts.Logger).Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run database migrations: %w", err)
	}

	opts.Logger.WithField("db_path", opts.Path).Info("SQLite identity repository initialized")
	return &SQLiteRepository{db: db, logger: opts.Logger}, nil
}

// FindUser implements Repository
func (r *SQLiteRepository) FindUser(ctx context.Context, userID string) (*UserRecord, error) {
	return sqliteGet(ctx, r.db, userID)
}

// Begin implements Repository
func (r *SQLiteRepository) Begin(ctx context.Context) (Txn, error) {
	return &sqliteTxn{
		repo:   r,
		reads:  make(map[string]int64),
		writes: make(map[string]*UserRecord),
	}, nil
}

// Close implements Repository
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type sqliteTxn struct {
	repo   *SQLiteRepository
	reads  map[string]int64
	writes map[string]*UserRecord
	done   bool
}

func (t *sqliteTxn) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	if t.done {
		return nil, ErrTxnDone
	}
	if rec, ok := t.writes[userID]; ok {
		return rec.clone(), nil
	}

	rec, err := sqliteGet(ctx, t.repo.db, userID)
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

func (t *sqliteTxn) PutUser(ctx context.Context, record *UserRecord) error {
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

func (t *sqliteTxn) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true

	if len(t.writes) == 0 {
		return nil
	}

	tx, err := t.repo.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for userID, rec := range t.writes {
		attrs, err := json.Marshal(rec.Attributes)
		if err != nil {
			return fmt.Errorf("failed to marshal attributes: %w", err)
		}

		if rec.Version == 1 {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO synced_users (id, user_id, principal_name, external_ref, attributes, version, created_at, updated_at, last_synced_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, rec.ID, rec.UserID, rec.PrincipalName, rec.ExternalRef, string(attrs), rec.Version,
				rec.CreatedAt, rec.UpdatedAt, rec.LastSyncedAt)
			if isConstraintViolation(err) {
				return fmt.Errorf("%w: user %s created concurrently", ErrCommitConflict, userID)
			}
			if err != nil {
				return fmt.Errorf("failed to insert user record: %w", err)
			}
			continue
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE synced_users
			SET principal_name = ?, external_ref = ?, attributes = ?, version = ?, updated_at = ?, last_synced_at = ?
			WHERE user_id = ? AND version = ?
		`, rec.PrincipalName, rec.ExternalRef, string(attrs), rec.Version, rec.UpdatedAt, rec.LastSyncedAt,
			userID, rec.Version-1)
		if err != nil {
			return fmt.Errorf("failed to update user record: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return fmt.Errorf("%w: user %s changed since version %d", ErrCommitConflict, userID, rec.Version-1)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *sqliteTxn) Discard() {
	t.done = true
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteGet(ctx context.Context, q rowQuerier, userID string) (*UserRecord, error) {
	var rec UserRecord
	var attrs sql.NullString

	err := q.QueryRowContext(ctx, `
		SELECT id, user_id, principal_name, external_ref, attributes, version, created_at, updated_at, last_synced_at
		FROM synced_users
		WHERE user_id = ?
	`, userID).Scan(&rec.ID, &rec.UserID, &rec.PrincipalName, &rec.ExternalRef, &attrs, &rec.Version,
		&rec.CreatedAt, &rec.UpdatedAt, &rec.LastSyncedAt)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user record: %w", err)
	}

	if attrs.Valid && attrs.String != "" && attrs.String != "null" {
		if err := json.Unmarshal([]byte(attrs.String), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes: %w", err)
		}
	}
	return &rec, nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}
