// Package repository keeps document metadata in SQLite and document binaries
// in a versioned filesystem tree, and keeps the two consistent.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultIDPrefix is used for sequence ids when a filename carries no code.
const DefaultIDPrefix = "DOC"

// Store is the artifact repository. It owns a single shared connection, so
// every mutating method is one complete transaction and never interleaves
// with another.
type Store struct {
	db       *sql.DB
	layout   Layout
	ids      IDPolicy
	idPrefix string
	now      func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithIDPolicy replaces the filename id derivation.
func WithIDPolicy(p IDPolicy) Option {
	return func(s *Store) {
		if p != nil {
			s.ids = p
		}
	}
}

// WithIDPrefix sets the prefix of generated sequence ids.
func WithIDPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.idPrefix = prefix
		}
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open opens (creating if needed) the database at dbPath and the storage tree
// at root, then applies pending migrations.
func Open(dbPath, root string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	layout, err := NewLayout(root)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection for the whole process; transactions serialize on it
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s := &Store{
		db:       db,
		layout:   layout,
		ids:      FilenamePolicy{},
		idPrefix: DefaultIDPrefix,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance commands.
func (s *Store) DB() *sql.DB { return s.db }

// Layout exposes the filesystem layout.
func (s *Store) Layout() Layout { return s.layout }

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back on error or panic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func toUnix(t time.Time) int64 { return t.UnixMilli() }

func fromUnix(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toUnix(*t), Valid: true}
}
