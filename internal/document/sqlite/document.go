// Package sqlite provides a persistent host document stored in SQLite.
//
// Nodes, typed attributes, connections, namespaces and references are kept
// in plain tables. Scene files that get referenced or imported are YAML
// files (see SceneFile). The document assumes a single writer, so the
// database is opened with one connection.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/scrypster/reftrack/internal/document"
)

var _ document.Document = (*Document)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// session holds editing state that is not persisted with the document.
type session struct {
	mu        sync.Mutex
	namespace string
}

// Document implements document.Document using SQLite.
type Document struct {
	db      *sql.DB
	q       querier
	inTx    bool
	session *session
	log     zerolog.Logger
}

// Option configures a Document.
type Option func(*Document)

// WithLogger sets the logger used for host mutations.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Document) {
		d.log = logger.With().Str("component", "document").Logger()
	}
}

// NewDocument opens (or creates) the document stored at dsn.
// Use ":memory:" for a throwaway document.
func NewDocument(dsn string, opts ...Option) (*Document, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to open document: %w", err)
	}

	// One connection serialises every edit and keeps ":memory:" documents
	// alive for the lifetime of the store.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: failed to create schema: %w", err)
	}

	d := &Document{
		db:      db,
		q:       db,
		session: &session{namespace: document.RootNamespace},
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}

	return d, nil
}

// Atomic runs fn in a transaction. Nested calls join the outer transaction.
func (d *Document) Atomic(ctx context.Context, fn func(g document.Graph) error) error {
	return d.atomic(ctx, func(tx *Document) error { return fn(tx) })
}

func (d *Document) atomic(ctx context.Context, fn func(tx *Document) error) error {
	if d.inTx {
		return fn(d)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	child := &Document{
		db:      d.db,
		q:       tx,
		inTx:    true,
		session: d.session,
		log:     d.log,
	}
	if err := fn(child); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: failed to commit: %w", err)
	}
	return nil
}

// GetDB returns the underlying database handle.
func (d *Document) GetDB() *sql.DB {
	return d.db
}

// Close releases the database handle.
func (d *Document) Close() error {
	if d.db == nil || d.inTx {
		return nil
	}

	if _, err := d.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		d.log.Warn().Err(err).Msg("WAL checkpoint on close failed")
	}

	return d.db.Close()
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
