// Package sqlstore is the durable corpus repository on database/sql. It
// speaks two dialects: PostgreSQL through pgx and embedded SQLite.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"sandwich/internal/corpus"
)

// Store implements domain.Repository on a SQL database.
type Store struct {
	db   *sql.DB
	d    dialect
	opts corpus.Options
	now  func() time.Time

	schemaOnce sync.Once
	schemaErr  error
}

// OpenSQLite opens (or creates) a SQLite corpus at path.
func OpenSQLite(ctx context.Context, path string, opts corpus.Options) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer: transactions serialize on the single connection
	db.SetMaxOpenConns(1)
	return open(ctx, db, sqliteDialect, opts)
}

// OpenPostgres connects to a PostgreSQL corpus.
func OpenPostgres(ctx context.Context, dsn string, opts corpus.Options) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return open(ctx, db, postgresDialect, opts)
}

func open(ctx context.Context, db *sql.DB, d dialect, opts corpus.Options) (*Store, error) {
	s := &Store{db: db, d: d, opts: opts.WithDefaults(), now: time.Now}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	s.schemaOnce.Do(func() {
		for _, stmt := range s.d.schema() {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				s.schemaErr = fmt.Errorf("migrate %s schema: %w", s.d.name, err)
				return
			}
		}
	})
	return s.schemaErr
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect names the backing database.
func (s *Store) Dialect() string { return s.d.name }

func (s *Store) q(query string) string { return s.d.rebind(query) }

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
