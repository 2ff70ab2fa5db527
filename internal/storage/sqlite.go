package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour a Store speaks
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

func (d Dialect) String() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// DetectDialect picks Postgres for postgres:// URLs and SQLite for anything else
func DetectDialect(dsn string) Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// conn carries the query methods shared by Store and Tx
type conn struct {
	q       querier
	dialect Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return c.q.ExecContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, rebind(c.dialect, query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return c.q.QueryRowContext(ctx, rebind(c.dialect, query), args...)
}

// execAffected runs an update and reports the number of affected rows
func (c conn) execAffected(ctx context.Context, query string, args ...interface{}) (int64, error) {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// rebind turns ? placeholders into $1, $2, ... for Postgres
func rebind(d Dialect, query string) string {
	if d != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store is the process-wide handle to the database
type Store struct {
	conn
	db *sql.DB
}

// Tx is a Store scoped to one database transaction
type Tx struct {
	conn
	tx *sql.Tx
}

// Open connects to dsn, applies pragmas and runs migrations
func Open(dsn string) (*Store, error) {
	dialect := DetectDialect(dsn)

	var (
		db  *sql.DB
		err error
	)
	switch dialect {
	case DialectPostgres:
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
	default:
		path := dsn
		if path != ":memory:" {
			if path, err = filepath.Abs(dsn); err != nil {
				return nil, err
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err = sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		// One connection serialises writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, err
		}
		if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
			db.Close()
			return nil, err
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{conn: conn{q: db, dialect: dialect}, db: db}
	if err := s.runMigrations(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dialect reports which SQL flavour the store uses
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// WithTx runs fn inside a transaction. fn must only use the Tx it is given;
// the SQLite pool has a single connection.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{conn: conn{q: sqlTx, dialect: s.dialect}, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// runMigrations creates the necessary tables
func (s *Store) runMigrations(ctx context.Context) error {
	types := strings.NewReplacer(
		"{{pk}}", pkType(s.dialect),
		"{{ts}}", timestampType(s.dialect),
	)
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, types.Replace(stmt)); err != nil {
			return fmt.Errorf("%w (statement: %s)", err, firstLine(stmt))
		}
	}
	return nil
}

func pkType(d Dialect) string {
	if d == DialectPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

func timestampType(d Dialect) string {
	if d == DialectPostgres {
		return "TIMESTAMPTZ"
	}
	return "DATETIME"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id BIGINT PRIMARY KEY,
		username TEXT NOT NULL DEFAULT '',
		first_name TEXT NOT NULL DEFAULT '',
		coins BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
		bank_name TEXT NOT NULL DEFAULT '',
		account_number TEXT NOT NULL DEFAULT '',
		account_name TEXT NOT NULL DEFAULT '',
		referred_by BIGINT,
		referral_credited BOOLEAN NOT NULL DEFAULT FALSE,
		is_banned BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL,
		updated_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_referred_by ON users(referred_by)`,

	`CREATE TABLE IF NOT EXISTS ad_sessions (
		id TEXT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(telegram_id),
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		created_at {{ts}} NOT NULL,
		completed_at {{ts}}
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_ad_sessions_open_user ON ad_sessions(user_id) WHERE NOT completed`,

	`CREATE TABLE IF NOT EXISTS ad_views (
		id {{pk}},
		session_id TEXT NOT NULL REFERENCES ad_sessions(id),
		user_id BIGINT NOT NULL,
		ad_index INTEGER,
		external_event_id TEXT UNIQUE,
		validated BOOLEAN NOT NULL DEFAULT TRUE,
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ad_views_session ON ad_views(session_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS withdrawals (
		id {{pk}},
		user_id BIGINT NOT NULL REFERENCES users(telegram_id),
		coins BIGINT NOT NULL CHECK (coins > 0),
		amount TEXT NOT NULL,
		bank_name TEXT NOT NULL,
		account_number TEXT NOT NULL,
		account_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		admin_id BIGINT,
		note TEXT NOT NULL DEFAULT '',
		requested_at {{ts}} NOT NULL,
		processed_at {{ts}}
	)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawals_status ON withdrawals(status, requested_at)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals(user_id)`,

	`CREATE TABLE IF NOT EXISTS transactions (
		id {{pk}},
		user_id BIGINT NOT NULL,
		amount BIGINT NOT NULL,
		source_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_id ON transactions(user_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS help_requests (
		id {{pk}},
		user_id BIGINT NOT NULL,
		message TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		created_at {{ts}} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS admin_logs (
		id {{pk}},
		admin_id BIGINT NOT NULL,
		action TEXT NOT NULL,
		details TEXT NOT NULL DEFAULT '',
		created_at {{ts}} NOT NULL
	)`,
}
