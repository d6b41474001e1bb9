package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CosmoTheDev/codesense/internal/config"
	_ "github.com/mattn/go-sqlite3"
)

var sqliteDialect = dialect{
	name: "sqlite",
	ledger: `CREATE TABLE IF NOT EXISTS schema_migrations (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		filename    TEXT    NOT NULL UNIQUE,
		applied_at  TEXT    NOT NULL
	)`,
	statements: splitStatements,
	upsert: func(cols, conflict []string) string {
		return fmt.Sprintf("ON CONFLICT(%s) DO UPDATE SET %s",
			strings.Join(conflict, ", "), assignments(cols, conflict, "%s = excluded.%s"))
	},
}

// SQLiteDB implements DB using SQLite via mattn/go-sqlite3.
type SQLiteDB struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (or creates) the SQLite database at cfg.Path.
func NewSQLite(cfg config.DatabaseConfig) (*SQLiteDB, error) {
	path := cfg.Path
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, config.DefaultDBFile)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// busy_timeout lets the progress writer and finding inserts share the file.
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	s := &SQLiteDB{db: db, path: path}
	if err := s.Ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite %s: %w", path, err)
	}
	return s, nil
}

func (s *SQLiteDB) Driver() string { return "sqlite" }

// Path is the database file location.
func (s *SQLiteDB) Path() string { return s.path }

func (s *SQLiteDB) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteDB) Close() error { return s.db.Close() }

func (s *SQLiteDB) Migrate(ctx context.Context) error {
	return migrate(ctx, s.db, sqliteDialect)
}

func (s *SQLiteDB) Select(ctx context.Context, dest any, query string, args ...any) error {
	return selectInto(ctx, s.db, dest, query, args...)
}

func (s *SQLiteDB) Get(ctx context.Context, dest any, query string, args ...any) error {
	return getInto(ctx, s.db, dest, query, args...)
}

func (s *SQLiteDB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLiteDB) Insert(ctx context.Context, table string, record any) (int64, error) {
	return insertRecord(ctx, s.db, table, record)
}

// Upsert uses INSERT ... ON CONFLICT DO UPDATE keyed on conflictCols.
func (s *SQLiteDB) Upsert(ctx context.Context, table string, record any, conflictCols []string) error {
	return upsertRecord(ctx, s.db, sqliteDialect, table, record, conflictCols)
}

func (s *SQLiteDB) WithTx(ctx context.Context, fn func(Tx) error) error {
	return withTx(ctx, s.db, sqliteDialect, fn)
}
