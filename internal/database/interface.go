// Package database provides the storage backends behind the scan store.
// Records are plain structs whose `db:` tags name their columns.
package database

import (
	"context"
	"fmt"

	"github.com/CosmoTheDev/codesense/internal/config"
)

// DB is the generic storage interface. SQLite is the default backend and
// MySQL the shared one.
type DB interface {
	// Select scans every row of query into dest, a pointer to a slice of
	// structs.
	Select(ctx context.Context, dest any, query string, args ...any) error
	// Get scans the first row of query into dest and returns sql.ErrNoRows
	// when there is none.
	Get(ctx context.Context, dest any, query string, args ...any) error
	Exec(ctx context.Context, query string, args ...any) error
	// Insert writes record into table and returns the new row id.
	Insert(ctx context.Context, table string, record any) (int64, error)
	// Upsert inserts record or, when a row with the same conflictCols
	// exists, overwrites its other columns.
	Upsert(ctx context.Context, table string, record any, conflictCols []string) error

	// WithTx runs fn in one transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Migrate applies pending embedded migrations in order.
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
	// Driver returns "sqlite" or "mysql".
	Driver() string
}

// Tx is the part of DB usable inside WithTx.
type Tx interface {
	Select(ctx context.Context, dest any, query string, args ...any) error
	Get(ctx context.Context, dest any, query string, args ...any) error
	Exec(ctx context.Context, query string, args ...any) error
	Insert(ctx context.Context, table string, record any) (int64, error)
	Upsert(ctx context.Context, table string, record any, conflictCols []string) error
}

// New returns the DB implementation selected by cfg.Driver.
func New(cfg config.DatabaseConfig) (DB, error) {
	switch cfg.Driver {
	case "mysql":
		return NewMySQL(cfg)
	case "sqlite", "sqlite3", "":
		return NewSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database driver %q (supported: sqlite, mysql)", cfg.Driver)
	}
}
