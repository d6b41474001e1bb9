package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/CosmoTheDev/codesense/internal/config"
	_ "github.com/go-sql-driver/mysql"
)

var mysqlDialect = dialect{
	name: "mysql",
	ledger: `CREATE TABLE IF NOT EXISTS schema_migrations (
		id         INT          NOT NULL AUTO_INCREMENT PRIMARY KEY,
		filename   VARCHAR(255) NOT NULL UNIQUE,
		applied_at VARCHAR(64)  NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	statements: func(script string) []string {
		return splitStatements(mysqlAdapt(script))
	},
	// MySQL picks the conflicting unique index itself, so conflict only
	// decides which columns stay put.
	upsert: func(cols, conflict []string) string {
		return "ON DUPLICATE KEY UPDATE " + assignments(cols, conflict, "%s = VALUES(%s)")
	},
}

// MySQLDB implements DB using MySQL via go-sql-driver/mysql.
type MySQLDB struct {
	db *sql.DB
}

// NewMySQL opens a MySQL connection using cfg.DSN. parseTime is forced on
// so DATETIME columns scan into time.Time.
func NewMySQL(cfg config.DatabaseConfig) (*MySQLDB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("mysql DSN is required when driver is mysql")
	}
	dsn := cfg.DSN
	if !strings.Contains(dsn, "parseTime") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "parseTime=true"
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening mysql connection: %w", err)
	}
	// Sized for the file worker pool plus the progress writer.
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	m := &MySQLDB{db: db}
	if err := m.Ping(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}
	return m, nil
}

func (m *MySQLDB) Driver() string { return "mysql" }

func (m *MySQLDB) Ping(ctx context.Context) error { return m.db.PingContext(ctx) }

func (m *MySQLDB) Close() error { return m.db.Close() }

func (m *MySQLDB) Migrate(ctx context.Context) error {
	return migrate(ctx, m.db, mysqlDialect)
}

func (m *MySQLDB) Select(ctx context.Context, dest any, query string, args ...any) error {
	return selectInto(ctx, m.db, dest, query, args...)
}

func (m *MySQLDB) Get(ctx context.Context, dest any, query string, args ...any) error {
	return getInto(ctx, m.db, dest, query, args...)
}

func (m *MySQLDB) Exec(ctx context.Context, query string, args ...any) error {
	_, err := m.db.ExecContext(ctx, query, args...)
	return err
}

func (m *MySQLDB) Insert(ctx context.Context, table string, record any) (int64, error) {
	return insertRecord(ctx, m.db, table, record)
}

// Upsert uses INSERT ... ON DUPLICATE KEY UPDATE.
func (m *MySQLDB) Upsert(ctx context.Context, table string, record any, conflictCols []string) error {
	return upsertRecord(ctx, m.db, mysqlDialect, table, record, conflictCols)
}

func (m *MySQLDB) WithTx(ctx context.Context, fn func(Tx) error) error {
	return withTx(ctx, m.db, mysqlDialect, fn)
}

// mysqlAdapt rewrites the SQLite flavoured migrations for MySQL.
func mysqlAdapt(script string) string {
	r := strings.NewReplacer(
		"INTEGER PRIMARY KEY AUTOINCREMENT", "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
		" REAL ", " DOUBLE ",
		"BLOB", "LONGBLOB",
	)
	return r.Replace(script)
}
