package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type sqlTx struct {
	tx *sql.Tx
	d  dialect
}

func (t *sqlTx) Select(ctx context.Context, dest any, query string, args ...any) error {
	return selectInto(ctx, t.tx, dest, query, args...)
}

func (t *sqlTx) Get(ctx context.Context, dest any, query string, args ...any) error {
	return getInto(ctx, t.tx, dest, query, args...)
}

func (t *sqlTx) Exec(ctx context.Context, query string, args ...any) error {
	_, err := t.tx.ExecContext(ctx, query, args...)
	return err
}

func (t *sqlTx) Insert(ctx context.Context, table string, record any) (int64, error) {
	return insertRecord(ctx, t.tx, table, record)
}

func (t *sqlTx) Upsert(ctx context.Context, table string, record any, conflictCols []string) error {
	return upsertRecord(ctx, t.tx, t.d, table, record, conflictCols)
}

// withTx commits when fn returns nil. A panic in fn rolls back and is
// re-raised.
func withTx(ctx context.Context, db *sql.DB, d dialect, fn func(Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning %s transaction: %w", d.name, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqlTx{tx: tx, d: d}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rolling back: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing %s transaction: %w", d.name, err)
	}
	return nil
}
