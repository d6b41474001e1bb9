package database

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"slices"
	"strings"
)

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	queryer
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertRecord(ctx context.Context, ex executor, table string, record any) (int64, error) {
	cols, vals := tagged(record)
	// Identifiers come from struct tags and fixed table names; values are bound.
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), placeholders(len(cols)))
	res, err := ex.ExecContext(ctx, query, vals...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", table, err)
	}
	return res.LastInsertId()
}

func upsertRecord(ctx context.Context, ex executor, d dialect, table string, record any, conflict []string) error {
	cols, vals := tagged(record)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) %s",
		table, strings.Join(cols, ", "), placeholders(len(cols)), d.upsert(cols, conflict))
	if _, err := ex.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

// tagged returns the db-tagged columns of record and their values. A zero
// "id" column is left out so the database assigns it.
func tagged(record any) (cols []string, vals []any) {
	v := reflect.Indirect(reflect.ValueOf(record))
	t := v.Type()
	for i := range t.NumField() {
		tag := t.Field(i).Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		if tag == "id" && v.Field(i).IsZero() {
			continue
		}
		cols = append(cols, tag)
		vals = append(vals, v.Field(i).Interface())
	}
	return cols, vals
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// assignments renders "col = <expr>" for every column outside conflict.
// format receives the column name twice.
func assignments(cols, conflict []string, format string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if slices.Contains(conflict, c) {
			continue
		}
		out = append(out, fmt.Sprintf(format, c, c))
	}
	return strings.Join(out, ", ")
}

func selectInto(ctx context.Context, q queryer, dest any, query string, args ...any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("select: dest must be a pointer to a slice, got %T", dest)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	slice := dv.Elem()
	elemType := slice.Type().Elem()
	isPtr := elemType.Kind() == reflect.Pointer
	if isPtr {
		elemType = elemType.Elem()
	}
	for rows.Next() {
		elem := reflect.New(elemType).Elem()
		if err := rows.Scan(fieldPointers(elem, cols)...); err != nil {
			return err
		}
		if isPtr {
			elem = elem.Addr()
		}
		slice.Set(reflect.Append(slice, elem))
	}
	return rows.Err()
}

// getInto scans the first row of query into dest, matching columns by tag.
// It returns sql.ErrNoRows when the query yields nothing.
func getInto(ctx context.Context, q queryer, dest any, query string, args ...any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("get: dest must be a pointer to a struct, got %T", dest)
	}
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return rows.Scan(fieldPointers(dv.Elem(), cols)...)
}

// fieldPointers maps result columns onto struct fields by db tag. Columns
// without a field are scanned into a throwaway value.
func fieldPointers(elem reflect.Value, cols []string) []any {
	byTag := make(map[string]any)
	t := elem.Type()
	for i := range t.NumField() {
		if tag := t.Field(i).Tag.Get("db"); tag != "" && tag != "-" {
			byTag[tag] = elem.Field(i).Addr().Interface()
		}
	}
	ptrs := make([]any, len(cols))
	for i, c := range cols {
		if p, ok := byTag[c]; ok {
			ptrs[i] = p
			continue
		}
		var discard any
		ptrs[i] = &discard
	}
	return ptrs
}
