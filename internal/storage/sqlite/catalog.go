// ABOUTME: Reads table, column, and index definitions from the SQLite catalog
// ABOUTME: Produces structured Table and Index values instead of raw DDL text
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// IndexInfo is a catalog index that was created with CREATE INDEX.
type IndexInfo struct {
	Index
	// Partial indexes carry a WHERE clause that is not captured structurally.
	Partial bool
	// Expression indexes have at least one key that is not a plain column.
	Expression bool
}

// TableExists reports whether a table with the exact name exists.
func TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	var found string
	err := q.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up table %s: %w", name, err)
	}
	return true, nil
}

// ColumnNames returns the table's column names in declaration order.
func ColumnNames(ctx context.Context, q Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ReadTable reads a table definition from the catalog.
//
// Columns, NOT NULL, defaults, primary keys, AUTOINCREMENT, single-column
// foreign keys and UNIQUE constraints are captured. CHECK constraints are not.
func ReadTable(ctx context.Context, q Querier, name string) (*Table, error) {
	table := &Table{Name: name}

	rows, err := q.QueryContext(ctx, `
		SELECT name, type, "notnull", dflt_value, pk
		FROM pragma_table_info(?)
		ORDER BY cid
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", name, err)
	}

	type pkCol struct {
		name string
		pos  int
	}
	var pks []pkCol
	for rows.Next() {
		var (
			col     Column
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&col.Name, &col.Type, &notNull, &dflt, &pk); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan column of %s: %w", name, err)
		}
		col.NotNull = notNull != 0
		if dflt.Valid {
			col.Default = dflt.String
		}
		if pk > 0 {
			pks = append(pks, pkCol{name: col.Name, pos: pk})
		}
		table.Columns = append(table.Columns, col)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("error reading columns of %s: %w", name, err)
	}
	_ = rows.Close()

	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns or does not exist", name)
	}

	switch {
	case len(pks) == 1:
		idx := table.columnIndex(pks[0].name)
		table.Columns[idx].PrimaryKey = true
		auto, err := hasAutoIncrement(ctx, q, name)
		if err != nil {
			return nil, err
		}
		table.Columns[idx].AutoIncrement = auto
	case len(pks) > 1:
		table.PrimaryKey = make([]string, len(pks))
		for _, p := range pks {
			table.PrimaryKey[p.pos-1] = p.name
		}
	}

	if err := readForeignKeys(ctx, q, table); err != nil {
		return nil, err
	}
	if err := readUniqueConstraints(ctx, q, table); err != nil {
		return nil, err
	}

	return table, nil
}

// ReadIndexes returns the indexes on table that were created with CREATE INDEX.
// Automatic indexes backing PRIMARY KEY and UNIQUE constraints are excluded.
func ReadIndexes(ctx context.Context, q Querier, table string) ([]IndexInfo, error) {
	lists, err := indexList(ctx, q, table)
	if err != nil {
		return nil, err
	}

	var out []IndexInfo
	for _, l := range lists {
		if l.origin != "c" {
			continue
		}
		cols, expr, err := indexColumns(ctx, q, l.name)
		if err != nil {
			return nil, err
		}
		out = append(out, IndexInfo{
			Index: Index{
				Name:    l.name,
				Table:   table,
				Unique:  l.unique,
				Columns: cols,
			},
			Partial:    l.partial,
			Expression: expr,
		})
	}
	return out, nil
}

// JournalMode returns the database's current journal mode (e.g. "delete", "wal").
func JournalMode(ctx context.Context, q Querier) (string, error) {
	var mode string
	if err := q.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return "", fmt.Errorf("failed to read journal mode: %w", err)
	}
	return strings.ToLower(mode), nil
}

func (t *Table) columnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func hasAutoIncrement(ctx context.Context, q Querier, table string) (bool, error) {
	var ddl sql.NullString
	err := q.QueryRowContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&ddl)
	if err != nil {
		return false, fmt.Errorf("failed to read DDL of %s: %w", table, err)
	}
	return strings.Contains(strings.ToUpper(ddl.String), "AUTOINCREMENT"), nil
}

func readForeignKeys(ctx context.Context, q Querier, table *Table) error {
	rows, err := q.QueryContext(ctx, `
		SELECT "from", "table", "to"
		FROM pragma_foreign_key_list(?)
		ORDER BY id, seq
	`, table.Name)
	if err != nil {
		return fmt.Errorf("failed to read foreign keys of %s: %w", table.Name, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			from, parent string
			to           sql.NullString
		)
		if err := rows.Scan(&from, &parent, &to); err != nil {
			return fmt.Errorf("failed to scan foreign key of %s: %w", table.Name, err)
		}
		if idx := table.columnIndex(from); idx >= 0 {
			table.Columns[idx].References = &ForeignKey{Table: parent, Column: to.String}
		}
	}
	return rows.Err()
}

func readUniqueConstraints(ctx context.Context, q Querier, table *Table) error {
	lists, err := indexList(ctx, q, table.Name)
	if err != nil {
		return err
	}
	for _, l := range lists {
		if l.origin != "u" {
			continue
		}
		cols, _, err := indexColumns(ctx, q, l.name)
		if err != nil {
			return err
		}
		if len(cols) == 1 {
			if idx := table.columnIndex(cols[0].Name); idx >= 0 {
				table.Columns[idx].Unique = true
			}
			continue
		}
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}
		table.Uniques = append(table.Uniques, names)
	}
	return nil
}

type indexListEntry struct {
	name    string
	unique  bool
	origin  string
	partial bool
}

func indexList(ctx context.Context, q Querier, table string) ([]indexListEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name, "unique", origin, partial
		FROM pragma_index_list(?)
		ORDER BY name
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var out []indexListEntry
	for rows.Next() {
		var (
			e       indexListEntry
			unique  int
			partial int
		)
		if err := rows.Scan(&e.name, &unique, &e.origin, &partial); err != nil {
			return nil, fmt.Errorf("failed to scan index of %s: %w", table, err)
		}
		e.unique = unique != 0
		e.partial = partial != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func indexColumns(ctx context.Context, q Querier, index string) ([]IndexColumn, bool, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT cid, name, "desc", coll
		FROM pragma_index_xinfo(?)
		WHERE key = 1
		ORDER BY seqno
	`, index)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read index %s: %w", index, err)
	}
	defer func() { _ = rows.Close() }()

	var (
		cols []IndexColumn
		expr bool
	)
	for rows.Next() {
		var (
			cid  int
			name sql.NullString
			desc int
			coll sql.NullString
		)
		if err := rows.Scan(&cid, &name, &desc, &coll); err != nil {
			return nil, false, fmt.Errorf("failed to scan index %s: %w", index, err)
		}
		if cid < 0 || !name.Valid {
			expr = true
			continue
		}
		cols = append(cols, IndexColumn{
			Name:      name.String,
			Desc:      desc != 0,
			Collation: coll.String,
		})
	}
	return cols, expr, rows.Err()
}
