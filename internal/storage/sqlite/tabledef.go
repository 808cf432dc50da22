// ABOUTME: Structured table and index definitions rendered to SQLite DDL
// ABOUTME: Used for the application schema and for table rebuilds during migration
package sqlite

import (
	"strings"
)

// ForeignKey is a single-column REFERENCES clause.
type ForeignKey struct {
	Table  string
	Column string // empty means the parent's primary key
}

// Column describes one column of a table.
type Column struct {
	Name          string
	Type          string // declared type, may be empty
	NotNull       bool
	PrimaryKey    bool // single-column primary key
	AutoIncrement bool
	Unique        bool
	Default       string // raw SQL expression, empty for none
	References    *ForeignKey
}

// Table describes a table's columns and table-level constraints.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []string   // composite primary key, when more than one column
	Uniques    [][]string // multi-column UNIQUE constraints
}

// IndexColumn is one key column of an index.
type IndexColumn struct {
	Name      string
	Desc      bool
	Collation string // empty or BINARY renders nothing
}

// Index describes a CREATE INDEX statement.
type Index struct {
	Name    string
	Table   string
	Unique  bool
	Columns []IndexColumn
}

// QuoteIdent quotes an SQLite identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQL renders the column definition.
func (c Column) SQL() string {
	var b strings.Builder
	b.WriteString(QuoteIdent(c.Name))
	if c.Type != "" {
		b.WriteString(" ")
		b.WriteString(c.Type)
	}
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
		if c.AutoIncrement {
			b.WriteString(" AUTOINCREMENT")
		}
	}
	if c.NotNull {
		b.WriteString(" NOT NULL")
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	if c.Default != "" {
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	if c.References != nil {
		b.WriteString(" REFERENCES ")
		b.WriteString(QuoteIdent(c.References.Table))
		if c.References.Column != "" {
			b.WriteString("(" + QuoteIdent(c.References.Column) + ")")
		}
	}
	return b.String()
}

// CreateSQL renders CREATE TABLE for the definition.
func (t Table) CreateSQL() string {
	return t.create(false)
}

// CreateIfNotExistsSQL renders CREATE TABLE IF NOT EXISTS for the definition.
func (t Table) CreateIfNotExistsSQL() string {
	return t.create(true)
}

func (t Table) create(ifNotExists bool) string {
	defs := make([]string, 0, len(t.Columns)+len(t.Uniques)+1)
	for _, c := range t.Columns {
		defs = append(defs, c.SQL())
	}
	if len(t.PrimaryKey) > 0 {
		defs = append(defs, "PRIMARY KEY ("+quoteList(t.PrimaryKey)+")")
	}
	for _, u := range t.Uniques {
		defs = append(defs, "UNIQUE ("+quoteList(u)+")")
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if ifNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(QuoteIdent(t.Name))
	b.WriteString(" (\n    ")
	b.WriteString(strings.Join(defs, ",\n    "))
	b.WriteString("\n)")
	return b.String()
}

// Column looks up a column by exact name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table declares the named column.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// CreateSQL renders CREATE [UNIQUE] INDEX for the definition.
func (i Index) CreateSQL() string {
	cols := make([]string, len(i.Columns))
	for n, c := range i.Columns {
		s := QuoteIdent(c.Name)
		if c.Collation != "" && !strings.EqualFold(c.Collation, "BINARY") {
			s += " COLLATE " + c.Collation
		}
		if c.Desc {
			s += " DESC"
		}
		cols[n] = s
	}

	var b strings.Builder
	b.WriteString("CREATE ")
	if i.Unique {
		b.WriteString("UNIQUE ")
	}
	b.WriteString("INDEX ")
	b.WriteString(QuoteIdent(i.Name))
	b.WriteString(" ON ")
	b.WriteString(QuoteIdent(i.Table))
	b.WriteString(" (" + strings.Join(cols, ", ") + ")")
	return b.String()
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
