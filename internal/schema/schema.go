// Package schema introspects the column metadata of PMAPI tables and builds
// type-aware SQL fragments from it. The live SQLite catalog is the source of
// truth: a Table is loaded per request-scoped entity object, so schema drift
// is picked up automatically.
package schema

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/patemonitor/pmapi/internal/apierr"
)

// Column describes one table column. Immutable once loaded.
type Column struct {
	Name       string
	Type       string // declared type: INTEGER, TEXT, TIMESTAMP, DATETIME, REAL, BLOB
	Nullable   bool
	Default    *string
	PrimaryKey bool
}

// Table is the ordered column metadata of one database table, in catalog
// order. Built once per request scope and never mutated.
type Table struct {
	Name    string
	columns []Column
}

// tableInfoRow holds a row from PRAGMA table_info().
type tableInfoRow struct {
	CID     int     `db:"cid"`
	Name    string  `db:"name"`
	Type    string  `db:"type"`
	NotNull int     `db:"notnull"`
	Default *string `db:"dflt_value"`
	PK      int     `db:"pk"`
}

// Load reads the column metadata of table from the database catalog.
// Columns named in exclude are skipped entirely: they do not exist for any
// downstream consumer. A table with no catalog rows does not exist; that is
// reported as an error rather than an empty Table.
func Load(ctx context.Context, db *sqlx.DB, table string, exclude ...string) (*Table, error) {
	var rows []tableInfoRow
	if err := db.SelectContext(ctx, &rows, "SELECT * FROM pragma_table_info(?)", table); err != nil {
		return nil, fmt.Errorf("table_info for %q: %w", table, err)
	}
	if len(rows) == 0 {
		return nil, apierr.New(apierr.NotFound, fmt.Sprintf("table %q not found", table))
	}

	excluded := toSet(exclude)
	t := &Table{Name: table, columns: make([]Column, 0, len(rows))}
	for _, row := range rows {
		if excluded[row.Name] {
			continue
		}
		t.columns = append(t.columns, Column{
			Name:       row.Name,
			Type:       row.Type,
			Nullable:   row.NotNull == 0,
			Default:    row.Default,
			PrimaryKey: row.PK > 0,
		})
	}
	return t, nil
}

// ColumnNames returns all column names in catalog order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.columns))
	for i, col := range t.columns {
		names[i] = col.Name
	}
	return names
}

// PrimaryKeys returns the primary key column names in catalog order.
func (t *Table) PrimaryKeys() []string {
	var keys []string
	for _, col := range t.columns {
		if col.PrimaryKey {
			keys = append(keys, col.Name)
		}
	}
	return keys
}

// Column returns the descriptor for name, or false if no such column.
func (t *Table) Column(name string) (Column, bool) {
	for _, col := range t.columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// MissingColumns returns the subset of names that do not exist in the
// table, in the order given. An empty result means all names are valid.
func (t *Table) MissingColumns(names []string) []string {
	var missing []string
	for _, name := range names {
		if _, ok := t.Column(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
