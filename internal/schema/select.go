package schema

import (
	"fmt"
	"strings"

	"github.com/patemonitor/pmapi/internal/apierr"
)

// Selection controls which columns a query touches.
//
// Include limits the result to the named columns; empty means all columns.
// Exclude removes columns and wins over Include. KeepPrimaryKeys forces
// primary key columns into the result regardless of Include/Exclude
// content; only with KeepPrimaryKeys false can a primary key be excluded.
type Selection struct {
	Include         []string
	Exclude         []string
	KeepPrimaryKeys bool
}

// Columns applies sel to the table and returns the matching descriptors in
// catalog order (never in Include order).
func (t *Table) Columns(sel Selection) []Column {
	exclude := toSet(sel.Exclude)
	if sel.KeepPrimaryKeys {
		// Primary keys cannot be excluded through this path.
		for _, pk := range t.PrimaryKeys() {
			delete(exclude, pk)
		}
	}

	var out []Column
	if len(sel.Include) == 0 {
		// Empty include means all columns except the excluded ones.
		for _, col := range t.columns {
			if !exclude[col.Name] {
				out = append(out, col)
			}
		}
		return out
	}

	include := toSet(sel.Include)
	for _, col := range t.columns {
		switch {
		case col.PrimaryKey && sel.KeepPrimaryKeys:
			out = append(out, col)
		case include[col.Name] && !exclude[col.Name]:
			out = append(out, col)
		}
	}
	return out
}

// ColumnNamesFor is the names-only companion of Columns, for call sites
// that just need identifiers.
func (t *Table) ColumnNamesFor(sel Selection) []string {
	cols := t.Columns(sel)
	names := make([]string, len(cols))
	for i, col := range cols {
		names[i] = col.Name
	}
	return names
}

// SelectExpr returns the SELECT-list expression for col. TIMESTAMP columns
// are cast to integer epoch seconds and DATETIME columns are normalized
// through SQLite's datetime(), both aliased back to the column name, so
// that every read site produces the same representation regardless of how
// the value was stored.
func SelectExpr(col Column) string {
	switch col.Type {
	case "TIMESTAMP":
		return fmt.Sprintf("CAST(strftime('%%s', %s) AS integer) AS %s", col.Name, col.Name)
	case "DATETIME":
		return fmt.Sprintf("datetime(%s) AS %s", col.Name, col.Name)
	default:
		return col.Name
	}
}

// SelectList builds the full SELECT list for sel, joining the per-column
// expressions with ", ".
func (t *Table) SelectList(sel Selection) string {
	cols := t.Columns(sel)
	exprs := make([]string, len(cols))
	for i, col := range cols {
		exprs[i] = SelectExpr(col)
	}
	return strings.Join(exprs, ", ")
}

// WhereExpr returns the comparison-context expression for the named column:
// the same cast or normalization as SelectExpr, without the alias. Unknown
// column names are an InvalidArgument error, never a silent fragment.
func (t *Table) WhereExpr(name string) (string, error) {
	col, ok := t.Column(name)
	if !ok {
		return "", apierr.New(apierr.InvalidArgument,
			fmt.Sprintf("non-existent column %q in table %q", name, t.Name))
	}
	switch col.Type {
	case "TIMESTAMP":
		return fmt.Sprintf("CAST(strftime('%%s', %s) AS integer)", col.Name), nil
	case "DATETIME":
		return fmt.Sprintf("datetime(%s)", col.Name), nil
	default:
		return col.Name, nil
	}
}
