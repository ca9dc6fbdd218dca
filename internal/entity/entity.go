// Package entity implements the per-resource data access objects of PMAPI.
// A Store is constructed per request scope: it loads the table's live
// column metadata once and translates the HTTP verbs into SQL built from
// the schema package's type-aware fragments.
package entity

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/patemonitor/pmapi/internal/apierr"
	"github.com/patemonitor/pmapi/internal/schema"
)

// Store provides generic row access for one table.
type Store struct {
	db    *sqlx.DB
	table *schema.Table
}

// NewStore loads the column metadata of tableName and returns a Store for
// it. Columns named in exclude are invisible to all Store operations.
func NewStore(ctx context.Context, db *sqlx.DB, tableName string, exclude ...string) (*Store, error) {
	table, err := schema.Load(ctx, db, tableName, exclude...)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, table: table}, nil
}

// Table exposes the loaded schema, mainly for handlers that validate field
// selections before querying.
func (s *Store) Table() *schema.Table { return s.table }

// Condition is one WHERE-clause comparison. The column expression is built
// through the schema fragment builder, so TIMESTAMP/DATETIME columns
// compare in their normalized representation.
type Condition struct {
	Column string
	Op     string // one of =, !=, <, <=, >, >=
	Value  interface{}
}

var validOps = map[string]bool{
	"=": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

// SearchOpts narrows a Search. Fields is an include list (primary keys are
// always kept); Conditions are ANDed.
type SearchOpts struct {
	Fields     []string
	Conditions []Condition
	OrderBy    string // column name, validated; empty means no ordering
	Limit      int    // 0 means no limit
}

// buildWhere renders conditions into a WHERE clause and its arguments.
func (s *Store) buildWhere(conditions []Condition) (string, []interface{}, error) {
	if len(conditions) == 0 {
		return "", nil, nil
	}
	parts := make([]string, 0, len(conditions))
	args := make([]interface{}, 0, len(conditions))
	for _, cond := range conditions {
		if !validOps[cond.Op] {
			return "", nil, apierr.New(apierr.InvalidArgument,
				fmt.Sprintf("unsupported comparison operator %q", cond.Op))
		}
		expr, err := s.table.WhereExpr(cond.Column)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, expr+" "+cond.Op+" ?")
		args = append(args, cond.Value)
	}
	return " WHERE " + strings.Join(parts, " AND "), args, nil
}

// selection validates an include list and returns the Selection for it.
func (s *Store) selection(fields []string) (schema.Selection, error) {
	if missing := s.table.MissingColumns(fields); missing != nil {
		return schema.Selection{}, apierr.New(apierr.InvalidArgument,
			"non-existent column in field selection").
			WithDetails(map[string]interface{}{"missing": missing})
	}
	return schema.Selection{Include: fields, KeepPrimaryKeys: true}, nil
}

// primaryKey returns the table's single primary key column, or an error for
// tables without one.
func (s *Store) primaryKey() (string, error) {
	keys := s.table.PrimaryKeys()
	if len(keys) == 0 {
		return "", apierr.New(apierr.Internal,
			fmt.Sprintf("table %q has no primary key", s.table.Name))
	}
	return keys[0], nil
}

// Get fetches one row by primary key value. Missing rows are a NotFound
// error with no details.
func (s *Store) Get(ctx context.Context, pk interface{}, fields ...string) (map[string]interface{}, error) {
	key, err := s.primaryKey()
	if err != nil {
		return nil, err
	}
	sel, err := s.selection(fields)
	if err != nil {
		return nil, err
	}
	keyExpr, err := s.table.WhereExpr(key)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?",
		s.table.SelectList(sel), s.table.Name, keyExpr)

	rows, err := s.db.QueryxContext(ctx, query, pk)
	if err != nil {
		return nil, apierr.FromDB(err, "get "+s.table.Name)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, apierr.FromDB(err, "get "+s.table.Name)
		}
		return nil, apierr.New(apierr.NotFound,
			fmt.Sprintf("%s %v not found", s.table.Name, pk))
	}
	row := map[string]interface{}{}
	if err := rows.MapScan(row); err != nil {
		return nil, apierr.FromDB(err, "scan "+s.table.Name)
	}
	return row, nil
}

// Search fetches all rows matching opts, in storage order unless OrderBy
// names a column.
func (s *Store) Search(ctx context.Context, opts SearchOpts) ([]map[string]interface{}, error) {
	rows, err := s.Query(ctx, opts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []map[string]interface{}{}
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, apierr.FromDB(err, "scan "+s.table.Name)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, apierr.FromDB(err, "search "+s.table.Name)
	}
	return results, nil
}

// Query runs the search and returns the raw cursor. The caller owns the
// cursor; the CSV streamer consumes it incrementally.
func (s *Store) Query(ctx context.Context, opts SearchOpts) (*sqlx.Rows, error) {
	sel, err := s.selection(opts.Fields)
	if err != nil {
		return nil, err
	}
	where, args, err := s.buildWhere(opts.Conditions)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", s.table.SelectList(sel), s.table.Name, where)
	if opts.OrderBy != "" {
		expr, err := s.table.WhereExpr(opts.OrderBy)
		if err != nil {
			return nil, err
		}
		b.WriteString(" ORDER BY " + expr)
	}
	if opts.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryxContext(ctx, b.String(), args...)
	if err != nil {
		return nil, apierr.FromDB(err, "query "+s.table.Name)
	}
	return rows, nil
}

// Insert creates one row from the given column values and returns the
// last-insert rowid. Unknown columns are an InvalidArgument error listing
// the offenders; constraint violations classify as Conflict.
func (s *Store) Insert(ctx context.Context, values map[string]interface{}) (int64, error) {
	if len(values) == 0 {
		return 0, apierr.New(apierr.InvalidArgument, "no values to insert")
	}
	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	if missing := s.table.MissingColumns(columns); missing != nil {
		return 0, apierr.New(apierr.InvalidArgument, "non-existent column in values").
			WithDetails(map[string]interface{}{"missing": missing})
	}

	placeholders := make([]string, len(columns))
	args := make([]interface{}, len(columns))
	for i, col := range columns {
		placeholders[i] = "?"
		args[i] = values[col]
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		s.table.Name, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, apierr.FromDB(err, "insert "+s.table.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, apierr.FromDB(err, "insert "+s.table.Name)
	}
	return id, nil
}

// Update patches the row identified by primary key value. A zero row count
// is a NotFound error.
func (s *Store) Update(ctx context.Context, pk interface{}, values map[string]interface{}) error {
	key, err := s.primaryKey()
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return apierr.New(apierr.InvalidArgument, "no values to update")
	}

	columns := make([]string, 0, len(values))
	for col := range values {
		columns = append(columns, col)
	}
	sort.Strings(columns)
	if missing := s.table.MissingColumns(columns); missing != nil {
		return apierr.New(apierr.InvalidArgument, "non-existent column in values").
			WithDetails(map[string]interface{}{"missing": missing})
	}

	sets := make([]string, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, col := range columns {
		sets[i] = col + " = ?"
		args = append(args, values[col])
	}
	args = append(args, pk)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		s.table.Name, strings.Join(sets, ", "), key)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apierr.FromDB(err, "update "+s.table.Name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apierr.FromDB(err, "update "+s.table.Name)
	}
	if n == 0 {
		return apierr.New(apierr.NotFound,
			fmt.Sprintf("%s %v not found", s.table.Name, pk))
	}
	return nil
}
