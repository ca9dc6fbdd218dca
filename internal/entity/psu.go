package entity

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/patemonitor/pmapi/internal/apierr"
)

// psuRowID is the fixed primary key of the singleton psu row; the table's
// single_row_chk constraint pins it.
const psuRowID = 0

// PSU accesses the power supply state, which lives in a single-row table.
// The modified column is maintained by a database trigger on update.
type PSU struct {
	store *Store
}

// NewPSU constructs the psu entity for one request scope.
func NewPSU(ctx context.Context, db *sqlx.DB) (*PSU, error) {
	store, err := NewStore(ctx, db, "psu")
	if err != nil {
		return nil, err
	}
	return &PSU{store: store}, nil
}

// Get returns the singleton row, or NotFound if the PSU daemon has not
// written it yet.
func (p *PSU) Get(ctx context.Context) (map[string]interface{}, error) {
	row, err := p.store.Get(ctx, psuRowID)
	if err != nil {
		if apiErr, ok := apierr.As(err); ok && apiErr.Kind == apierr.NotFound {
			return nil, apierr.New(apierr.NotFound, "psu state has not been reported yet")
		}
		return nil, err
	}
	return row, nil
}

// Update patches the singleton row. id and modified are managed by the
// schema and rejected as caller-supplied values.
func (p *PSU) Update(ctx context.Context, values map[string]interface{}) error {
	for _, reserved := range []string{"id", "modified"} {
		if _, ok := values[reserved]; ok {
			return apierr.New(apierr.InvalidArgument,
				"column "+reserved+" is managed by the database and cannot be set")
		}
	}
	return p.store.Update(ctx, psuRowID, values)
}
