package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/patemonitor/pmapi/internal/apierr"
	"github.com/patemonitor/pmapi/internal/config"
)

// Commands is the async command log. The API writes a command row and the
// instrument daemon marks it handled; Request blocks polling for that mark
// until the configured timeout.
type Commands struct {
	store    *Store
	timeout  time.Duration
	interval time.Duration
}

// NewCommands constructs the command entity for one request scope.
func NewCommands(ctx context.Context, db *sqlx.DB, cfg config.CommandConfig) (*Commands, error) {
	store, err := NewStore(ctx, db, "command")
	if err != nil {
		return nil, err
	}
	return &Commands{
		store:    store,
		timeout:  cfg.Timeout,
		interval: cfg.PollInterval,
	}, nil
}

// Store exposes the underlying table store for plain reads.
func (c *Commands) Store() *Store { return c.store }

// Request inserts a command row and polls until the daemon has handled it
// or the timeout expires. The returned row carries the daemon's result.
// A cancelled request context stops the polling immediately.
func (c *Commands) Request(ctx context.Context, sessionID int64, iface, command, value string) (map[string]interface{}, error) {
	if iface == "" || command == "" {
		return nil, apierr.New(apierr.InvalidArgument, "interface and command are required")
	}

	id, err := c.store.Insert(ctx, map[string]interface{}{
		"session_id": sessionID,
		"interface":  iface,
		"command":    command,
		"value":      value,
	})
	if err != nil {
		return nil, err
	}

	deadline := time.NewTimer(c.timeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.interval)
	defer tick.Stop()

	for {
		row, err := c.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if row["handled"] != nil {
			return row, nil
		}

		select {
		case <-ctx.Done():
			return nil, apierr.Wrap(apierr.Timeout,
				fmt.Sprintf("command %d: request cancelled before the instrument responded", id),
				ctx.Err())
		case <-deadline.C:
			return nil, apierr.New(apierr.Timeout,
				fmt.Sprintf("command %d was not handled within %s", id, c.timeout)).
				WithDetails(map[string]interface{}{"id": id})
		case <-tick.C:
		}
	}
}
