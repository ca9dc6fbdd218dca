package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Tables lists every PMAPI table in reverse dependency order, so that
// dropping them front to back never violates a foreign key.
var Tables = []string{
	"note",
	"command",
	"register",
	"pulseheight",
	"hitcount",
	"housekeeping",
	"testing_session",
	"pate",
	"psu",
}

// Creator performs the offline drop-and-recreate of the PMAPI schema.
// There is no incremental migration: the bench database is always rebuilt
// from scratch between test campaigns.
type Creator struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewCreator returns a Creator bound to the given database.
func NewCreator(db *sqlx.DB, logger *slog.Logger) *Creator {
	return &Creator{db: db, logger: logger}
}

// Reset drops all PMAPI tables, vacuums the datafile, and recreates the
// full schema. Any failure other than "no such table" during the drop
// phase aborts before anything is created.
func (c *Creator) Reset(ctx context.Context) error {
	if err := c.DropAll(ctx); err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return c.CreateAll(ctx)
}

// DropAll drops every PMAPI table in reverse dependency order. A missing
// table is a non-fatal outcome; any other drop failure is.
func (c *Creator) DropAll(ctx context.Context) error {
	for _, table := range Tables {
		if _, err := c.db.ExecContext(ctx, "DROP TABLE "+table); err != nil {
			if strings.Contains(err.Error(), "no such table") {
				c.logger.Debug("drop skipped, table absent", "table", table)
				continue
			}
			return fmt.Errorf("drop table %s: %w", table, err)
		}
		c.logger.Info("dropped table", "table", table)
	}
	return nil
}

// CreateAll creates every PMAPI table and trigger from fixed DDL. The run
// is all-or-nothing at the process level: the first failure aborts.
func (c *Creator) CreateAll(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		// PATE instruments are identified by a unique resistor read on a
		// specified ADC channel; [id_min, id_max] is the accepted range.
		{"pate", `CREATE TABLE pate
		(
			id          INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			id_min      INTEGER NOT NULL,
			id_max      INTEGER NOT NULL,
			label       TEXT NOT NULL
		)`},

		// PATE firmware may change between sessions; it is queried from the
		// instrument and recorded per session.
		{"testing_session", `CREATE TABLE testing_session
		(
			id              INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT,
			started         DATETIME,
			pate_id         INTEGER NOT NULL,
			pate_firmware   TEXT NOT NULL,
			FOREIGN KEY (pate_id) REFERENCES pate (id)
		)`},

		{"hitcount", hitcountDDL()},

		// Calibration data: raw pulse-height ADC values per detector disk.
		{"pulseheight", `CREATE TABLE pulseheight
		(
			timestamp       INTEGER NOT NULL DEFAULT CURRENT_TIME PRIMARY KEY,
			session_id      INTEGER NOT NULL,
			ac1             INTEGER NOT NULL,
			d1a             INTEGER NOT NULL,
			d1b             INTEGER NOT NULL,
			d1c             INTEGER NOT NULL,
			d2a             INTEGER NOT NULL,
			d2b             INTEGER NOT NULL,
			d3              INTEGER NOT NULL,
			ac2             INTEGER NOT NULL,
			FOREIGN KEY (session_id) REFERENCES testing_session (id)
		)`},

		// Register snapshot taken when a testing session begins, so the UI
		// can show values without issuing high-latency instrument commands.
		{"register", `CREATE TABLE register
		(
			pate_id         INTEGER NOT NULL,
			retrieved       DATETIME NOT NULL,
			reg01           INTEGER NOT NULL,
			reg02           INTEGER NOT NULL,
			FOREIGN KEY (pate_id) REFERENCES pate (id)
		)`},

		// Operator notes recorded during a testing session.
		{"note", `CREATE TABLE note
		(
			id              INTEGER     NOT NULL PRIMARY KEY AUTOINCREMENT,
			session_id      INTEGER     NOT NULL,
			text            TEXT            NULL,
			created         INTEGER     NOT NULL DEFAULT (strftime('%s', 'now')),
			FOREIGN KEY (session_id) REFERENCES testing_session (id)
		)`},

		// Async command log. The API inserts a row; the instrument daemon
		// fills in handled/result, which the API polls for.
		{"command", `CREATE TABLE command
		(
			id              INTEGER         NOT NULL PRIMARY KEY AUTOINCREMENT,
			session_id      INTEGER         NOT NULL,
			interface       TEXT            NOT NULL,
			command         TEXT            NOT NULL,
			value           TEXT            NOT NULL,
			created         TIMESTAMP       NOT NULL DEFAULT CURRENT_TIMESTAMP,
			handled         DATETIME            NULL,
			result          TEXT                NULL,
			FOREIGN KEY (session_id) REFERENCES testing_session (id)
		)`},

		// PSU state; the table holds zero or one rows, id pinned to 0.
		{"psu", `CREATE TABLE psu
		(
			id                  INTEGER         NOT NULL DEFAULT 0 PRIMARY KEY,
			power               TEXT            NOT NULL,
			voltage_setting     REAL            NOT NULL,
			current_limit       REAL            NOT NULL,
			measured_current    REAL            NOT NULL,
			measured_voltage    REAL            NOT NULL,
			state               TEXT            NOT NULL,
			modified            INTEGER         NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CONSTRAINT          single_row_chk  CHECK (id = 0),
			CONSTRAINT          power_chk       CHECK (power IN ('ON', 'OFF')),
			CONSTRAINT          state_chk       CHECK (state IN ('OK', 'OVER CURRENT'))
		)`},

		{"trigger psu_ari", `CREATE TRIGGER psu_ari
		AFTER UPDATE ON psu
		FOR EACH ROW
		BEGIN
			UPDATE psu
			SET    modified = CURRENT_TIMESTAMP
			WHERE  id = old.id;
		END`},

		{"housekeeping", housekeepingDDL()},
	}

	for _, stmt := range statements {
		if _, err := c.db.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("create %s: %w", stmt.name, err)
		}
		c.logger.Info("created", "object", stmt.name)
	}
	return nil
}

// HitcountSensorColumns returns the generated sensor and telescope counter
// column names of the hitcount table, in DDL order. The enumeration is
// deterministic: every run reproduces exactly the same names.
//
// Science data is collected per satellite rotation. Each rotation has 37
// sectors (sector zero is the sun-pointing telescope) and each sector
// carries 12 proton and 8 electron hit-count channels. Both telescopes
// (st = sun-pointing, rt = rotating) additionally carry 2 AC, 4 D1, 1 D2
// and 2 trash counters.
func HitcountSensorColumns() []string {
	cols := make([]string, 0, 37*20+2*9)
	for sector := 0; sector < 37; sector++ {
		for proton := 1; proton <= 12; proton++ {
			cols = append(cols, fmt.Sprintf("s%02dp%02d", sector, proton))
		}
		for electron := 1; electron <= 8; electron++ {
			cols = append(cols, fmt.Sprintf("s%02de%02d", sector, electron))
		}
	}
	for _, telescope := range []string{"st", "rt"} {
		for ac := 1; ac <= 2; ac++ {
			cols = append(cols, fmt.Sprintf("%sac%d", telescope, ac))
		}
		for d1 := 1; d1 <= 4; d1++ {
			cols = append(cols, fmt.Sprintf("%sd1p%d", telescope, d1))
		}
		cols = append(cols, telescope+"d2p1")
		for trash := 1; trash <= 2; trash++ {
			cols = append(cols, fmt.Sprintf("%strash%d", telescope, trash))
		}
	}
	return cols
}

// HousekeepingSensorColumns returns the generated housekeeping column names
// in DDL order: one sun-pointing (s_) and one rotating (r_) channel per
// index 0..36.
func HousekeepingSensorColumns() []string {
	cols := make([]string, 0, 2*37)
	for i := 0; i < 37; i++ {
		cols = append(cols, fmt.Sprintf("s_c%02d", i))
		cols = append(cols, fmt.Sprintf("r_c%02d", i))
	}
	return cols
}

// hitcountDDL builds the CREATE TABLE statement for the wide hitcount
// table. The flat layout is a deliberate design decision even though it
// produces over 700 columns; the SQLite default column limit is 2000.
func hitcountDDL() string {
	var b strings.Builder
	b.WriteString(`CREATE TABLE hitcount
	(
		timestamp       INTEGER NOT NULL DEFAULT CURRENT_TIME PRIMARY KEY,
		session_id      INTEGER NOT NULL,
	`)
	for _, col := range HitcountSensorColumns() {
		b.WriteString(col)
		b.WriteString(" INTEGER NOT NULL, ")
	}
	b.WriteString("FOREIGN KEY (session_id) REFERENCES testing_session (id) )")
	return b.String()
}

// housekeepingDDL builds the CREATE TABLE statement for the housekeeping
// table, keyed by measurement timestamp.
func housekeepingDDL() string {
	var b strings.Builder
	b.WriteString(`CREATE TABLE housekeeping
	(
		timestamp       DATETIME NOT NULL PRIMARY KEY,
		session_id      INTEGER NOT NULL,
	`)
	for _, col := range HousekeepingSensorColumns() {
		b.WriteString(col)
		b.WriteString(" INTEGER NOT NULL, ")
	}
	b.WriteString("FOREIGN KEY (session_id) REFERENCES testing_session (id) )")
	return b.String()
}
