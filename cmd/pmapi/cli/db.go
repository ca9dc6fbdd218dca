package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/patemonitor/pmapi/internal/config"
	"github.com/patemonitor/pmapi/internal/db"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Manage the test bench database",
		Long:  "Initialize or inspect the embedded SQLite database.",
	}

	cmd.AddCommand(newDBInitCmd())
	cmd.AddCommand(newDBStatusCmd())

	return cmd
}

// ---------- db init ----------

func newDBInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Drop and recreate all PMAPI tables",
		Long: `Drop every PMAPI table in reverse dependency order, vacuum the
datafile, and recreate the full schema. This is destructive: all recorded
test data is lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip the confirmation prompt")

	return cmd
}

func runDBInit(force bool) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	if !force {
		fmt.Printf("This will DROP and recreate all tables in %s. Type 'yes' to continue: ", cfg.Database.File)
		var answer string
		fmt.Scanln(&answer)
		if answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	creator := db.NewCreator(conn, logger)
	if err := creator.Reset(context.Background()); err != nil {
		return fmt.Errorf("schema creation failed: %w", err)
	}

	fmt.Printf("Database %s initialized with %d tables.\n", cfg.Database.File, len(db.Tables))
	return nil
}

// ---------- db status ----------

func newDBStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which PMAPI tables exist and their row counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBStatus()
		},
	}
}

func runDBStatus() error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	conn, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer conn.Close()

	fmt.Printf("Database: %s\n\n", cfg.Database.File)
	for _, table := range db.Tables {
		var n int
		if err := conn.Get(&n, "SELECT count(*) FROM "+table); err != nil {
			fmt.Printf("  %-16s (missing)\n", table)
			continue
		}
		fmt.Printf("  %-16s %d rows\n", table, n)
	}
	return nil
}
