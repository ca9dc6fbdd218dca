package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/patemonitor/pmapi/internal/config"
	"github.com/patemonitor/pmapi/internal/db"
	"github.com/patemonitor/pmapi/internal/server"
)

func newServeCmd() *cobra.Command {
	var (
		port int
		host string
		dev  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the PMAPI server",
		Long:  "Start the HTTP server that exposes the PATE test bench database as a REST API.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(dev)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP listen port")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "HTTP listen host")
	cmd.Flags().BoolVar(&dev, "dev", false, "Enable development mode (verbose logging)")

	viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
	viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))

	return cmd
}

func runServe(dev bool) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logLevel := parseLogLevel(cfg.Log.Level)
	if dev {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	logger.Info("database opened", "file", cfg.Database.File)

	srv := server.New(cfg, conn, logger)

	fmt.Printf("PMAPI - PATE Monitor REST API\n")
	fmt.Printf("Listening on http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Database:     %s\n", cfg.Database.File)
	fmt.Printf("API version:  %d\n", config.APIVersion)
	fmt.Println()

	return srv.ListenAndServe()
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
