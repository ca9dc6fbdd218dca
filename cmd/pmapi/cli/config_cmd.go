package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/patemonitor/pmapi/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage PMAPI configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default pmapi.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "pmapi.yaml", "Output file path")

	return cmd
}

const defaultConfigTemplate = `# PMAPI configuration.
# Every key can also be set via environment, e.g. PMAPI_SERVER_PORT=9000.

server:
  host: 0.0.0.0
  port: 8080
  shutdown_timeout: 30s
  cors_origins:
    - "*"
  # Requests per minute per client IP. 0 disables rate limiting.
  rate_limit: 0

database:
  file: pmapi.sqlite3
  max_open_conns: 1

command:
  # How long a command request waits for the control daemon to mark it
  # handled before answering 500 Timeout.
  timeout: 1s
  poll_interval: 200ms

log:
  level: info
`

func runConfigInit(output string) error {
	if _, err := os.Stat(output); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", output)
	}
	if err := os.WriteFile(output, []byte(defaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("Wrote %s\n", output)
	return nil
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long:  "Print the merged configuration after defaults, config file, and environment overrides.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigShow() error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# config file: %s\n", used)
	} else {
		fmt.Println("# no config file found, defaults and environment only")
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Print(string(out))
	return nil
}
