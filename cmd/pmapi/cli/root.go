package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/patemonitor/pmapi/internal/config"
)

var cfgFile string

// Execute creates the root command tree and runs it.
func Execute(version, commit, date string) error {
	rootCmd := newRootCmd(version, commit, date)
	return rootCmd.Execute()
}

func newRootCmd(version, commit, date string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pmapi",
		Short: "PATE Monitor REST API middleware",
		Long: `PMAPI: the PATE Monitor REST API middleware.

PMAPI exposes the satellite payload test bench database over HTTP: science
data (hit counts, pulse heights), housekeeping, the async instrument command
log, PSU state, testing sessions, and operator notes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./pmapi.yaml)")

	cobra.OnInitialize(initConfig)

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newDBCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd(version, commit, date))

	return cmd
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("pmapi")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/pmapi")
	}

	config.SetDefaults(viper.GetViper())

	viper.SetEnvPrefix("PMAPI")
	viper.AutomaticEnv()
	viper.ReadInConfig() // Ignore error - config file is optional
}
