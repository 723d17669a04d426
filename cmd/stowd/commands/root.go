// Package commands implements the stowd CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/cmd/stowd/commands/client"
	"github.com/marmos91/stowd/cmd/stowd/commands/config"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "stowd",
	Short: "stowd - event-driven file server",
	Long: `stowd stores, serves, lists and deletes files over a small TCP protocol
(LIST, GET, PUT, DELETE). One event loop multiplexes every connection.

Use "stowd [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/stowd/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(config.Cmd)
	rootCmd.AddCommand(client.Cmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
