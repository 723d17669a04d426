package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/pkg/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a configuration file",
	Long: `Write a configuration file populated with the default settings.

The file is created at $XDG_CONFIG_HOME/stowd/config.yaml unless --config is
given. An existing file is only replaced with --force.

Examples:
  # Create the default configuration
  stowd init

  # Create a configuration at a custom path
  stowd init --config /etc/stowd/config.yaml

  # Overwrite an existing configuration
  stowd init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	path, err := config.InitConfig(cfgFile, initForce)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration written to %s\n\n", path)
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  stowd config edit      # review the settings")
	_, _ = fmt.Fprintln(out, "  stowd config validate  # check the file")
	_, _ = fmt.Fprintln(out, "  stowd start            # run the server")
	return nil
}
