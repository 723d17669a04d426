package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/pkg/config"
	"github.com/marmos91/stowd/pkg/store/backends"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the stowd configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  stowd config validate

  # Validate specific config file
  stowd config validate --config /etc/stowd/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Storage.Type == backends.TypeFS && cfg.Storage.FS.Path == "" {
		warnings = append(warnings, "storage.fs.path is empty: files live in a temporary directory removed on exit")
	}
	if cfg.Storage.Type == backends.TypeMemory {
		warnings = append(warnings, "memory storage: files are lost on exit")
	}
	if !cfg.API.IsEnabled() && !cfg.Metrics.Enabled {
		warnings = append(warnings, "no admin API or metrics endpoint: the server can only be observed through its logs")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Listen:          %s:%d\n", displayBind(cfg.Server.BindAddress), cfg.Server.Port)
	_, _ = fmt.Fprintf(out, "  Storage:         %s\n", cfg.Storage.Type)
	_, _ = fmt.Fprintf(out, "  Byte order:      %s\n", cfg.Server.ByteOrder)
	_, _ = fmt.Fprintf(out, "  Journal:         %s\n", enabled(cfg.Journal.Enabled))
	_, _ = fmt.Fprintf(out, "  API:             %s\n", enabled(cfg.API.IsEnabled()))
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)
	return nil
}

func displayBind(addr string) string {
	if addr == "" {
		return "*"
	}
	return addr
}

func enabled(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
