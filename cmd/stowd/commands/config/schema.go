package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/pkg/config"
)

var schemaOutput string

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	Long: `Print the JSON schema of stowd.yaml, or write it to a file with -o.

When written to a file, the matching yaml-language-server modeline is
printed so editors can validate the config against it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeSchema(cmd.OutOrStdout(), schemaOutput)
	},
}

func init() {
	schemaCmd.Flags().StringVarP(&schemaOutput, "output", "o", "", "Output file (default: stdout)")
}

func writeSchema(out io.Writer, dest string) error {
	data, err := config.Schema()
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if dest == "" || dest == "-" {
		_, err := out.Write(data)
		return err
	}
	if err := os.WriteFile(dest, data, 0644); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}

	abs, err := filepath.Abs(dest)
	if err != nil {
		abs = dest
	}
	_, _ = fmt.Fprintf(out, "Schema written to %s. Add this line to the top of your config:\n", dest)
	_, _ = fmt.Fprintf(out, "# yaml-language-server: $schema=%s\n", abs)
	return nil
}
