package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <name> [dest]",
	Short: "Download a file",
	Long: `Download a stored file. dest defaults to ./<name>; "-" writes to stdout.
A partially written destination is removed when the download fails.

Examples:
  # Download report.pdf into the current directory
  stowd client get report.pdf

  # Stream to stdout
  stowd client get notes.txt -`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGet,
}

func runGet(cmd *cobra.Command, args []string) error {
	name := args[0]
	dest := name
	if len(args) == 2 {
		dest = args[1]
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	if dest == "-" {
		_, err := c.Get(ctx, name, cmd.OutOrStdout())
		return err
	}

	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, name)
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	n, err := c.Get(ctx, name, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dest)
		return err
	}

	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	printer.Success("Downloaded %s (%d bytes) to %s", name, n, dest)
	return nil
}

