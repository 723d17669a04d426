package client

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/internal/protocol"
)

var putCmd = &cobra.Command{
	Use:   "put <path> [name]",
	Short: "Upload a file",
	Long: `Upload a local file. name defaults to the base name of path. Uploading
an existing name replaces it once the transfer completes.

Examples:
  # Upload ./report.pdf as report.pdf
  stowd client put ./report.pdf

  # Upload under another name
  stowd client put ./build/out.tar.gz release.tar.gz`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runPut,
}

func runPut(cmd *cobra.Command, args []string) error {
	path := args[0]
	name := filepath.Base(path)
	if len(args) == 2 {
		name = args[1]
	}
	if err := protocol.ValidateName(name); err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	if err := c.Put(ctx, name, f, uint64(info.Size())); err != nil {
		return err
	}

	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	printer.Success("Uploaded %s (%d bytes) as %s", path, info.Size(), name)
	return nil
}
