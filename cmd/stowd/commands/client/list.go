package client

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/internal/cli/output"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored files",
	Long: `List the files the server currently holds, in server order.

Examples:
  # List files
  stowd client list

  # As JSON
  stowd client list -o json`,
	Args: cobra.NoArgs,
	RunE: runList,
}

// FileList is the list command result.
type FileList []string

// Headers implements output.TableRenderer.
func (FileList) Headers() []string {
	return []string{"NAME"}
}

// Rows implements output.TableRenderer.
func (l FileList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, name := range l {
		rows = append(rows, []string{name})
	}
	return rows
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := requestContext(cmd)
	defer cancel()

	names, err := c.List(ctx)
	if err != nil {
		return err
	}

	if len(names) == 0 && printer.Format() == output.FormatTable {
		printer.Warning("No files stored.")
		return nil
	}
	return printer.Print(FileList(names))
}
