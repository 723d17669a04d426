// Package client implements the protocol client subcommands.
package client

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/internal/cli/output"
	"github.com/marmos91/stowd/internal/protocol"
	protoclient "github.com/marmos91/stowd/pkg/client"
	"github.com/marmos91/stowd/pkg/config"
)

var (
	addr      string
	byteOrder string
	timeout   time.Duration
	outputFmt string
)

// Cmd is the client subcommand.
var Cmd = &cobra.Command{
	Use:   "client",
	Short: "Talk to a running server",
	Long: `List, download, upload and delete files on a stowd server.

Without --addr the client connects to 127.0.0.1 on server.port from the
configuration. --byte-order must match the server.

Subcommands:
  list    List stored files
  get     Download a file
  put     Upload a file
  delete  Delete a file`,
}

func init() {
	Cmd.PersistentFlags().StringVar(&addr, "addr", "", "Server address host:port (default: 127.0.0.1:<server.port>)")
	Cmd.PersistentFlags().StringVar(&byteOrder, "byte-order", "", "Size field byte order: little, big or native (default: from config)")
	Cmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout (0 disables)")
	Cmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format (table|json|yaml)")

	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(getCmd)
	Cmd.AddCommand(putCmd)
	Cmd.AddCommand(deleteCmd)
}

// newClient builds a protocol client from flags, falling back to the config.
func newClient(cmd *cobra.Command) (*protoclient.Client, error) {
	target, orderName := addr, byteOrder
	if target == "" || orderName == "" {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		if target == "" {
			target = fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
		}
		if orderName == "" {
			orderName = cfg.Server.ByteOrder
		}
	}

	order, err := protocol.ParseByteOrder(orderName)
	if err != nil {
		return nil, err
	}
	return protoclient.New(target, protoclient.WithByteOrder(order)), nil
}

func newPrinter(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(outputFmt)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, isTerminal(os.Stdout)), nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
