package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/internal/bytesize"
	"github.com/marmos91/stowd/internal/cli/output"
	"github.com/marmos91/stowd/pkg/apiclient"
	"github.com/marmos91/stowd/pkg/journal"
)

var (
	historyOutput   string
	historyAPIURL   string
	historyFilename string
	historyCommand  string
	historyLimit    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the transfer journal",
	Long: `List finished requests recorded in the transfer journal, newest first.

The journal must be enabled in the server configuration (journal.enabled).

Examples:
  # Last 20 requests
  stowd history -n 20

  # Every PUT of one file
  stowd history --filename report.pdf --command put`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyAPIURL, "api-url", "", "Admin API URL (default: http://localhost:<api.port>)")
	historyCmd.Flags().StringVar(&historyFilename, "filename", "", "Only show requests for this file")
	historyCmd.Flags().StringVar(&historyCommand, "command", "", "Only show this command (list|get|put|delete)")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 50, "Maximum number of entries")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// historyTable renders journal entries.
type historyTable []journal.Entry

func (h historyTable) Headers() []string {
	return []string{"Time", "Conn", "Client", "Command", "File", "Size", "Outcome", "Duration"}
}

func (h historyTable) Rows() [][]string {
	rows := make([][]string, 0, len(h))
	for _, e := range h {
		outcome := e.Outcome
		if e.Error != "" {
			outcome += ": " + e.Error
		}
		rows = append(rows, []string{
			e.CreatedAt.Local().Format(time.DateTime),
			strconv.FormatUint(e.ConnectionID, 10),
			e.ClientAddr,
			e.Command,
			e.Filename,
			bytesize.ByteSize(e.BytesTransferred).String(),
			outcome,
			fmt.Sprintf("%.1fms", e.DurationMs),
		})
	}
	return rows
}

func runHistory(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(historyOutput)
	if err != nil {
		return err
	}
	base, err := apiURL(historyAPIURL)
	if err != nil {
		return err
	}

	entries, err := apiclient.New(base).History(cmd.Context(), apiclient.HistoryQuery{
		Filename: historyFilename,
		Command:  strings.ToUpper(historyCommand),
		Limit:    historyLimit,
	})
	if apiclient.IsNotFound(err) {
		return fmt.Errorf("the transfer journal is disabled on this server (set journal.enabled)")
	}
	if err != nil {
		return err
	}

	if format == output.FormatTable && len(entries) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No transfers recorded.")
		return nil
	}
	return output.NewPrinter(cmd.OutOrStdout(), format, false).Print(historyTable(entries))
}
