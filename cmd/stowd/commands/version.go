package commands

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "stowd %s\n", Version)
		_, _ = fmt.Fprintf(out, "  commit:     %s\n", Commit)
		_, _ = fmt.Fprintf(out, "  built:      %s\n", Date)
		_, _ = fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
		_, _ = fmt.Fprintf(out, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}
