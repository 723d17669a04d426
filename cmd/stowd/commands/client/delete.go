package client

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/internal/cli/prompt"
)

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a file",
	Long: `Delete a stored file. Asks for confirmation unless --force is given.

Examples:
  # Delete with confirmation
  stowd client delete old.log

  # Delete without confirmation
  stowd client delete old.log --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	name := args[0]

	ok, err := prompt.ConfirmWithForce(fmt.Sprintf("Delete %s", name), deleteForce)
	if err != nil {
		if errors.Is(err, prompt.ErrAborted) {
			return nil
		}
		return err
	}
	if !ok {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
		return nil
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := requestContext(cmd)
	defer cancel()

	if err := c.Delete(ctx, name); err != nil {
		return err
	}

	printer, err := newPrinter(cmd)
	if err != nil {
		return err
	}
	printer.Success("Deleted %s", name)
	return nil
}
