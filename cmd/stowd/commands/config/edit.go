package config

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/stowd/pkg/config"
)

var editCmd = &cobra.Command{
	Use:   "edit",
	Short: "Edit the configuration file in place",
	Long: `Open a scratch copy of the configuration in $EDITOR (then $VISUAL,
then vi). The file is replaced only if the edited copy loads and
validates; otherwise the original is left untouched.

EDITOR may carry arguments, e.g. EDITOR="code --wait".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath(cmd)
		if path == "" {
			path = config.GetDefaultConfigPath()
		}
		return editConfig(path, editorArgv(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

// editorArgv splits the configured editor command on whitespace.
func editorArgv() []string {
	for _, env := range []string{"EDITOR", "VISUAL"} {
		if argv := strings.Fields(os.Getenv(env)); len(argv) > 0 {
			return argv
		}
	}
	return []string{"vi"}
}

func editConfig(path string, editor []string, in io.Reader, out, errOut io.Writer) error {
	original, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s\n\nCreate it first with:\n  stowd init --config %s", path, path)
	}
	if err != nil {
		return err
	}

	// Same directory and extension so viper picks the same decoder and the
	// final rename stays on one filesystem.
	scratch, err := os.CreateTemp(filepath.Dir(path), ".edit-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to create scratch copy: %w", err)
	}
	scratchPath := scratch.Name()
	defer func() { _ = os.Remove(scratchPath) }()

	_, err = scratch.Write(original)
	if cerr := scratch.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to write scratch copy: %w", err)
	}

	run := exec.Command(editor[0], append(editor[1:], scratchPath)...)
	run.Stdin, run.Stdout, run.Stderr = in, out, errOut
	if err := run.Run(); err != nil {
		return fmt.Errorf("failed to run editor: %w", err)
	}

	edited, err := os.ReadFile(scratchPath)
	if err != nil {
		return err
	}
	if string(edited) == string(original) {
		_, _ = fmt.Fprintln(out, "No changes.")
		return nil
	}
	if _, err := config.Load(scratchPath); err != nil {
		return fmt.Errorf("edit discarded, %s unchanged: %w", path, err)
	}

	if info, err := os.Stat(path); err == nil {
		_ = os.Chmod(scratchPath, info.Mode().Perm())
	}
	if err := os.Rename(scratchPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	_, _ = fmt.Fprintf(out, "Configuration saved: %s\n", path)
	return nil
}
