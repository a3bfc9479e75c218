package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/rkill/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Work with rkill settings files",
	}
	cmd.AddCommand(newConfigLintCmd())
	return cmd
}

func newConfigLintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint [file]",
		Short: "Validate a settings file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else if inherited := cmd.Flag("config"); inherited != nil {
				path = inherited.Value.String()
			}
			if path == "" {
				path = os.Getenv(config.EnvConfig)
			}
			if path == "" {
				return usageErrorf("no settings file given: pass a path, --config or $%s", config.EnvConfig)
			}

			if _, err := config.Load(path); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
				return &ExitError{Code: exitRuntime, Err: fmt.Errorf("%s: invalid settings", path)}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK\n", path)
			return nil
		},
	}
	return cmd
}
