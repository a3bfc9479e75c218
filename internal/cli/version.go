package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/rkill/internal/metrics"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := metrics.BuildInfo()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "go:       %s\n", info["go_version"])
			if rev := info["vcs_revision"]; rev != "" {
				modified := ""
				if info["vcs_modified"] == "true" {
					modified = " (modified)"
				}
				fmt.Fprintf(out, "revision: %s%s\n", rev, modified)
			}
			if when := info["vcs_time"]; when != "" {
				fmt.Fprintf(out, "built:    %s\n", when)
			}
			return nil
		},
	}
}
