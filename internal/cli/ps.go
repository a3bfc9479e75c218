package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/rkill/internal/cliutil"
	"github.com/Paintersrp/rkill/internal/proctree"
)

func newPsCmd(ctx *context, sel *selectors) *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "ps",
		Short: "List matching processes without touching them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			defer ctx.finish(&err)
			if err := validateSelectors(cmd, *sel); err != nil {
				return err
			}
			if err := ctx.setup(cmd); err != nil {
				return err
			}

			table := ctx.table()
			records, err := ctx.seeds(cmd.Context(), table, *sel)
			if err != nil {
				return err
			}
			if tree && len(records) > 0 {
				resolver := &proctree.Resolver{Table: table, Protect: ctx.settings.Protect, Log: ctx.log}
				records, err = resolver.Resolve(cmd.Context(), records)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "rkill: No matching processes!")
				return nil
			}
			return ctx.renderer(out).Render(out, cliutil.SectionMatches, records)
		},
	}
	cmd.Flags().BoolVarP(&tree, "children", "C", false, "Include every descendant of the matches")
	return cmd
}
