package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPurgeScopeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-scope <project-id>",
		Short: "Delete every similarity document of a project",
		Long:  "Removes dedup memory and scope-keyed semantic cache documents for one project. Needs a persistent similarity backend.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			a := newApp(cfg, logger)
			defer a.Close()
			if err := a.buildSimilarity(cmd.Context()); err != nil {
				return err
			}

			n, err := a.dedup.ForgetScope(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d document(s) for project %s\n", n, args[0])
			return nil
		},
	}
}
