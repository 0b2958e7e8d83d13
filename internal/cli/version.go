package cli

import (
	"github.com/spf13/cobra"

	"github.com/lgc202/restkit/version"
)

func newVersionCommand(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information (-o text, json or short)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format := g.output
			if !cmd.Flags().Changed("output") {
				format = "text"
			}
			if err := version.Get().Write(cmd.OutOrStdout(), format); err != nil {
				return &usageError{err}
			}
			return nil
		},
	}
}
