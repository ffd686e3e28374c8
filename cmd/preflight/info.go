package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/happyrust/preflight/internal/workflow"
)

func newInfoCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print project statistics without running any stage",
		Long: `Print workspace member and package counts from the build tool metadata,
the current git commit and branch, and source file counts. Sources that
are unavailable are left out.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := newEngine(cmd, opts)
			if err != nil {
				return err
			}

			info := eng.ProjectInfo(cmd.Context())
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			workflow.NewConsole(cmd.OutOrStdout(), eng.Color).Info(info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output statistics as JSON")
	return cmd
}
