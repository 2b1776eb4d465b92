package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	var (
		clean      bool
		archiveDir string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch flows, enrich them and load the threat graph",
		Long: `Checks that the flow index, the intelligence portal and the graph store are
available, aggregates recent connections, enriches their names and destinations,
and loads the assembled graph. Re-running over the same data leaves the graph
unchanged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("clean") {
				a.cfg.Clean = clean
			}
			if cmd.Flags().Changed("archive") {
				a.cfg.Archive.Dir = archiveDir
			}
			if err := a.cfg.ValidateSources(); err != nil {
				return err
			}

			ctx := cmd.Context()
			runner, closeStore, err := a.runner(ctx, true)
			if err != nil {
				return err
			}
			defer closeStore()

			report, err := runner.Run(ctx)
			if report.Health != nil && err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderHealth(report.Health))
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
			return nil
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", true, "delete the existing graph before loading")
	cmd.Flags().StringVar(&archiveDir, "archive", "", "directory to archive the run's inputs into")
	return cmd
}
