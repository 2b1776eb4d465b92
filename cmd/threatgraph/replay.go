package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-threatgraph/pkg/archive"
	"github.com/dd0wney/cluso-threatgraph/pkg/logging"
)

func newReplayCmd(a *app) *cobra.Command {
	var clean bool

	cmd := &cobra.Command{
		Use:   "replay [archive]",
		Short: "Rebuild the threat graph from an archived run",
		Long: `Loads the flows and enrichment bundles recorded by "run --archive" without
contacting the flow index or the intelligence portal. Without an argument the
most recent archive in the configured archive directory is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("clean") {
				a.cfg.Clean = clean
			}

			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				if a.cfg.Archive.Dir == "" {
					return errors.New("no archive given and archive.dir is not configured")
				}
				latest, err := archive.Latest(a.cfg.Archive.Dir)
				if err != nil {
					return err
				}
				path = latest
				a.logger.Info("replaying latest archive", logging.String("path", path))
			}

			ctx := cmd.Context()
			runner, closeStore, err := a.runner(ctx, false)
			if err != nil {
				return err
			}
			defer closeStore()

			if _, err := runner.Check(ctx); err != nil {
				return err
			}
			report, err := runner.Replay(ctx, path)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
			return nil
		},
	}

	cmd.Flags().BoolVar(&clean, "clean", true, "delete the existing graph before loading")
	return cmd
}
