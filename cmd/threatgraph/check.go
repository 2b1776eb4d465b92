package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that every dependency of a run is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateSources(); err != nil {
				return err
			}

			ctx := cmd.Context()
			runner, closeStore, err := a.runner(ctx, true)
			if err != nil {
				return err
			}
			defer closeStore()

			resp, err := runner.Check(ctx)
			if resp != nil {
				fmt.Fprintln(cmd.OutOrStdout(), renderHealth(resp))
			}
			return err
		},
	}
}
