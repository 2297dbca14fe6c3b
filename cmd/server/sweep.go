package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one payment-timeout and no-show pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			rep, err := a.svc.Sweeper.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reconciled=%d expired=%d no_shows=%d skipped=%d\n",
				rep.Reconciled, rep.Expired, rep.NoShows, rep.Skipped)
			return nil
		},
	}
}
