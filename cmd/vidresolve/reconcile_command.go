package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"vidresolve/internal/api"
	"vidresolve/internal/app"
	"vidresolve/internal/reconcile"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair every stale or malformed record in one pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *app.Components) error {
				summary, err := c.Reconcile.RunAll(cmd.Context())
				if errors.Is(err, reconcile.ErrAlreadyRunning) {
					return fmt.Errorf("reconcile: another pass is running (lock %s)", c.Config.ReconcileLockPath())
				}
				if err != nil {
					return err
				}
				dto := api.FromSummary(summary)
				if jsonOutput {
					return writeJSON(cmd, dto)
				}
				rows := [][]string{
					{"Scanned", fmt.Sprint(dto.Scanned)},
					{"Patched", fmt.Sprint(dto.Patched)},
					{"Skipped", fmt.Sprint(dto.Skipped)},
					{"Deferred", fmt.Sprint(dto.Deferred)},
					{"Malformed", fmt.Sprint(dto.Malformed)},
					{"Refused", fmt.Sprint(dto.Refused)},
					{"Failed", fmt.Sprint(dto.Failed)},
					{"Duration", summary.Duration.Round(time.Millisecond).String()},
				}
				out := cmd.OutOrStdout()
				printTable(out, []string{"Records", "Count"}, rows, 1)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
