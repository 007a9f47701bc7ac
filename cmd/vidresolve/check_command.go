package main

import (
	"errors"

	"github.com/spf13/cobra"

	"vidresolve/internal/app"
	"vidresolve/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check directories, the record store, the provider and the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *app.Components) error {
				results := preflight.RunAll(cmd.Context(), c.Config, c.Store, c.Provider)
				if jsonOutput {
					if err := writeJSON(cmd, results); err != nil {
						return err
					}
				} else {
					rows := make([][]string, 0, len(results))
					for _, result := range results {
						status := "ok"
						if !result.Passed {
							status = "FAIL"
						}
						rows = append(rows, []string{result.Name, status, result.Detail})
					}
					printTable(cmd.OutOrStdout(), []string{"Check", "Status", "Detail"}, rows)
				}
				if preflight.Failed(results) {
					return errors.New("one or more checks failed")
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
