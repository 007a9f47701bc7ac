package main

import (
	"github.com/spf13/cobra"

	"vidresolve/internal/api"
	"vidresolve/internal/app"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "resolve <reference>...",
		Short: "Resolve references to playback URLs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *app.Components) error {
				responses := make([]api.ResolveResponse, 0, len(args))
				for _, arg := range args {
					resp, err := c.Videos.Resolve(cmd.Context(), arg)
					if err != nil {
						return err
					}
					responses = append(responses, resp)
				}
				if jsonOutput {
					return writeJSON(cmd, responses)
				}

				rows := make([][]string, 0, len(responses))
				for _, resp := range responses {
					outcome := resp.Resolution.Outcome
					if resp.Resolution.Reason != "" {
						outcome = resp.Resolution.Reason
					}
					rows = append(rows, []string{
						resp.Reference,
						label(resp.Kind),
						label(outcome),
						orDash(resp.Resolution.PlaybackURL),
					})
				}
				printTable(cmd.OutOrStdout(), []string{"Reference", "Kind", "Result", "Playback URL"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
