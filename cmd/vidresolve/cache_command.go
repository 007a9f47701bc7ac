package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"vidresolve/internal/api"
	"vidresolve/internal/app"
	"vidresolve/internal/resolution"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the persisted resolution cache",
	}

	cacheCmd.AddCommand(newCacheListCommand(ctx))
	cacheCmd.AddCommand(newCacheRemoveCommand(ctx))
	return cacheCmd
}

func newCacheListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List permanent and seeded cache entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *app.Components) error {
				entries := api.FromCacheEntries(c.Cache.List())
				if jsonOutput {
					return writeJSON(cmd, api.CacheListResponse{Entries: entries})
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Resolution cache is empty")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					outcome := entry.Resolution.Outcome
					if entry.Resolution.Reason != "" {
						outcome += " (" + entry.Resolution.Reason + ")"
					}
					rows = append(rows, []string{
						entry.Key,
						label(outcome),
						orDash(entry.Resolution.PlaybackID),
						yesNo(entry.Permanent),
						yesNo(entry.Seeded),
						orDash(entry.RecordedAt),
					})
				}
				printTable(out, []string{"Key", "Outcome", "Playback ID", "Permanent", "Seeded", "Recorded"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newCacheRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key>",
		Short: "Forget one cached resolution so the provider is asked again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *app.Components) error {
				if err := c.Cache.Remove(args[0]); err != nil {
					if errors.Is(err, resolution.ErrNotCached) {
						return fmt.Errorf("no cache entry for %q", args[0])
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s from the resolution cache\n", args[0])
				return nil
			})
		},
	}
}
