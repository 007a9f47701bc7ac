package main

import (
	"github.com/spf13/cobra"

	"vidresolve/internal/identifier"
)

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "classify <reference>...",
		Short: "Show how references are classified, without contacting the provider",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			rules := cfg.PlaybackRules()
			results := make([]identifier.Identifier, 0, len(args))
			for _, arg := range args {
				results = append(results, rules.Classify(arg))
			}
			if jsonOutput {
				return writeJSON(cmd, results)
			}

			rows := make([][]string, 0, len(results))
			for _, id := range results {
				canonical := ""
				if id.Kind == identifier.KindPlaybackID {
					canonical = rules.PlaybackURL(id.ID)
				}
				rows = append(rows, []string{id.Value, label(string(id.Kind)), orDash(id.ID), orDash(canonical)})
			}
			printTable(cmd.OutOrStdout(), []string{"Reference", "Kind", "ID", "Canonical URL"}, rows)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
