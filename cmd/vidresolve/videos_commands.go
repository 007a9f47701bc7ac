package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"vidresolve/internal/api"
	"vidresolve/internal/app"
	"vidresolve/internal/video"
)

func newVideosCommand(ctx *commandContext) *cobra.Command {
	videosCmd := &cobra.Command{
		Use:   "videos",
		Short: "Inspect and manage video records",
	}

	videosCmd.AddCommand(newVideosAddCommand(ctx))
	videosCmd.AddCommand(newVideosListCommand(ctx))
	videosCmd.AddCommand(newVideosShowCommand(ctx))
	videosCmd.AddCommand(newVideosImportCommand(ctx))
	return videosCmd
}

func newVideosAddCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "add <owner-id> <reference>",
		Short: "Create a pending record for an owner's reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *app.Components) error {
				created, err := c.Videos.Create(cmd.Context(), api.CreateVideoRequest{OwnerID: args[0], RawReference: args[1]})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, created)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created record %s (%s reference)\n", created.RecordID, label(created.ReferenceKind))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newVideosListCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var statusFlags []string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, optionally for one owner or status",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses := make([]video.Status, 0, len(statusFlags))
			for _, value := range statusFlags {
				status, ok := video.ParseStatus(value)
				if !ok {
					return fmt.Errorf("unknown status %q", value)
				}
				statuses = append(statuses, status)
			}
			return ctx.withComponents(cmd, func(c *app.Components) error {
				var (
					videos []api.Video
					err    error
				)
				if strings.TrimSpace(owner) != "" {
					videos, err = c.Videos.ListByOwner(cmd.Context(), owner)
					videos = filterByStatus(videos, statuses)
				} else {
					videos, err = c.Videos.List(cmd.Context(), statuses...)
				}
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, videos)
				}
				out := cmd.OutOrStdout()
				if len(videos) == 0 {
					fmt.Fprintln(out, "No records")
					return nil
				}
				rows := make([][]string, 0, len(videos))
				for _, v := range videos {
					rows = append(rows, []string{
						v.RecordID,
						v.OwnerID,
						label(v.Status),
						label(v.ReferenceKind),
						orDash(v.PlaybackURL),
						yesNo(v.NeedsReupload),
					})
				}
				printTable(out, []string{"Record", "Owner", "Status", "Reference", "Playback URL", "Re-upload"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Only list records for this owner (newest first)")
	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by status (pending, ready, errored, deleted)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func filterByStatus(videos []api.Video, statuses []video.Status) []api.Video {
	if len(statuses) == 0 {
		return videos
	}
	out := videos[:0]
	for _, v := range videos {
		for _, status := range statuses {
			if v.Status == string(status) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

func newVideosShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <record-id>",
		Short: "Show one record, resolving it first when still pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withComponents(cmd, func(c *app.Components) error {
				v, err := c.Videos.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, v)
				}
				rows := [][]string{
					{"Record", v.RecordID},
					{"Owner", v.OwnerID},
					{"Reference", v.RawReference},
					{"Reference kind", label(v.ReferenceKind)},
					{"Status", label(v.Status)},
					{"Playback URL", orDash(v.PlaybackURL)},
					{"Thumbnail URL", orDash(v.ThumbnailURL)},
					{"Needs re-upload", yesNo(v.NeedsReupload)},
					{"Created", orDash(v.CreatedAt)},
					{"Updated", orDash(v.UpdatedAt)},
				}
				if v.Resolution != nil {
					result := v.Resolution.Outcome
					if v.Resolution.Reason != "" {
						result = v.Resolution.Reason
					}
					rows = append(rows, []string{"Resolution", label(result)})
				}
				out := cmd.OutOrStdout()
				printTable(out, []string{"Field", "Value"}, rows)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

// importedRecord is one entry of a legacy export handed to `videos import`.
type importedRecord struct {
	RecordID     string    `json:"recordId"`
	OwnerID      string    `json:"ownerId"`
	RawReference string    `json:"rawReference"`
	PlaybackURL  string    `json:"playbackUrl"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

func newVideosImportCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Import records exported by an older system, stored fields kept as is",
		Long: "Reads a JSON array of {recordId, ownerId, rawReference, playbackUrl, thumbnailUrl, status, createdAt} " +
			"objects. Records keep their stored playback URL and status; run `vidresolve reconcile` afterwards to repair them.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var entries []importedRecord
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("parse import file: %w", err)
			}
			return ctx.withComponents(cmd, func(c *app.Components) error {
				for i, entry := range entries {
					status := video.StatusPending
					if strings.TrimSpace(entry.Status) != "" {
						parsed, ok := video.ParseStatus(entry.Status)
						if !ok {
							return fmt.Errorf("entry %d: unknown status %q", i, entry.Status)
						}
						status = parsed
					}
					rec := &video.Record{
						RecordID:     strings.TrimSpace(entry.RecordID),
						OwnerID:      entry.OwnerID,
						RawReference: entry.RawReference,
						PlaybackURL:  strings.TrimSpace(entry.PlaybackURL),
						ThumbnailURL: strings.TrimSpace(entry.ThumbnailURL),
						Status:       status,
						CreatedAt:    entry.CreatedAt,
					}
					if err := c.Store.Import(cmd.Context(), rec); err != nil {
						return fmt.Errorf("entry %d: %w", i, err)
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d records\n", len(entries))
				return nil
			})
		},
	}
	return cmd
}
