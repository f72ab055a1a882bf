package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/romariotrain/media-pipeline/internal/client/gate"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Display a media record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			item, err := client.GetItem(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderFields(itemFields(item), isTerminal(out)))
			return nil
		},
	}
}

func itemFields(item *models.MediaItem) []field {
	progress := ""
	if item.Status.InFlight() {
		progress = strconv.Itoa(gate.Progress(item.Stage, gate.DefaultVocabulary)) + "%"
	}
	purgedAt := ""
	if item.OriginPurgedAt != nil {
		purgedAt = item.OriginPurgedAt.Format(time.RFC3339)
	}
	purge := "no"
	switch {
	case item.OriginPurged:
		purge = "yes"
	case item.OriginPurgeError:
		purge = "failed"
	}
	return []field{
		{"ID", item.ID},
		{"Owner", item.OwnerID},
		{"Status", string(item.Status)},
		{"Stage", item.Stage},
		{"Progress", progress},
		{"Kind", string(item.MediaKind)},
		{"Mode", string(item.TransformMode)},
		{"Caption", item.Caption},
		{"Playback ID", item.ExternalAssetPlaybackID},
		{"Upload ID", item.ExternalUploadSessionID},
		{"Origin purged", purge},
		{"Purged at", purgedAt},
		{"Updated", item.UpdatedAt.Format(time.RFC3339)},
	}
}
