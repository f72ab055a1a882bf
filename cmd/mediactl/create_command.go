package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romariotrain/media-pipeline/internal/client/api"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

type itemFlags struct {
	owner   string
	caption string
	kind    string
	mode    string
	origin  string
}

func (f *itemFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.owner, "owner", "", "Owner id")
	cmd.Flags().StringVar(&f.caption, "caption", "", "Caption")
	cmd.Flags().StringVar(&f.kind, "kind", "", "Media kind (video, photo, none)")
	cmd.Flags().StringVar(&f.mode, "mode", "", "Transform mode (passthrough, photo_to_video)")
	cmd.Flags().StringVar(&f.origin, "origin", "", "Locator of the original upload (s3://bucket/key)")
}

func (f *itemFlags) request() api.CreateItemRequest {
	return api.CreateItemRequest{
		OwnerID:       f.owner,
		MediaKind:     models.MediaKind(f.kind),
		TransformMode: models.TransformMode(f.mode),
		Caption:       f.caption,
		OriginLocator: f.origin,
	}
}

func newCreateCommand(ctx *commandContext) *cobra.Command {
	var flags itemFlags

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a media record in processing status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			item, err := client.CreateItem(cmd.Context(), flags.request())
			if err != nil {
				return fmt.Errorf("create item: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), item.ID)
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
