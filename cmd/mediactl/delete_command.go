package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/romariotrain/media-pipeline/internal/client/gate"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a failed media record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			id := args[0]
			out := cmd.OutOrStdout()

			if force {
				if err := client.DeleteItem(cmd.Context(), id); err != nil {
					return err
				}
				newPendingFile(ctx.pendingPath()).Forget(id)
				fmt.Fprintf(out, "deleted %s\n", id)
				return nil
			}

			item, err := client.GetItem(cmd.Context(), id)
			if errors.Is(err, models.ErrNotFound) {
				fmt.Fprintf(out, "%s does not exist\n", id)
				return nil
			}
			if err != nil {
				return err
			}

			g, err := gate.New(gate.Config{ItemID: id, Remover: client, Logger: ctx.logger()})
			if err != nil {
				return err
			}
			defer g.Close()

			g.Observe(models.Snapshot{Exists: true, Item: item})
			if err := g.Delete(cmd.Context()); err != nil {
				if errors.Is(err, gate.ErrDeleteNotAllowed) {
					return fmt.Errorf("%s is %s: %w (use --force to override)", id, item.Status, gate.ErrDeleteNotAllowed)
				}
				return err
			}
			newPendingFile(ctx.pendingPath()).Forget(id)
			fmt.Fprintf(out, "deleted %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Delete regardless of status")
	return cmd
}
