package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPendingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List uploads that have not settled yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := newPendingFile(ctx.pendingPath()).List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No pending items")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.ID, e.Note})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderList([]string{"ID", "File"}, rows))
			return nil
		},
	}
}
