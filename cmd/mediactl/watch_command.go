package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/spf13/cobra"

	"github.com/romariotrain/media-pipeline/internal/client/api"
	"github.com/romariotrain/media-pipeline/internal/client/gate"
	"github.com/romariotrain/media-pipeline/internal/media/models"
)

// cursorLock hides the terminal cursor while an item is processing.
type cursorLock struct {
	out io.Writer
	tty bool

	mu   sync.Mutex
	held bool
}

func (l *cursorLock) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
	if l.tty {
		fmt.Fprint(l.out, "\x1b[?25l")
	}
}

func (l *cursorLock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = false
	if l.tty {
		fmt.Fprint(l.out, "\x1b[?25h")
	}
}

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var deleteOnFailure bool

	cmd := &cobra.Command{
		Use:   "watch <id>",
		Short: "Follow an item until it is ready or failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			_, err = watchItem(cmd, ctx, client, args[0], deleteOnFailure)
			return err
		},
	}

	cmd.Flags().BoolVar(&deleteOnFailure, "delete-on-failure", false, "Delete the item if processing failed")
	return cmd
}

func watchItem(cmd *cobra.Command, ctx *commandContext, client *api.Client, id string, deleteOnFailure bool) (gate.State, error) {
	out := cmd.OutOrStdout()
	tty := isTerminal(out)
	printer := newProgressPrinter(out)

	g, err := gate.New(gate.Config{
		ItemID:  id,
		Lock:    &cursorLock{out: out, tty: tty},
		Pending: newPendingFile(ctx.pendingPath()),
		Remover: client,
		OnReady: func(item models.MediaItem) {
			printer.Done()
			fmt.Fprintf(out, "%s %s playback id %s\n", phaseLabel(gate.PhaseReady, tty), item.ID, item.ExternalAssetPlaybackID)
		},
		OnChange: func(st gate.State) {
			if st.Phase == gate.PhaseInFlight {
				label := st.Stage
				if label == "" {
					label = string(st.Item.Status)
				}
				printer.Print(label, st.Progress)
			}
		},
		Logger: ctx.logger(),
	})
	if err != nil {
		return gate.State{}, err
	}
	defer g.Close()

	snapshots, err := client.Watch(cmd.Context(), id)
	if err != nil {
		return gate.State{}, fmt.Errorf("watch %s: %w", id, err)
	}

	st, err := g.Run(cmd.Context(), snapshots)
	printer.Done()
	if err != nil {
		return st, err
	}

	switch st.Phase {
	case gate.PhaseFailed:
		fmt.Fprintf(out, "%s %s processing failed\n", phaseLabel(st.Phase, tty), id)
		if !deleteOnFailure {
			fmt.Fprintf(out, "the only available action is: mediactl delete %s\n", id)
			return st, errors.New("processing failed")
		}
		if err := g.Delete(cmd.Context()); err != nil {
			return st, err
		}
		fmt.Fprintf(out, "deleted %s\n", id)
	case gate.PhaseGone:
		fmt.Fprintf(out, "%s %s no longer exists\n", phaseLabel(st.Phase, tty), id)
	}
	return g.State(), nil
}
