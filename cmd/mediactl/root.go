package main

import (
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8081"

func newRootCommand() *cobra.Command {
	var serverFlag string
	var logLevelFlag string

	ctx := newCommandContext(&serverFlag, &logLevelFlag)

	rootCmd := &cobra.Command{
		Use:           "mediactl",
		Short:         "Client for the media ingest server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&serverFlag, "server", "s", "", "Media server URL (default $MEDIACTL_SERVER or "+defaultServer+")")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level")

	rootCmd.AddCommand(newCreateCommand(ctx))
	rootCmd.AddCommand(newUploadCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newDeleteCommand(ctx))
	rootCmd.AddCommand(newPendingCommand(ctx))

	return rootCmd
}
