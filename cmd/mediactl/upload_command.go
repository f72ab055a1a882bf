package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/romariotrain/media-pipeline/internal/client/api"
	"github.com/romariotrain/media-pipeline/internal/client/uploader"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var (
		flags      itemFlags
		itemID     string
		corsOrigin string
		chunkSize  int64
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file for transcoding",
		Long: "Upload a file to a one-time upload target. Without --item a new record\n" +
			"is created first. The record is remembered as pending until it settles.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.ensureClient()
			if err != nil {
				return err
			}
			path := args[0]
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			info, err := file.Stat()
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory", path)
			}

			out := cmd.OutOrStdout()
			if strings.TrimSpace(itemID) == "" {
				item, err := client.CreateItem(cmd.Context(), flags.request())
				if err != nil {
					return fmt.Errorf("create item: %w", err)
				}
				itemID = item.ID
				fmt.Fprintf(out, "created item %s\n", itemID)
			}

			session, err := client.CreateUpload(cmd.Context(), api.UploadRequest{
				ItemID:     itemID,
				OwnerID:    flags.owner,
				CORSOrigin: corsOrigin,
			})
			if err != nil {
				return fmt.Errorf("create upload session: %w", err)
			}

			pending := newPendingFile(ctx.pendingPath())
			if err := pending.Remember(itemID, filepath.Base(path)); err != nil {
				return err
			}

			printer := newProgressPrinter(out)
			up := uploader.New(uploader.Config{
				ChunkSize: chunkSize,
				Progress: func(sent, total int64) {
					pct := 100
					if total > 0 {
						pct = int(sent * 100 / total)
					}
					printer.Print("uploading", pct)
				},
				Logger: ctx.logger(),
			})
			contentType := mime.TypeByExtension(filepath.Ext(path))
			if err := up.Upload(cmd.Context(), session.UploadURL, file, info.Size(), contentType); err != nil {
				printer.Done()
				return fmt.Errorf("upload %s: %w", path, err)
			}
			printer.Done()
			fmt.Fprintf(out, "uploaded %s as %s (upload %s)\n", filepath.Base(path), itemID, session.UploadID)

			if !watch {
				return nil
			}
			_, err = watchItem(cmd, ctx, client, itemID, false)
			return err
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&itemID, "item", "", "Existing item id to attach the upload to")
	cmd.Flags().StringVar(&corsOrigin, "cors-origin", "", "CORS origin for the upload target")
	cmd.Flags().Int64Var(&chunkSize, "chunk-size", 8<<20, "Chunk size in bytes")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch the item until it settles")
	return cmd
}
