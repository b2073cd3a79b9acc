package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(downloadCmd)
}

var downloadCmd = &cobra.Command{
	Use:   "download <class-id> <dir>",
	Short: "Downloads every file of a class into a directory.",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		_, classes, db := openAccount(ctx)
		defer db.Close()

		dir := args[1]
		err := os.MkdirAll(dir, 0755)
		if err != nil {
			Fatal("failed to create output directory", err)
		}

		files, err := findClass(classes, args[0]).Files(ctx)
		if err != nil {
			Fatal("failed to list files", err)
		}

		failed := 0
		for _, f := range files {
			title, err := f.Title()
			if err != nil {
				continue
			}
			path, err := f.Download(ctx, dir, func(written int64) {
				slog.Debug("downloading", "title", title, "bytes", written)
			})
			if err != nil {
				slog.Error("failed to download file", "title", title, "err", err)
				failed++
				continue
			}
			slog.Info("downloaded", "title", title, "path", path)
		}
		if failed > 0 {
			Fatal("some downloads failed", nil)
		}
	},
}
