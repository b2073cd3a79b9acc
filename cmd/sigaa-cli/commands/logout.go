package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(logoutCmd)
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Ends the saved session of the configured student.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		acc, _, db := openAccount(ctx)
		defer db.Close()

		err := acc.Logoff(ctx)
		if err != nil {
			slog.Warn("portal did not acknowledge logoff", "err", err)
		}
		err = db.Delete(ctx, config.Username)
		if err != nil {
			Fatal("failed to delete saved session", err)
		}
	},
}
