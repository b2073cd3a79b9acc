package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(filesCmd)
}

var filesCmd = &cobra.Command{
	Use:   "files <class-id>",
	Short: "Lists the files of a class.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		_, classes, db := openAccount(cmd.Context())
		defer db.Close()

		files, err := findClass(classes, args[0]).Files(cmd.Context())
		if err != nil {
			Fatal("failed to list files", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Id", "Title", "Description"})
		for _, f := range files {
			row, err := f.Fields()
			if err != nil {
				continue
			}
			t.AppendRow(table.Row{f.StableId(), row.Title, row.Description})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
