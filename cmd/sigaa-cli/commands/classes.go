package commands

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(classesCmd)
}

var classesCmd = &cobra.Command{
	Use:   "classes",
	Short: "Lists the classes of the configured student.",
	Run: func(cmd *cobra.Command, args []string) {
		_, classes, db := openAccount(cmd.Context())
		defer db.Close()

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Id", "Period", "Abbreviation", "Title", "Schedule", "Students"})
		for _, c := range classes {
			info := c.Info()
			t.AppendRow(table.Row{info.Id, info.Period, info.Abbreviation, info.Title, info.Schedule, info.Students})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()
	},
}
