package commands

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(gradesCmd)
}

var gradesCmd = &cobra.Command{
	Use:   "grades <class-id>",
	Short: "Prints the grades, absences and upcoming exams of a class.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		_, classes, db := openAccount(ctx)
		defer db.Close()
		class := findClass(classes, args[0])

		groups, err := class.Grades(ctx)
		if err != nil {
			Fatal("failed to get grades", err)
		}
		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendHeader(table.Row{"Group", "Grade", "Weight", "Value"})
		for _, g := range groups {
			if len(g.Grades) == 0 {
				t.AppendRow(table.Row{g.Name, "", "", formatGrade(g.Value)})
				continue
			}
			for _, grade := range g.Grades {
				t.AppendRow(table.Row{g.Name, grade.Name, grade.Weight, formatGrade(grade.Value)})
			}
			t.AppendRow(table.Row{g.Name, "average", "", formatGrade(g.Average)})
		}
		t.SetStyle(table.StyleRounded)
		t.Render()

		absences, err := class.Absences(ctx)
		if err != nil {
			Fatal("failed to get absences", err)
		}
		for _, a := range absences.List {
			fmt.Printf("%s  %d\n", formatDate(a.Date), a.Count)
		}
		fmt.Printf("absences: %d of at most %d\n", absences.Total, absences.Max)

		exams, err := class.Exams(ctx)
		if err != nil {
			Fatal("failed to get exams", err)
		}
		for _, exam := range exams {
			fmt.Printf("%s  %s\n", exam.Date, exam.Description)
		}
	},
}
