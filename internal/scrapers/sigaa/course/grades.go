package course

import (
	"context"
	"fmt"
	"regexp"
	"sigaa-scraper/pkg/htmlutil"
	"sigaa-scraper/pkg/textutil"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type Grade struct {
	Name         string
	Abbreviation string
	Weight       string
	// Value is nil when the grade was not released yet.
	Value *float64
}

// GradeGroup is a column of the grade table, either a single value or a
// group of grades with an average.
type GradeGroup struct {
	Name    string
	Value   *float64
	Grades  []Grade
	Average *float64
}

var ignoredGradeColumns = map[string]bool{
	"":          true,
	"Matrícula": true,
	"Nome":      true,
	"Sit.":      true,
	"Faltas":    true,
}

func parseGradeValue(text string) *float64 {
	value, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(text), ",", "."), 64)
	if err != nil {
		return nil
	}
	return &value
}

func colspan(sel *goquery.Selection) int {
	n, err := strconv.Atoi(sel.AttrOr("colspan", "1"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func parseGrades(doc *goquery.Document) []GradeGroup {
	headerRows := doc.Find("thead tr")
	if headerRows.Length() == 0 {
		return nil
	}
	groups := headerRows.Eq(0).Find("th")
	details := headerRows.Eq(1).Find("th")
	values := doc.Find("tbody tr").First().Children()

	var out []GradeGroup
	position := 0
	for i := 0; i < groups.Length(); i++ {
		header := groups.Eq(i)
		span := colspan(header)
		index := position
		position += span

		name := htmlutil.SelectionText(header)
		if ignoredGradeColumns[name] {
			continue
		}

		group := GradeGroup{Name: name}
		if span == 1 {
			group.Value = parseGradeValue(htmlutil.SelectionText(values.Eq(index)))
			out = append(out, group)
			continue
		}

		for j := index; j < index+span; j++ {
			value := parseGradeValue(htmlutil.SelectionText(values.Eq(j)))
			gradeId := strings.TrimPrefix(details.Eq(j).AttrOr("id", ""), "aval_")
			if gradeId == "" {
				group.Average = value
				continue
			}
			group.Grades = append(group.Grades, Grade{
				Name:         doc.Find("input#denAval_" + gradeId).AttrOr("value", ""),
				Abbreviation: doc.Find("input#abrevAval_" + gradeId).AttrOr("value", ""),
				Weight:       doc.Find("input#pesoAval_" + gradeId).AttrOr("value", ""),
				Value:        value,
			})
		}
		out = append(out, group)
	}
	return out
}

// Grades returns the grade table of the class.
func (c *Class) Grades(ctx context.Context) ([]GradeGroup, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, doc, err := c.clickSidebar(ctx, label_grades)
	if err != nil {
		return nil, err
	}
	grades := parseGrades(doc)
	if grades == nil {
		c.tel.ReportWarning(report_class_grades, "no grade table", c.info.Id)
	}
	return grades, nil
}

type Absence struct {
	Date  time.Time
	Label string
	Count int
}

type Absences struct {
	List  []Absence
	Total int
	Max   int
}

var digitsRegex = regexp.MustCompile(`\D`)

func parseDigits(text string) (int, error) {
	return strconv.Atoi(digitsRegex.ReplaceAllString(text, ""))
}

func parseAbsences(doc *goquery.Document, loc *time.Location) (Absences, error) {
	var out Absences

	rows := doc.Find(".listing").First().Find("tr[class]")
	for i := 0; i < rows.Length(); i++ {
		cells := rows.Eq(i).Children()
		label := htmlutil.SelectionText(cells.Eq(0))
		text := htmlutil.SelectionText(cells.Eq(1))

		var count int
		switch text {
		case "":
			continue
		case "Presente":
			count = 0
		default:
			n, err := parseDigits(text)
			if err != nil {
				return Absences{}, fmt.Errorf("absence count '%s': %w", text, err)
			}
			count = n
		}
		out.List = append(out.List, Absence{
			Date:  firstDate(textutil.ParseDates(label, loc)),
			Label: label,
			Count: count,
		})
	}

	for _, line := range strings.Split(htmlutil.SelectionText(doc.Find(".botoes-show")), "\n") {
		var target *int
		switch {
		case strings.Contains(line, "Total de Faltas"):
			target = &out.Total
		case strings.Contains(line, "Máximo de Faltas Permitido"):
			target = &out.Max
		default:
			continue
		}
		n, err := parseDigits(line)
		if err != nil {
			return Absences{}, fmt.Errorf("absence summary '%s': %w", line, err)
		}
		*target = n
	}

	return out, nil
}

// Absences returns the attendance record of the class.
func (c *Class) Absences(ctx context.Context) (Absences, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, doc, err := c.clickSidebar(ctx, label_absences)
	if err != nil {
		return Absences{}, err
	}
	absences, err := parseAbsences(doc, c.client.Location())
	if err != nil {
		c.tel.ReportBroken(report_class_absences, err, c.info.Id)
		return Absences{}, err
	}
	return absences, nil
}

type Exam struct {
	Description string
	Date        string
}

// parseExams reads the "Avaliações" card of the right sidebar, a missing
// card means there are no exams.
func parseExams(doc *goquery.Document) []Exam {
	var card *goquery.Selection
	doc.Find(".rich-stglpanel-header.headerBloco").EachWithBreak(func(_ int, header *goquery.Selection) bool {
		if textutil.NormalizeName(htmlutil.SelectionText(header)) == textutil.NormalizeName("Avaliações") {
			card = header.Parent().Parent()
			return false
		}
		return true
	})
	if card == nil {
		return nil
	}

	var out []Exam
	items := card.Find("li")
	for i := 0; i < items.Length(); i++ {
		out = append(out, Exam{
			Description: htmlutil.SelectionText(items.Eq(i).Find("span.descricao")),
			Date:        htmlutil.SelectionText(items.Eq(i).Find("span.data")),
		})
	}
	return out
}

// Exams returns the exam calendar shown on the class page.
func (c *Class) Exams(ctx context.Context) ([]Exam, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, doc, err := c.classPage(ctx)
	if err != nil {
		return nil, err
	}
	exams := parseExams(doc)
	if exams == nil {
		c.tel.ReportDebug(report_class_exams, "no exam card", c.info.Id)
	}
	return exams, nil
}
