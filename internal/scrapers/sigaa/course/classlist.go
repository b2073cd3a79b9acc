package course

import (
	"fmt"
	"net/url"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"sigaa-scraper/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// ParseClassList parses the class list of the student portal, rows are
// grouped under a row naming their period (ex. 2020.1).
func ParseClassList(doc *goquery.Document, base *url.URL) ([]ClassInfo, error) {
	var out []ClassInfo
	var period string
	var err error

	doc.Find(".listagem tbody > tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		cells := row.Find("td")
		if cells.First().HasClass("periodo") {
			period = htmlutil.SelectionText(cells.First())
			return true
		}
		link := cells.Eq(5).Find("a[onclick]").First()
		if link.Length() == 0 {
			return true
		}

		var form postback.Form
		form, err = postback.ExtractFromSelection(link, doc, base)
		if err != nil {
			err = fmt.Errorf("class list: %w", err)
			return false
		}
		id := form.Fields.Get("idTurma")
		if id == "" {
			err = fmt.Errorf("class list: form without idTurma")
			return false
		}

		abbreviation, title := splitClassName(htmlutil.SelectionText(cells.First()))
		out = append(out, ClassInfo{
			Id:           id,
			Title:        title,
			Abbreviation: abbreviation,
			Period:       period,
			Students:     htmlutil.SelectionText(cells.Eq(2)),
			Schedule:     htmlutil.SelectionText(cells.Eq(4)),
			Form:         form,
		})
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
