package course

import (
	"context"
	"net/url"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"sigaa-scraper/internal/scrapers/sigaa/reconcile"
	"sigaa-scraper/internal/scrapers/sigaa/resources"
	"sigaa-scraper/internal/scrapers/sigaa/session"
	"sigaa-scraper/pkg/htmlutil"
	"sigaa-scraper/pkg/textutil"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// listing clicks the sidebar item of a listing and reconciles the rows of
// its table with held. The class mutex must be held.
func listing[E reconcile.Entity[R], R reconcile.Row](
	ctx context.Context,
	c *Class,
	label string,
	held *[]E,
	parse func(rows *goquery.Selection, doc *goquery.Document, base *url.URL, loc *time.Location) ([]R, error),
	construct func(R) (E, error),
	opts ...session.RequestOption,
) ([]E, error) {
	_, doc, err := c.clickSidebar(ctx, label, opts...)
	if err != nil {
		return nil, err
	}

	table := doc.Find(".listing").First()
	if table.Length() == 0 {
		c.tel.ReportDebug(report_class_listing, "no listing table", label)
	}
	rows, err := parse(table.Find("tr[class]"), doc, c.client.BaseUrl(), c.client.Location())
	if err != nil {
		c.tel.ReportBroken(report_class_listing, err, label)
		return nil, err
	}

	updated, err := reconcile.Reconcile(*held, rows, construct)
	if err != nil {
		c.tel.ReportBroken(report_class_listing, err, label)
		return nil, err
	}
	*held = updated

	out := make([]E, len(updated))
	copy(out, updated)
	return out, nil
}

func (c *Class) newFile(row resources.FileRow) (*resources.File, error) {
	return resources.NewFile(row, c.client, c.refreshFiles)
}

// refreshFiles scrapes the file listing from the network, a cached listing
// would hand out the download forms that were already used.
func (c *Class) refreshFiles(ctx context.Context) error {
	_, err := c.listFiles(ctx, session.NoCache())
	return err
}

func (c *Class) listFiles(ctx context.Context, opts ...session.RequestOption) ([]*resources.File, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return listing(ctx, c, label_files, &c.files, parseFiles, c.newFile, opts...)
}

// Files lists the files of the class.
func (c *Class) Files(ctx context.Context) ([]*resources.File, error) {
	return c.listFiles(ctx)
}

func (c *Class) News(ctx context.Context) ([]*resources.News, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return listing(ctx, c, label_news, &c.news, parseNews, resources.NewNews)
}

func (c *Class) Quizzes(ctx context.Context) ([]*resources.Quiz, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return listing(ctx, c, label_quizzes, &c.quizzes, parseQuizzes, resources.NewQuiz)
}

func (c *Class) Homeworks(ctx context.Context) ([]*resources.Homework, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return listing(ctx, c, label_homeworks, &c.homeworks, parseHomeworks, resources.NewHomework)
}

func (c *Class) WebContents(ctx context.Context) ([]*resources.WebContent, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return listing(ctx, c, label_web_contents, &c.webContents, parseWebContents, resources.NewWebContent)
}

// optionalForm extracts the form of the first link with an onclick in sel,
// it returns nil if there is none.
func optionalForm(sel *goquery.Selection, doc *goquery.Document, base *url.URL) (*postback.Form, error) {
	link := sel.Find("a[onclick]").First()
	if link.Length() == 0 {
		return nil, nil
	}
	form, err := postback.ExtractFromSelection(link, doc, base)
	if err != nil {
		return nil, err
	}
	return &form, nil
}

func firstDate(dates []time.Time) time.Time {
	if len(dates) == 0 {
		return time.Time{}
	}
	return dates[0]
}

func secondDate(dates []time.Time) time.Time {
	if len(dates) < 2 {
		return time.Time{}
	}
	return dates[1]
}

func parseFiles(rows *goquery.Selection, doc *goquery.Document, base *url.URL, _ *time.Location) ([]resources.FileRow, error) {
	var out []resources.FileRow
	for i := 0; i < rows.Length(); i++ {
		cells := rows.Eq(i).Children()

		form, err := postback.ExtractFromSelection(cells.Eq(3).Find("a[onclick]").First(), doc, base)
		if err != nil {
			return nil, err
		}
		out = append(out, resources.FileRow{
			Title:       htmlutil.SelectionText(cells.Eq(0)),
			Description: htmlutil.SelectionText(cells.Eq(1)),
			Form:        form,
		})
	}
	return out, nil
}

func parseNews(rows *goquery.Selection, doc *goquery.Document, base *url.URL, loc *time.Location) ([]resources.NewsRow, error) {
	var out []resources.NewsRow
	for i := 0; i < rows.Length(); i++ {
		cells := rows.Eq(i).Children()

		form, err := postback.ExtractFromSelection(cells.Eq(2).Children().First(), doc, base)
		if err != nil {
			return nil, err
		}
		out = append(out, resources.NewsRow{
			Title: htmlutil.SelectionText(cells.Eq(0)),
			Date:  firstDate(textutil.ParseDates(htmlutil.SelectionText(cells.Eq(1)), loc)),
			Form:  form,
		})
	}
	return out, nil
}

func parseQuizzes(rows *goquery.Selection, doc *goquery.Document, base *url.URL, loc *time.Location) ([]resources.QuizRow, error) {
	var out []resources.QuizRow
	for i := 0; i < rows.Length(); i++ {
		cells := rows.Eq(i).Find("td")

		send, err := optionalForm(cells.Eq(3), doc, base)
		if err != nil {
			return nil, err
		}
		view, err := optionalForm(cells.Eq(4), doc, base)
		if err != nil {
			return nil, err
		}
		var id string
		switch {
		case send != nil:
			id = send.Id()
		case view != nil:
			id = view.Id()
		}

		dates := textutil.ParseDates(
			htmlutil.SelectionText(cells.Eq(1))+" "+htmlutil.SelectionText(cells.Eq(2)),
			loc,
		)
		out = append(out, resources.QuizRow{
			Title:       htmlutil.SelectionText(cells.Eq(0)),
			Id:          id,
			Start:       firstDate(dates),
			End:         secondDate(dates),
			SendAnswers: send,
			ViewAnswers: view,
		})
	}
	return out, nil
}

// parseHomeworks reads rows in pairs, the second row of a pair contains the
// description of the homework.
func parseHomeworks(rows *goquery.Selection, doc *goquery.Document, base *url.URL, loc *time.Location) ([]resources.HomeworkRow, error) {
	var out []resources.HomeworkRow
	for i := 0; i < rows.Length(); i += 2 {
		cells := rows.Eq(i).Find("td")

		send, err := optionalForm(cells.Eq(5), doc, base)
		if err != nil {
			return nil, err
		}
		view, err := optionalForm(cells.Eq(6), doc, base)
		if err != nil {
			return nil, err
		}
		var id string
		switch {
		case send != nil:
			id = send.Id()
		case view != nil:
			id = view.Id()
		}

		dates := textutil.ParseDates(htmlutil.SelectionText(cells.Eq(2)), loc)
		out = append(out, resources.HomeworkRow{
			Title:         htmlutil.SelectionText(cells.Eq(1)),
			Description:   htmlutil.SelectionText(rows.Eq(i + 1).Find("td")),
			Id:            id,
			Start:         firstDate(dates),
			End:           secondDate(dates),
			HaveGrade:     htmlutil.SelectionText(cells.Eq(3)) != "Não",
			Send:          send,
			ViewSubmitted: view,
		})
	}
	return out, nil
}

func parseWebContents(rows *goquery.Selection, doc *goquery.Document, base *url.URL, loc *time.Location) ([]resources.WebContentRow, error) {
	var out []resources.WebContentRow
	for i := 0; i < rows.Length(); i++ {
		cells := rows.Eq(i).Find("td")

		form, err := postback.ExtractFromSelection(cells.Eq(2).Find("a[onclick]").First(), doc, base)
		if err != nil {
			return nil, err
		}
		out = append(out, resources.WebContentRow{
			Title: htmlutil.SelectionText(cells.Eq(0)),
			Date:  firstDate(textutil.ParseDates(htmlutil.SelectionText(cells.Eq(1)), loc)),
			Form:  form,
		})
	}
	return out, nil
}
