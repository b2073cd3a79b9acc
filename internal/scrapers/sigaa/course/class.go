package course

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sigaa-scraper/internal/components/assert"
	"sigaa-scraper/internal/components/telemetry"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"sigaa-scraper/internal/scrapers/sigaa/resources"
	"sigaa-scraper/internal/scrapers/sigaa/session"
	"sigaa-scraper/pkg/htmlutil"
	"sigaa-scraper/pkg/textutil"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_class_page          = "class.page"
	report_class_refresh_form  = "class.refresh-form"
	report_class_click_sidebar = "class.click-sidebar"
	report_class_listing       = "class.listing"
	report_class_topics        = "class.topics"
	report_class_grades        = "class.grades"
	report_class_absences      = "class.absences"
	report_class_exams         = "class.exams"
)

const (
	label_files        = "Arquivos"
	label_news         = "Notícias"
	label_quizzes      = "Questionários"
	label_homeworks    = "Tarefas"
	label_web_contents = "Conteúdo/Página web"
	label_absences     = "Frequência"
	label_grades       = "Ver Notas"

	minLabelSimilarity = 0.9

	classesEndpoint = "/sigaa/portais/discente/turmas.jsf"
)

var (
	// ErrInvalidClass is returned when the portal does not recognize the
	// class the session asked for.
	ErrInvalidClass     = errors.New("invalid class")
	ErrClassNotFound    = errors.New("class not found")
	ErrMenuItemNotFound = errors.New("menu item not found")
)

type ClassInfo struct {
	Id           string
	Title        string
	Abbreviation string
	Period       string
	Schedule     string
	Location     string
	Students     string
	// Form opens the class page.
	Form postback.Form
}

func (i ClassInfo) validate() error {
	if i.Id == "" {
		return fmt.Errorf("class info: missing id")
	}
	if i.Form.Action == nil || i.Form.Fields == nil {
		return fmt.Errorf("class info '%s': missing form", i.Id)
	}
	return nil
}

// Class is a class of the logged in user. Listings are reconciled against
// the entities returned by previous calls, so entities stay the same across
// calls for as long as they are listed.
type Class struct {
	client *session.Client
	tel    telemetry.API

	// mutex is held for the duration of every operation on the class page,
	// the sidebar postbacks depend on the view state of the class page.
	mutex sync.Mutex
	info  ClassInfo

	files       []*resources.File
	news        []*resources.News
	quizzes     []*resources.Quiz
	homeworks   []*resources.Homework
	webContents []*resources.WebContent
}

func NewClass(client *session.Client, info ClassInfo, tel telemetry.API) (*Class, error) {
	assert.NotNil(client)
	assert.NotNil(tel)

	err := info.validate()
	if err != nil {
		return nil, err
	}

	return &Class{
		client: client,
		tel:    telemetry.NewScopedAPI("sigaa_course", tel),
		info:   info,
	}, nil
}

func (c *Class) Info() ClassInfo {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.info
}

func (c *Class) Id() string {
	return c.Info().Id
}

func (c *Class) submitClassForm(ctx context.Context, opts ...session.RequestOption) (session.Page, *goquery.Document, error) {
	page, err := c.client.SubmitChecked(ctx, c.info.Form, opts...)
	if err != nil {
		return session.Page{}, nil, err
	}
	if bytes.Contains(page.Body, []byte("Comportamento Inesperado!")) {
		return session.Page{}, nil, fmt.Errorf("%w: '%s'", ErrInvalidClass, c.info.Id)
	}
	doc, err := page.Document()
	if err != nil {
		c.tel.ReportBroken(report_class_page, fmt.Errorf("parse: %w", err), c.info.Id)
		return session.Page{}, nil, err
	}
	return page, doc, nil
}

// classPage opens the class page with the form the class was found with.
// The form goes stale with its view state, when that happens the form is
// found again on the class list.
func (c *Class) classPage(ctx context.Context, opts ...session.RequestOption) (session.Page, *goquery.Document, error) {
	page, doc, err := c.submitClassForm(ctx, opts...)
	if err == nil {
		return page, doc, nil
	}
	var unexpected *session.UnexpectedResponseError
	if !errors.Is(err, ErrInvalidClass) && !errors.As(err, &unexpected) {
		return session.Page{}, nil, err
	}

	c.tel.ReportDebug(report_class_page, "stale class form", c.info.Id, err)
	rerr := c.refreshForm(ctx)
	if errors.Is(rerr, ErrClassNotFound) {
		return session.Page{}, nil, err
	}
	if rerr != nil {
		return session.Page{}, nil, rerr
	}
	return c.submitClassForm(ctx, opts...)
}

func (c *Class) refreshForm(ctx context.Context) error {
	page, err := c.client.GetChecked(ctx, classesEndpoint, session.NoCache())
	if err != nil {
		return err
	}
	doc, err := page.Document()
	if err != nil {
		c.tel.ReportBroken(report_class_refresh_form, fmt.Errorf("parse: %w", err))
		return err
	}

	infos, err := ParseClassList(doc, c.client.BaseUrl())
	if err != nil {
		c.tel.ReportBroken(report_class_refresh_form, err)
		return err
	}
	for _, info := range infos {
		if info.Id == c.info.Id {
			c.info.Form = info.Form
			c.info.Title = info.Title
			c.info.Abbreviation = info.Abbreviation
			c.info.Schedule = info.Schedule
			c.info.Students = info.Students
			c.info.Period = info.Period
			return nil
		}
	}
	return fmt.Errorf("%w: '%s'", ErrClassNotFound, c.info.Id)
}

// clickSidebar submits the postback of the sidebar item labelled label.
// Labels are compared after normalization, when none is equal the closest
// one is used as long as it is similar enough. opts apply to both the class
// page and the item postback.
func (c *Class) clickSidebar(ctx context.Context, label string, opts ...session.RequestOption) (session.Page, *goquery.Document, error) {
	_, doc, err := c.classPage(ctx, opts...)
	if err != nil {
		return session.Page{}, nil, err
	}

	items := doc.Find("div.itemMenu")
	labels := make([]string, items.Length())
	items.Each(func(i int, item *goquery.Selection) {
		labels[i] = htmlutil.SelectionText(item)
	})

	idx, similarity := textutil.ClosestMatch(label, labels)
	if idx < 0 || similarity < minLabelSimilarity {
		c.tel.ReportWarning(report_class_click_sidebar, "no such item", label, labels)
		return session.Page{}, nil, fmt.Errorf("%w: '%s'", ErrMenuItemNotFound, label)
	}
	if similarity < 1 {
		c.tel.ReportDebug(report_class_click_sidebar, "approximate label", label, labels[idx], similarity)
	}

	form, err := postback.ExtractFromSelection(items.Eq(idx).Parent(), doc, c.client.BaseUrl())
	if err != nil {
		c.tel.ReportBroken(report_class_click_sidebar, err, label)
		return session.Page{}, nil, err
	}
	res, err := c.client.SubmitChecked(ctx, form, opts...)
	if err != nil {
		return session.Page{}, nil, err
	}
	resDoc, err := res.Document()
	if err != nil {
		c.tel.ReportBroken(report_class_click_sidebar, fmt.Errorf("parse: %w", err), label)
		return session.Page{}, nil, err
	}
	return res, resDoc, nil
}

// splitClassName splits "ABBR - Title" into its parts.
func splitClassName(full string) (abbreviation, title string) {
	idx := strings.Index(full, " - ")
	if idx < 0 {
		return "", full
	}
	return full[:idx], full[idx+3:]
}
