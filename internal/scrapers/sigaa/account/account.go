// Package account logs into the portal and discovers the classes of the
// logged in student.
package account

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sigaa-scraper/internal/components/assert"
	"sigaa-scraper/internal/components/telemetry"
	"sigaa-scraper/internal/scrapers/sigaa/course"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"sigaa-scraper/internal/scrapers/sigaa/session"

	"github.com/PuerkitoBio/goquery"
)

const (
	report_account_login   = "account.login"
	report_account_logoff  = "account.logoff"
	report_account_classes = "account.classes"
)

const (
	loginEndpoint   = "/sigaa/verTelaLogin.do"
	logoffEndpoint  = "/sigaa/logar.do?dispatch=logOff"
	classesEndpoint = "/sigaa/portais/discente/turmas.jsf"

	usernameField = "user.login"
	passwordField = "user.senha"
)

var (
	ErrWrongCredentials = errors.New("wrong username or password")
	ErrNotLoggedIn      = errors.New("portal did not hand out a session")
	ErrNoCredentials    = errors.New("username and password are required")
)

// Account is a logged in session.
type Account struct {
	client *session.Client
	tel    telemetry.API
}

// Resume wraps a session that may already be logged in (ex. restored from a
// snapshot), its requests fail with session.ErrSessionExpired if it is not.
func Resume(client *session.Client, tel telemetry.API) *Account {
	assert.NotNil(client)
	assert.NotNil(tel)

	return &Account{
		client: client,
		tel:    telemetry.NewScopedAPI("sigaa_account", tel),
	}
}

func findLoginForm(doc *goquery.Document) *goquery.Selection {
	form := doc.Find("form[name='loginForm']").First()
	if form.Length() > 0 {
		return form
	}
	return doc.Find("input[type='password']").First().Closest("form")
}

// Login logs into the portal with the session of client.
func Login(ctx context.Context, client *session.Client, username, password string, tel telemetry.API) (*Account, error) {
	a := Resume(client, tel)

	if username == "" || password == "" {
		return nil, fmt.Errorf("login: %w", ErrNoCredentials)
	}

	page, err := client.GetChecked(ctx, loginEndpoint, session.NoCache())
	if err != nil {
		a.tel.ReportBroken(report_account_login, fmt.Errorf("fetch login page: %w", err))
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		a.tel.ReportBroken(report_account_login, fmt.Errorf("parse login page: %w", err))
		return nil, err
	}

	formEl := findLoginForm(doc)
	if formEl.Length() == 0 {
		err := fmt.Errorf("login: %w: no login form", postback.ErrFormNotFound)
		a.tel.ReportBroken(report_account_login, err)
		return nil, err
	}
	form, err := postback.FromForm(formEl, client.BaseUrl())
	if err != nil {
		a.tel.ReportBroken(report_account_login, err)
		return nil, err
	}
	form.Fields.Set(usernameField, username)
	form.Fields.Set(passwordField, password)

	res, err := client.Submit(ctx, form, session.NoCache())
	if err != nil {
		a.tel.ReportBroken(report_account_login, fmt.Errorf("submit credentials: %w", err))
		return nil, err
	}
	if bytes.Contains(res.Body, []byte("inválidos")) {
		return nil, ErrWrongCredentials
	}

	res, err = client.FollowRedirects(ctx, res)
	if err != nil {
		return nil, err
	}
	err = client.Check(res)
	if err != nil {
		a.tel.ReportBroken(report_account_login, fmt.Errorf("landing page: %w", err))
		return nil, err
	}
	if bytes.Contains(res.Body, []byte("inválidos")) {
		return nil, ErrWrongCredentials
	}

	if !client.Authenticated() {
		a.tel.ReportBroken(report_account_login, ErrNotLoggedIn)
		return nil, ErrNotLoggedIn
	}
	return a, nil
}

func (a *Account) Client() *session.Client {
	return a.client
}

// Classes lists the classes of the student.
func (a *Account) Classes(ctx context.Context) ([]*course.Class, error) {
	page, err := a.client.GetChecked(ctx, classesEndpoint)
	if err != nil {
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		a.tel.ReportBroken(report_account_classes, fmt.Errorf("parse: %w", err))
		return nil, err
	}

	infos, err := course.ParseClassList(doc, a.client.BaseUrl())
	if err != nil {
		a.tel.ReportBroken(report_account_classes, err)
		return nil, err
	}

	out := make([]*course.Class, 0, len(infos))
	for _, info := range infos {
		class, err := course.NewClass(a.client, info, a.tel)
		if err != nil {
			a.tel.ReportBroken(report_account_classes, err, info.Id)
			return nil, err
		}
		out = append(out, class)
	}
	a.tel.ReportCount(report_account_classes, int64(len(out)))
	return out, nil
}

// Logoff ends the session on the portal, the local session is torn down
// even if the portal could not be reached.
func (a *Account) Logoff(ctx context.Context) error {
	defer a.client.Close()

	page, err := a.client.Get(ctx, logoffEndpoint, session.NoCache())
	if err != nil {
		a.tel.ReportWarning(report_account_logoff, err)
		return err
	}
	_, err = a.client.FollowRedirects(ctx, page)
	if err != nil {
		a.tel.ReportWarning(report_account_logoff, err)
		return err
	}
	return nil
}
