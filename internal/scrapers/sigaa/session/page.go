package session

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"sigaa-scraper/internal/scrapers/sigaa/postback"

	"github.com/PuerkitoBio/goquery"
)

// Page is a completed response, its fields must not be mutated as pages are
// shared through the cache.
type Page struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// Url is the url that was requested.
	Url *url.URL
	// ViewState is the view state the page was rendered with, empty if the
	// page is not a stateful view.
	ViewState string
	// PostValues are the fields that were posted to produce the page, nil
	// for GET requests.
	PostValues *postback.Fields
}

// Location returns the redirect target of the page, it is empty if the page
// is not a redirect.
func (p Page) Location() string {
	return p.Header.Get("Location")
}

func (p Page) Document() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(bytes.NewBuffer(p.Body))
}

func viewStateOf(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(body))
	if err != nil {
		return ""
	}
	return doc.Find("input[name='javax.faces.ViewState']").First().AttrOr("value", "")
}

// Stream is a response whose body has not been read, the caller owns Body
// and must close it.
type Stream struct {
	StatusCode int
	Header     http.Header
	Url        *url.URL
	Body       io.ReadCloser
}

func (s Stream) Location() string {
	return s.Header.Get("Location")
}
