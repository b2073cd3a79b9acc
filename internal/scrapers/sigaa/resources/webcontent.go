package resources

import (
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"time"
)

type WebContentRow struct {
	Title       string
	Description string
	Date        time.Time
	Form        postback.Form
}

func (r WebContentRow) StableId() string {
	return r.Form.Id()
}

func (r WebContentRow) Validate() error {
	err := validateForm(RESOURCE_WEB_CONTENT, "Form", r.Form)
	if err != nil {
		return err
	}
	if r.Form.Id() == "" {
		return ValidationError{Entity: string(RESOURCE_WEB_CONTENT), Field: "Form", Reason: "has no id field"}
	}
	return nil
}

type WebContent struct {
	entity[WebContentRow]
}

func NewWebContent(row WebContentRow) (*WebContent, error) {
	err := row.Validate()
	if err != nil {
		return nil, err
	}
	w := &WebContent{}
	w.init(row.StableId(), row)
	return w, nil
}

func (w *WebContent) Type() ResourceType {
	return RESOURCE_WEB_CONTENT
}

func (w *WebContent) Update(row WebContentRow) error {
	err := row.Validate()
	if err != nil {
		return err
	}
	return w.replace(RESOURCE_WEB_CONTENT, row.StableId(), row)
}

func (w *WebContent) Fields() (WebContentRow, error) {
	return w.fields()
}

func (w *WebContent) Title() (string, error) {
	row, err := w.fields()
	return row.Title, err
}

func (w *WebContent) Description() (string, error) {
	row, err := w.fields()
	return row.Description, err
}

func (w *WebContent) Date() (time.Time, error) {
	row, err := w.fields()
	return row.Date, err
}

func (w *WebContent) Form() (postback.Form, error) {
	row, err := w.fields()
	return row.Form, err
}
