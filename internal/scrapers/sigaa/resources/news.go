package resources

import (
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"time"
)

type NewsRow struct {
	Title string
	Date  time.Time
	Form  postback.Form
}

func (r NewsRow) StableId() string {
	return r.Form.Id()
}

func (r NewsRow) Validate() error {
	err := validateForm(RESOURCE_NEWS, "Form", r.Form)
	if err != nil {
		return err
	}
	if r.Form.Id() == "" {
		return ValidationError{Entity: string(RESOURCE_NEWS), Field: "Form", Reason: "has no id field"}
	}
	return nil
}

type News struct {
	entity[NewsRow]
}

func NewNews(row NewsRow) (*News, error) {
	err := row.Validate()
	if err != nil {
		return nil, err
	}
	n := &News{}
	n.init(row.StableId(), row)
	return n, nil
}

func (n *News) Type() ResourceType {
	return RESOURCE_NEWS
}

func (n *News) Update(row NewsRow) error {
	err := row.Validate()
	if err != nil {
		return err
	}
	return n.replace(RESOURCE_NEWS, row.StableId(), row)
}

func (n *News) Fields() (NewsRow, error) {
	return n.fields()
}

func (n *News) Title() (string, error) {
	row, err := n.fields()
	return row.Title, err
}

func (n *News) Date() (time.Time, error) {
	row, err := n.fields()
	return row.Date, err
}

func (n *News) Form() (postback.Form, error) {
	row, err := n.fields()
	return row.Form, err
}
