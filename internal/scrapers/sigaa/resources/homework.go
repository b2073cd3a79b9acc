package resources

import (
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"time"
)

type HomeworkRow struct {
	Title       string
	Description string
	Id          string
	Start       time.Time
	End         time.Time
	HaveGrade   bool
	// Send is nil outside of the submission period.
	Send *postback.Form
	// ViewSubmitted is nil until something was submitted.
	ViewSubmitted *postback.Form
}

func (r HomeworkRow) StableId() string {
	return r.Id
}

func (r HomeworkRow) Validate() error {
	if r.Id == "" {
		return ValidationError{Entity: string(RESOURCE_HOMEWORK), Field: "Id", Reason: "is required"}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return ValidationError{Entity: string(RESOURCE_HOMEWORK), Field: "End", Reason: "is before Start"}
	}
	err := validateOptionalForm(RESOURCE_HOMEWORK, "Send", r.Send)
	if err != nil {
		return err
	}
	return validateOptionalForm(RESOURCE_HOMEWORK, "ViewSubmitted", r.ViewSubmitted)
}

type Homework struct {
	entity[HomeworkRow]
}

func NewHomework(row HomeworkRow) (*Homework, error) {
	err := row.Validate()
	if err != nil {
		return nil, err
	}
	h := &Homework{}
	h.init(row.StableId(), row)
	return h, nil
}

func (h *Homework) Type() ResourceType {
	return RESOURCE_HOMEWORK
}

func (h *Homework) Update(row HomeworkRow) error {
	err := row.Validate()
	if err != nil {
		return err
	}
	return h.replace(RESOURCE_HOMEWORK, row.StableId(), row)
}

func (h *Homework) Fields() (HomeworkRow, error) {
	return h.fields()
}

func (h *Homework) Title() (string, error) {
	row, err := h.fields()
	return row.Title, err
}

func (h *Homework) Description() (string, error) {
	row, err := h.fields()
	return row.Description, err
}

func (h *Homework) Start() (time.Time, error) {
	row, err := h.fields()
	return row.Start, err
}

func (h *Homework) End() (time.Time, error) {
	row, err := h.fields()
	return row.End, err
}

func (h *Homework) HaveGrade() (bool, error) {
	row, err := h.fields()
	return row.HaveGrade, err
}
