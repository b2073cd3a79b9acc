package resources

import (
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"time"
)

type QuizRow struct {
	Title string
	Id    string
	Start time.Time
	End   time.Time
	// SendAnswers is nil once the answers were sent or the quiz closed.
	SendAnswers *postback.Form
	// ViewAnswers is nil until answers were sent.
	ViewAnswers *postback.Form
}

func (r QuizRow) StableId() string {
	return r.Id
}

func (r QuizRow) Validate() error {
	if r.Id == "" {
		return ValidationError{Entity: string(RESOURCE_QUIZ), Field: "Id", Reason: "is required"}
	}
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return ValidationError{Entity: string(RESOURCE_QUIZ), Field: "End", Reason: "is before Start"}
	}
	err := validateOptionalForm(RESOURCE_QUIZ, "SendAnswers", r.SendAnswers)
	if err != nil {
		return err
	}
	return validateOptionalForm(RESOURCE_QUIZ, "ViewAnswers", r.ViewAnswers)
}

type Quiz struct {
	entity[QuizRow]
}

func NewQuiz(row QuizRow) (*Quiz, error) {
	err := row.Validate()
	if err != nil {
		return nil, err
	}
	q := &Quiz{}
	q.init(row.StableId(), row)
	return q, nil
}

func (q *Quiz) Type() ResourceType {
	return RESOURCE_QUIZ
}

func (q *Quiz) Update(row QuizRow) error {
	err := row.Validate()
	if err != nil {
		return err
	}
	return q.replace(RESOURCE_QUIZ, row.StableId(), row)
}

func (q *Quiz) Fields() (QuizRow, error) {
	return q.fields()
}

func (q *Quiz) Title() (string, error) {
	row, err := q.fields()
	return row.Title, err
}

func (q *Quiz) Start() (time.Time, error) {
	row, err := q.fields()
	return row.Start, err
}

func (q *Quiz) End() (time.Time, error) {
	row, err := q.fields()
	return row.End, err
}
