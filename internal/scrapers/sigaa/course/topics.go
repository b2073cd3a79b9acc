package course

import (
	"context"
	"net/url"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"sigaa-scraper/internal/scrapers/sigaa/reconcile"
	"sigaa-scraper/internal/scrapers/sigaa/resources"
	"sigaa-scraper/pkg/htmlutil"
	"sigaa-scraper/pkg/textutil"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type AttachmentType string

const (
	ATTACHMENT_FILE        AttachmentType = "file"
	ATTACHMENT_QUIZ        AttachmentType = "quiz"
	ATTACHMENT_HOMEWORK    AttachmentType = "homework"
	ATTACHMENT_WEB_CONTENT AttachmentType = "web-content"
	ATTACHMENT_VIDEO       AttachmentType = "video"
	ATTACHMENT_SURVEY      AttachmentType = "survey"
)

type Video struct {
	Title       string
	Description string
	Src         string
}

// Attachment is either a resource shared with the listings of the class or
// a video.
type Attachment struct {
	Type     AttachmentType
	Resource resources.Resource
	Video    *Video
}

type Topic struct {
	Title       string
	Content     string
	Start       time.Time
	End         time.Time
	Attachments []Attachment
}

type attachmentRow struct {
	kind       AttachmentType
	file       resources.FileRow
	quiz       resources.QuizRow
	homework   resources.HomeworkRow
	webContent resources.WebContentRow
	video      Video
}

type topicRow struct {
	title       string
	content     string
	start       time.Time
	end         time.Time
	attachments []attachmentRow
}

// attachmentKind discriminates attachments by the filename of their icon.
func attachmentKind(iconSrc string) AttachmentType {
	switch {
	case strings.Contains(iconSrc, "questionario.png"):
		return ATTACHMENT_QUIZ
	case strings.Contains(iconSrc, "video.png"):
		return ATTACHMENT_VIDEO
	case strings.Contains(iconSrc, "tarefa.png"):
		return ATTACHMENT_HOMEWORK
	case strings.Contains(iconSrc, "pesquisa.png"):
		return ATTACHMENT_SURVEY
	case strings.Contains(iconSrc, "conteudo.png"):
		return ATTACHMENT_WEB_CONTENT
	default:
		return ATTACHMENT_FILE
	}
}

// splitTopicTitle splits "Title (dd/mm/yyyy - dd/mm/yyyy)" into its title
// and date range, a single date is both the start and the end.
func splitTopicTitle(full string, loc *time.Location) (string, time.Time, time.Time) {
	open := strings.LastIndex(full, "(")
	closing := strings.LastIndex(full, ")")
	if open < 0 || closing < open {
		return full, time.Time{}, time.Time{}
	}
	dates := textutil.ParseDates(full[open+1:closing], loc)
	if len(dates) == 0 {
		return full, time.Time{}, time.Time{}
	}
	return strings.TrimSpace(full[:open]), dates[0], dates[len(dates)-1]
}

func parseTopics(doc *goquery.Document, base *url.URL, loc *time.Location) ([]topicRow, error) {
	var out []topicRow
	topics := doc.Find("#conteudo .topico-aula")
	for i := 0; i < topics.Length(); i++ {
		el := topics.Eq(i)

		title, start, end := splitTopicTitle(htmlutil.SelectionText(el.Find(".titulo")), loc)

		contentEl := el.Find(".conteudotopico").First()
		text := contentEl.Clone()
		text.Find("div").Remove()
		// lesson content is rich text, emphasis is part of it
		content, err := text.Html()
		if err != nil {
			return nil, err
		}

		attachments, err := parseAttachments(contentEl, doc, base, loc)
		if err != nil {
			return nil, err
		}

		out = append(out, topicRow{
			title:       title,
			content:     htmlutil.RemoveTagsKeepingEmphasis(content),
			start:       start,
			end:         end,
			attachments: attachments,
		})
	}
	return out, nil
}

func parseAttachments(contentEl *goquery.Selection, doc *goquery.Document, base *url.URL, loc *time.Location) ([]attachmentRow, error) {
	var out []attachmentRow
	items := contentEl.Find("span[id] > div.item")
	for i := 0; i < items.Length(); i++ {
		item := items.Eq(i)
		kind := attachmentKind(item.Find("img").AttrOr("src", ""))
		description := htmlutil.SelectionText(item.Find("div.descricao-item"))
		row := attachmentRow{kind: kind}

		switch kind {
		case ATTACHMENT_VIDEO:
			row.video = Video{
				Title:       htmlutil.SelectionText(item.Find("span[id] > span[id]")),
				Description: description,
				Src:         item.Find("iframe").AttrOr("src", ""),
			}
		case ATTACHMENT_QUIZ, ATTACHMENT_HOMEWORK, ATTACHMENT_SURVEY:
			link := item.Find("span > a").First()
			form, err := postback.ExtractFromSelection(link, doc, base)
			if err != nil {
				return nil, err
			}
			title := htmlutil.SelectionText(link)
			dates := textutil.ParseDates(description, loc)
			switch kind {
			case ATTACHMENT_QUIZ:
				row.quiz = resources.QuizRow{
					Title: title,
					Id:    form.Id(),
					Start: firstDate(dates),
					End:   secondDate(dates),
				}
			case ATTACHMENT_HOMEWORK:
				row.homework = resources.HomeworkRow{
					Title:       title,
					Description: description,
					Id:          form.Id(),
					Start:       firstDate(dates),
					End:         secondDate(dates),
				}
			}
		case ATTACHMENT_WEB_CONTENT, ATTACHMENT_FILE:
			titleEl := item.Find("span").First().Children().First()
			form, err := postback.ExtractFromSelection(titleEl, doc, base)
			if err != nil {
				return nil, err
			}
			title := htmlutil.SelectionText(titleEl)
			if kind == ATTACHMENT_FILE {
				row.file = resources.FileRow{Title: title, Description: description, Form: form}
			} else {
				row.webContent = resources.WebContentRow{Title: title, Description: description, Form: form}
			}
		}
		out = append(out, row)
	}
	return out, nil
}

func findHeld[E resources.Resource](held []E, id string) (E, bool) {
	for _, e := range held {
		if e.StableId() == id {
			return e, true
		}
	}
	var zero E
	return zero, false
}

// mergeAttachment adds an attachment to the held listings of the class.
// Topics show less about a resource than its listing, the fields only
// known from the listing are kept.
func (c *Class) mergeAttachment(row attachmentRow) (Attachment, error) {
	out := Attachment{Type: row.kind}
	var err error

	switch row.kind {
	case ATTACHMENT_VIDEO:
		video := row.video
		out.Video = &video
	case ATTACHMENT_FILE:
		var file *resources.File
		c.files, file, err = reconcile.Upsert(c.files, row.file, c.newFile)
		out.Resource = file
	case ATTACHMENT_QUIZ:
		if held, ok := findHeld(c.quizzes, row.quiz.Id); ok {
			if old, ferr := held.Fields(); ferr == nil {
				row.quiz.SendAnswers = old.SendAnswers
				row.quiz.ViewAnswers = old.ViewAnswers
			}
		}
		var quiz *resources.Quiz
		c.quizzes, quiz, err = reconcile.Upsert(c.quizzes, row.quiz, resources.NewQuiz)
		out.Resource = quiz
	case ATTACHMENT_HOMEWORK:
		if held, ok := findHeld(c.homeworks, row.homework.Id); ok {
			if old, ferr := held.Fields(); ferr == nil {
				row.homework.HaveGrade = old.HaveGrade
				row.homework.Send = old.Send
				row.homework.ViewSubmitted = old.ViewSubmitted
			}
		}
		var homework *resources.Homework
		c.homeworks, homework, err = reconcile.Upsert(c.homeworks, row.homework, resources.NewHomework)
		out.Resource = homework
	case ATTACHMENT_WEB_CONTENT:
		if held, ok := findHeld(c.webContents, row.webContent.StableId()); ok {
			if old, ferr := held.Fields(); ferr == nil {
				row.webContent.Date = old.Date
			}
		}
		var webContent *resources.WebContent
		c.webContents, webContent, err = reconcile.Upsert(c.webContents, row.webContent, resources.NewWebContent)
		out.Resource = webContent
	}
	return out, err
}

// Topics lists the lessons on the class page, resources attached to them
// are the same entities returned by the listings.
func (c *Class) Topics(ctx context.Context) ([]Topic, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, doc, err := c.classPage(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := parseTopics(doc, c.client.BaseUrl(), c.client.Location())
	if err != nil {
		c.tel.ReportBroken(report_class_topics, err, c.info.Id)
		return nil, err
	}

	topics := make([]Topic, 0, len(rows))
	for _, row := range rows {
		topic := Topic{
			Title:   row.title,
			Content: row.content,
			Start:   row.start,
			End:     row.end,
		}
		for _, a := range row.attachments {
			if a.kind == ATTACHMENT_SURVEY {
				c.tel.ReportDebug(report_class_topics, "skipped survey", row.title)
				continue
			}
			attachment, err := c.mergeAttachment(a)
			if err != nil {
				c.tel.ReportBroken(report_class_topics, err, row.title)
				return nil, err
			}
			topic.Attachments = append(topic.Attachments, attachment)
		}
		topics = append(topics, topic)
	}
	return topics, nil
}
