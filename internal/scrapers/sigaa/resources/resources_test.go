package resources

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"sigaa-scraper/internal/scrapers/sigaa/session"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testForm(id string) postback.Form {
	fields := postback.NewFields()
	fields.Set("id", id)
	fields.Set("javax.faces.ViewState", "j_id1")
	return postback.Form{
		Action: &url.URL{Scheme: "https", Host: "sigaa.example.com", Path: "/sigaa/ava/index.jsf"},
		Fields: fields,
	}
}

type response struct {
	code   int
	header http.Header
	body   io.Reader
}

type fakeOpener struct {
	responses []response
	calls     int
}

func (o *fakeOpener) Open(ctx context.Context, form postback.Form) (session.Stream, error) {
	res := o.responses[o.calls]
	o.calls++
	header := res.header
	if header == nil {
		header = http.Header{}
	}
	body := res.body
	if body == nil {
		body = strings.NewReader("")
	}
	return session.Stream{
		StatusCode: res.code,
		Header:     header,
		Url:        form.Action,
		Body:       io.NopCloser(body),
	}, nil
}

func attachment(name string) http.Header {
	header := http.Header{}
	header.Set("Content-Disposition", `attachment; filename="`+name+`"`)
	return header
}

func noRefresh(context.Context) error {
	return errors.New("unexpected refresh")
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFileLifecycle(t *testing.T) {
	opener := &fakeOpener{}
	file, err := NewFile(FileRow{Title: "Aula 1", Form: testForm("10")}, opener, noRefresh)
	require.NoError(t, err)
	require.Equal(t, "10", file.StableId())
	require.Equal(t, RESOURCE_FILE, file.Type())

	require.NoError(t, file.Update(FileRow{Title: "Aula 1 (revisada)", Form: testForm("10")}))
	title, err := file.Title()
	require.NoError(t, err)
	require.Equal(t, "Aula 1 (revisada)", title)

	var verr ValidationError
	require.ErrorAs(t, file.Update(FileRow{Form: testForm("11")}), &verr)
	require.ErrorAs(t, file.Update(FileRow{Form: testForm("")}), &verr)

	file.Invalidate()
	require.True(t, file.Invalidated())
	_, err = file.Title()
	require.ErrorIs(t, err, ErrInvalidated)
	_, err = file.Description()
	require.ErrorIs(t, err, ErrInvalidated)
	_, err = file.Download(context.Background(), t.TempDir(), nil)
	require.ErrorIs(t, err, ErrInvalidated)
	require.Equal(t, 0, opener.calls)

	_, err = NewFile(FileRow{Title: "no form"}, opener, noRefresh)
	require.ErrorAs(t, err, &verr)
}

func TestDownloadToDirectory(t *testing.T) {
	dir := t.TempDir()
	opener := &fakeOpener{responses: []response{
		{code: http.StatusOK, header: attachment("slides.pdf"), body: strings.NewReader("pdf bytes")},
	}}
	file, err := NewFile(FileRow{Title: "Slides", Form: testForm("1")}, opener, noRefresh)
	require.NoError(t, err)

	var progress []int64
	path, err := file.Download(context.Background(), dir, func(written int64) {
		progress = append(progress, written)
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "slides.pdf"), path)

	contents, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "pdf bytes", string(contents))
	require.NotEmpty(t, progress)
	require.Equal(t, int64(len("pdf bytes")), progress[len(progress)-1])
	require.Equal(t, []string{"slides.pdf"}, listDir(t, dir))
}

func TestDownloadToPath(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "custom.txt")
	opener := &fakeOpener{responses: []response{
		{code: http.StatusOK, body: strings.NewReader("hello")},
	}}
	file, err := NewFile(FileRow{Form: testForm("1")}, opener, noRefresh)
	require.NoError(t, err)

	path, err := file.Download(context.Background(), dest, nil)
	require.NoError(t, err)
	require.Equal(t, dest, path)
}

func TestDownloadWithoutFilename(t *testing.T) {
	dir := t.TempDir()
	opener := &fakeOpener{responses: []response{
		{code: http.StatusOK, body: strings.NewReader("<html>oops</html>")},
	}}
	file, err := NewFile(FileRow{Form: testForm("1")}, opener, noRefresh)
	require.NoError(t, err)

	_, err = file.Download(context.Background(), dir, nil)
	require.ErrorIs(t, err, ErrDownloadExpired)
	require.Empty(t, listDir(t, dir))
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) {
	return 0, errors.New("connection reset")
}

func TestDownloadCleansUpPartialFile(t *testing.T) {
	dir := t.TempDir()
	opener := &fakeOpener{responses: []response{
		{
			code:   http.StatusOK,
			header: attachment("big.zip"),
			body:   io.MultiReader(strings.NewReader("partial"), failingReader{}),
		},
	}}
	file, err := NewFile(FileRow{Form: testForm("1")}, opener, noRefresh)
	require.NoError(t, err)

	_, err = file.Download(context.Background(), dir, nil)
	require.Error(t, err)
	require.Empty(t, listDir(t, dir))
}

func TestDownloadRetriesOnce(t *testing.T) {
	dir := t.TempDir()
	opener := &fakeOpener{responses: []response{
		{code: http.StatusFound},
		{code: http.StatusOK, header: attachment("a.txt"), body: strings.NewReader("a")},
	}}

	var file *File
	refreshes := 0
	file, err := NewFile(FileRow{Form: testForm("1")}, opener, func(ctx context.Context) error {
		refreshes++
		return file.Update(FileRow{Title: "refreshed", Form: testForm("1")})
	})
	require.NoError(t, err)

	path, err := file.Download(context.Background(), dir, nil)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "a.txt"), path)
	require.Equal(t, 1, refreshes)
	require.Equal(t, 2, opener.calls)
}

func TestDownloadExpiredLink(t *testing.T) {
	opener := &fakeOpener{responses: []response{
		{code: http.StatusFound},
		{code: http.StatusFound},
		{code: http.StatusOK, header: attachment("never.txt")},
	}}
	refreshes := 0
	file, err := NewFile(FileRow{Form: testForm("1")}, opener, func(context.Context) error {
		refreshes++
		return nil
	})
	require.NoError(t, err)

	_, err = file.Download(context.Background(), t.TempDir(), nil)
	require.ErrorIs(t, err, ErrExpiredLink)
	require.Equal(t, 1, refreshes)
	require.Equal(t, 2, opener.calls)
}

func TestDownloadVanishesOnRefresh(t *testing.T) {
	opener := &fakeOpener{responses: []response{{code: http.StatusFound}}}

	var file *File
	file, err := NewFile(FileRow{Form: testForm("1")}, opener, func(context.Context) error {
		file.Invalidate()
		return nil
	})
	require.NoError(t, err)

	_, err = file.Download(context.Background(), t.TempDir(), nil)
	require.ErrorIs(t, err, ErrInvalidated)
	require.Equal(t, 1, opener.calls)
}

func TestDownloadUnexpectedResponse(t *testing.T) {
	opener := &fakeOpener{responses: []response{{code: http.StatusInternalServerError}}}
	file, err := NewFile(FileRow{Form: testForm("1")}, opener, noRefresh)
	require.NoError(t, err)

	_, err = file.Download(context.Background(), t.TempDir(), nil)
	var unexpected *session.UnexpectedResponseError
	require.ErrorAs(t, err, &unexpected)
	require.Equal(t, http.StatusInternalServerError, unexpected.Code)
}

func TestQuizAndHomework(t *testing.T) {
	start := time.Date(2020, 8, 3, 14, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour * 24)

	quiz, err := NewQuiz(QuizRow{Title: "Q1", Id: "5", Start: start, End: end})
	require.NoError(t, err)
	got, err := quiz.End()
	require.NoError(t, err)
	require.Equal(t, end, got)

	var verr ValidationError
	_, err = NewQuiz(QuizRow{Title: "no id"})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "Id", verr.Field)

	_, err = NewHomework(HomeworkRow{Id: "6", Start: end, End: start})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "End", verr.Field)

	homework, err := NewHomework(HomeworkRow{Id: "6", HaveGrade: true})
	require.NoError(t, err)
	homework.Invalidate()
	_, err = homework.HaveGrade()
	require.ErrorIs(t, err, ErrInvalidated)

	// showing up again revives the entity
	require.NoError(t, homework.Update(HomeworkRow{Id: "6"}))
	require.False(t, homework.Invalidated())
}

func TestNewsAndWebContent(t *testing.T) {
	date := time.Date(2020, 8, 3, 0, 0, 0, 0, time.UTC)

	news, err := NewNews(NewsRow{Title: "Aviso", Date: date, Form: testForm("3")})
	require.NoError(t, err)
	require.Equal(t, RESOURCE_NEWS, news.Type())
	got, err := news.Date()
	require.NoError(t, err)
	require.Equal(t, date, got)

	content, err := NewWebContent(WebContentRow{Title: "Página", Description: "detalhes", Form: testForm("9")})
	require.NoError(t, err)
	require.NoError(t, content.Update(WebContentRow{Title: "Página 2", Form: testForm("9")}))
	row, err := content.Fields()
	require.NoError(t, err)
	require.Equal(t, "Página 2", row.Title)
	require.Empty(t, row.Description)

	var resource Resource = content
	require.Equal(t, "9", resource.StableId())
	require.False(t, resource.Invalidated())
}
