package resources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"sigaa-scraper/internal/components/assert"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"sigaa-scraper/internal/scrapers/sigaa/session"

	"github.com/google/uuid"
)

type FileRow struct {
	Title       string
	Description string
	Form        postback.Form
}

func (r FileRow) StableId() string {
	return r.Form.Id()
}

func (r FileRow) Validate() error {
	err := validateForm(RESOURCE_FILE, "Form", r.Form)
	if err != nil {
		return err
	}
	if r.Form.Id() == "" {
		return ValidationError{Entity: string(RESOURCE_FILE), Field: "Form", Reason: "has no id field"}
	}
	return nil
}

// Opener submits a download form, session.Client implements it.
type Opener interface {
	Open(ctx context.Context, form postback.Form) (session.Stream, error)
}

// Refresher scrapes the listing an entity belongs to again, updating the
// entity in place.
type Refresher func(ctx context.Context) error

type File struct {
	entity[FileRow]
	opener  Opener
	refresh Refresher
}

func NewFile(row FileRow, opener Opener, refresh Refresher) (*File, error) {
	assert.NotNil(opener)
	assert.True(refresh != nil, "file needs a refresher")

	err := row.Validate()
	if err != nil {
		return nil, err
	}
	f := &File{opener: opener, refresh: refresh}
	f.init(row.StableId(), row)
	return f, nil
}

func (f *File) Type() ResourceType {
	return RESOURCE_FILE
}

func (f *File) Update(row FileRow) error {
	err := row.Validate()
	if err != nil {
		return err
	}
	return f.replace(RESOURCE_FILE, row.StableId(), row)
}

func (f *File) Fields() (FileRow, error) {
	return f.fields()
}

func (f *File) Title() (string, error) {
	row, err := f.fields()
	return row.Title, err
}

func (f *File) Description() (string, error) {
	row, err := f.fields()
	return row.Description, err
}

func (f *File) Form() (postback.Form, error) {
	row, err := f.fields()
	return row.Form, err
}

var errRedirected = errors.New("download redirected")

// Download saves the file to dest and returns the path it was written to.
// If dest is a directory, the filename is taken from the response. progress
// (optional) is called with the total amount of bytes written so far.
//
// The download forms are single use, when the portal rejects one the
// listing of the file is scraped again and the download is retried once.
func (f *File) Download(ctx context.Context, dest string, progress func(written int64)) (string, error) {
	path, err := f.download(ctx, dest, progress)
	if !errors.Is(err, errRedirected) {
		return path, err
	}

	err = f.refresh(ctx)
	if err != nil {
		return "", fmt.Errorf("refresh download link: %w", err)
	}

	path, err = f.download(ctx, dest, progress)
	if errors.Is(err, errRedirected) {
		return "", ErrExpiredLink
	}
	return path, err
}

func (f *File) download(ctx context.Context, dest string, progress func(int64)) (string, error) {
	form, err := f.Form()
	if err != nil {
		return "", err
	}

	isDir := false
	info, err := os.Stat(dest)
	if err == nil {
		isDir = info.IsDir()
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	stream, err := f.opener.Open(ctx, form)
	if err != nil {
		return "", err
	}
	defer stream.Body.Close()

	switch stream.StatusCode {
	case http.StatusOK:
	case http.StatusFound:
		return "", errRedirected
	default:
		return "", &session.UnexpectedResponseError{Code: stream.StatusCode}
	}

	path := dest
	if isDir {
		filename, err := attachmentFilename(stream.Header)
		if err != nil {
			return "", err
		}
		path = filepath.Join(dest, filename)
	}

	err = writeFile(path, stream.Body, progress)
	if err != nil {
		return "", err
	}
	return path, nil
}

func attachmentFilename(header http.Header) (string, error) {
	disposition := header.Get("Content-Disposition")
	if disposition == "" {
		return "", ErrDownloadExpired
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return "", fmt.Errorf("%w: content-disposition: %s", ErrDownloadExpired, err.Error())
	}
	filename := filepath.Base(params["filename"])
	if filename == "." || filename == string(filepath.Separator) || params["filename"] == "" {
		return "", ErrDownloadExpired
	}
	return filename, nil
}

type progressWriter struct {
	written  int64
	progress func(int64)
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.written += int64(len(p))
	if w.progress != nil {
		w.progress(w.written)
	}
	return len(p), nil
}

// writeFile streams body into a temporary file next to path and moves it
// into place once complete, nothing is left behind on failure.
func writeFile(path string, body io.Reader, progress func(int64)) (err error) {
	partial := fmt.Sprintf("%s.%s.part", path, uuid.NewString())
	out, err := os.Create(partial)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(partial)
		}
	}()

	_, err = io.Copy(io.MultiWriter(out, &progressWriter{progress: progress}), body)
	if err != nil {
		return fmt.Errorf("write download: %w", err)
	}
	err = out.Close()
	if err != nil {
		return err
	}
	err = os.Rename(partial, path)
	if err != nil {
		return err
	}
	return nil
}
