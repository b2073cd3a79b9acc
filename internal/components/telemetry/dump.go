package telemetry

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"
)

const report_resty_dump = "resty.dump"

// request method, request url, request headers, request body,
// response status, response headers, response body
const exchangeTemplate = `---- REQUEST ----

%s %s

%s

%s

---- RESPONSE ----

%s

%s

%s`

func formatHeaders(headers http.Header) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out strings.Builder
	for _, k := range keys {
		for _, v := range headers[k] {
			if out.Len() > 0 {
				out.WriteByte('\n')
			}
			fmt.Fprintf(&out, "%s: %s", k, v)
		}
	}
	return out.String()
}

func formatExchange(res *resty.Response) string {
	var requestHeaders http.Header
	if res.Request.RawRequest != nil {
		requestHeaders = res.Request.RawRequest.Header
	}
	var requestBody string
	if res.Request.Body != nil {
		requestBody = fmt.Sprint(res.Request.Body)
	}

	return fmt.Sprintf(
		exchangeTemplate,
		res.Request.Method, res.Request.URL,
		formatHeaders(requestHeaders),
		requestBody,
		res.Status(),
		formatHeaders(res.Header()),
		res.String(),
	)
}

// DumpResty writes every request and response of client into its own numbered
// file in dir, the directory is emptied first. Streamed responses are written
// without their body.
func DumpResty(client *resty.Client, dir string, tel API) error {
	err := os.RemoveAll(dir)
	if err != nil {
		return err
	}
	err = os.MkdirAll(dir, 0777)
	if err != nil {
		return err
	}

	var counter uint64
	client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
		id := atomic.AddUint64(&counter, 1)
		path := filepath.Join(dir, fmt.Sprintf("%04d.http", id))
		err := os.WriteFile(path, []byte(formatExchange(res)), 0600)
		if err != nil {
			tel.ReportWarning(report_resty_dump, err, path)
		}
		return nil
	})
	return nil
}
