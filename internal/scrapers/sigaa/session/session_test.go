package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sigaa-scraper/internal/components/telemetry"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type portal struct {
	*httptest.Server
	mutex sync.Mutex
	hits  map[string]int
	// methodHits is keyed by "METHOD path"
	methodHits map[string]int
}

func (p *portal) count(path string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.hits[path]
}

func (p *portal) countMethod(method, path string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.methodHits[method+" "+path]
}

func viewStatePage(viewState string) string {
	return fmt.Sprintf(`<html><body><form id="f" action="/sigaa/ava/index.jsf">
<input type="hidden" name="javax.faces.ViewState" value="%s">
</form></body></html>`, viewState)
}

func newPortal(t *testing.T) *portal {
	p := &portal{hits: map[string]int{}, methodHits: map[string]int{}}

	mux := http.NewServeMux()
	mux.HandleFunc("/sigaa/verTelaLogin.do", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "abc123", Path: "/sigaa"})
		fmt.Fprint(w, "login")
	})
	mux.HandleFunc("/sigaa/whoami", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.Header.Get("Cookie"))
	})
	mux.HandleFunc("/sigaa/ava/index.jsf", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			fmt.Fprint(w, viewStatePage(r.PostForm.Get("javax.faces.ViewState")+"-next"))
			return
		}
		fmt.Fprint(w, viewStatePage("j_id1"))
	})
	mux.HandleFunc("/sigaa/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/sigaa/new", http.StatusFound)
	})
	mux.HandleFunc("/sigaa/new", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "new")
	})
	mux.HandleFunc("/sigaa/expired", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/sigaa/expirada.jsp", http.StatusFound)
	})
	mux.HandleFunc("/sigaa/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/sigaa/download", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="notes.txt"`)
		fmt.Fprint(w, "file contents")
	})

	p.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.mutex.Lock()
		p.hits[r.URL.Path]++
		p.methodHits[r.Method+" "+r.URL.Path]++
		p.mutex.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(p.Close)
	return p
}

func newTestClient(t *testing.T, baseUrl string) (*Client, telemetry.MemoryAPI) {
	tel := telemetry.NewMemoryAPI()
	client, err := NewClient(ClientOptions{BaseUrl: baseUrl, Timeout: time.Second * 5}, tel)
	require.NoError(t, err)
	return client, tel
}

func TestGetIsCached(t *testing.T) {
	p := newPortal(t)
	client, _ := newTestClient(t, p.URL)
	ctx := context.Background()

	first, err := client.Get(ctx, "/sigaa/ava/index.jsf")
	require.NoError(t, err)
	second, err := client.Get(ctx, "/sigaa/ava/index.jsf")
	require.NoError(t, err)

	require.Equal(t, first.Body, second.Body)
	require.Equal(t, "j_id1", second.ViewState)
	require.Equal(t, 1, p.count("/sigaa/ava/index.jsf"))

	_, err = client.Get(ctx, "/sigaa/ava/index.jsf", NoCache())
	require.NoError(t, err)
	require.Equal(t, 2, p.count("/sigaa/ava/index.jsf"))
}

func TestTokenIsReplayed(t *testing.T) {
	p := newPortal(t)
	client, _ := newTestClient(t, p.URL)
	ctx := context.Background()

	require.False(t, client.Authenticated())
	_, err := client.Get(ctx, "/sigaa/verTelaLogin.do")
	require.NoError(t, err)
	require.True(t, client.Authenticated())

	page, err := client.Get(ctx, "/sigaa/whoami")
	require.NoError(t, err)
	require.Equal(t, "JSESSIONID=abc123", string(page.Body))

	snapshot := client.Snapshot()
	require.Equal(t, p.URL, snapshot.BaseUrl)
	require.Len(t, snapshot.Tokens, 1)

	client.Close()
	require.False(t, client.Authenticated())
	require.Equal(t, 0, client.Cache().Len())

	page, err = client.Get(ctx, "/sigaa/whoami")
	require.NoError(t, err)
	require.Empty(t, string(page.Body))

	require.NoError(t, client.Restore(snapshot))
	require.True(t, client.Authenticated())
	require.Error(t, client.Restore(Snapshot{BaseUrl: "https://elsewhere.example.com"}))
}

func TestPostbackEvictsViewState(t *testing.T) {
	p := newPortal(t)
	client, _ := newTestClient(t, p.URL)
	ctx := context.Background()

	page, err := client.Get(ctx, "/sigaa/ava/index.jsf")
	require.NoError(t, err)
	doc, err := page.Document()
	require.NoError(t, err)
	form, err := postback.Extract(`document.getElementById('f')`, doc, page.Url)
	require.NoError(t, err)
	require.Equal(t, "j_id1", form.ViewState())

	next, err := client.Submit(ctx, form)
	require.NoError(t, err)
	require.Equal(t, "j_id1-next", next.ViewState)
	require.Equal(t, "j_id1", next.PostValues.Get("javax.faces.ViewState"))

	_, err = client.Get(ctx, "/sigaa/ava/index.jsf")
	require.NoError(t, err)
	require.Equal(t, 2, p.countMethod(http.MethodGet, "/sigaa/ava/index.jsf"))
	require.Equal(t, 1, p.countMethod(http.MethodPost, "/sigaa/ava/index.jsf"))
}

func TestCheck(t *testing.T) {
	p := newPortal(t)
	client, _ := newTestClient(t, p.URL)
	ctx := context.Background()

	_, err := client.GetChecked(ctx, "/sigaa/expired")
	require.ErrorIs(t, err, ErrSessionExpired)

	_, err = client.GetChecked(ctx, "/sigaa/broken")
	var unexpected *UnexpectedResponseError
	require.ErrorAs(t, err, &unexpected)
	require.Equal(t, http.StatusInternalServerError, unexpected.Code)

	page, err := client.Get(ctx, "/sigaa/old")
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, page.StatusCode)
	page, err = client.FollowRedirects(ctx, page)
	require.NoError(t, err)
	require.Equal(t, "new", string(page.Body))
	require.NoError(t, client.Check(page))
}

func TestTransportError(t *testing.T) {
	p := newPortal(t)
	client, tel := newTestClient(t, p.URL)
	p.Close()

	_, err := client.Get(context.Background(), "/sigaa/ava/index.jsf")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	require.Equal(t, TRANSPORT_REFUSED, terr.Code)
	require.True(t, tel.Has(telemetry.REPORT_BROKEN, report_client_request))
}

func TestOpen(t *testing.T) {
	p := newPortal(t)
	client, _ := newTestClient(t, p.URL)
	ctx := context.Background()

	_, err := client.Get(ctx, "/sigaa/ava/index.jsf")
	require.NoError(t, err)
	require.Equal(t, 1, client.Cache().Len())

	fields := postback.NewFields()
	fields.Set("javax.faces.ViewState", "j_id1")
	stream, err := client.Open(ctx, postback.Form{Action: client.BaseUrl().JoinPath("sigaa", "download"), Fields: fields})
	require.NoError(t, err)
	defer stream.Body.Close()

	body, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	require.Equal(t, "file contents", string(body))
	require.Equal(t, 0, client.Cache().Len())
}

func TestOpenHoldsSerializerUntilClose(t *testing.T) {
	p := newPortal(t)
	client, _ := newTestClient(t, p.URL)
	ctx := context.Background()

	stream, err := client.Open(ctx, postback.Form{
		Action: client.BaseUrl().JoinPath("sigaa", "download"),
		Fields: postback.NewFields(),
	})
	require.NoError(t, err)
	require.Equal(t, 1, client.serializer.Pending())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := client.Get(ctx, "/sigaa/new")
		require.NoError(t, err)
	}()
	require.Eventually(t, func() bool { return client.serializer.Pending() == 2 }, time.Second, time.Millisecond)
	require.Equal(t, 0, p.count("/sigaa/new"))

	require.NoError(t, stream.Body.Close())
	<-done
	require.Equal(t, 1, p.count("/sigaa/new"))
	require.Equal(t, 0, client.serializer.Pending())
}

func TestConcurrentGetsShareRequest(t *testing.T) {
	p := newPortal(t)
	client, _ := newTestClient(t, p.URL)

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Get(context.Background(), "/sigaa/new")
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, p.count("/sigaa/new"))
}

func TestSerializerOrder(t *testing.T) {
	s := &Serializer{}

	var mutex sync.Mutex
	var events []string
	record := func(e string) {
		mutex.Lock()
		defer mutex.Unlock()
		events = append(events, e)
	}

	var running int32
	release := make(chan struct{})
	wg := sync.WaitGroup{}
	for i, name := range []string{"A", "B", "C"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(false, func() error {
				require.Equal(t, int32(1), atomic.AddInt32(&running, 1))
				record(name + " start")
				if name == "A" {
					<-release
				}
				record(name + " end")
				atomic.AddInt32(&running, -1)
				return nil
			})
			require.NoError(t, err)
		}()
		require.Eventually(t, func() bool { return s.Pending() == i+1 }, time.Second, time.Millisecond)
	}

	authenticated := false
	require.NoError(t, s.Do(true, func() error {
		authenticated = true
		return nil
	}))
	require.True(t, authenticated)

	close(release)
	wg.Wait()

	diff := cmp.Diff([]string{"A start", "A end", "B start", "B end", "C start", "C end"}, events)
	if diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, 0, s.Pending())

	sentinel := errors.New("sentinel")
	require.ErrorIs(t, s.Do(false, func() error { return sentinel }), sentinel)
}

func TestPageCache(t *testing.T) {
	cache := NewPageCache(2)

	a := CacheKey{Method: "GET", Url: "a"}
	b := CacheKey{Method: "GET", Url: "b"}
	c := CacheKey{Method: "GET", Url: "c"}

	cache.Store(a, Page{Body: []byte("a"), ViewState: "V1"}, "")
	cache.Store(b, Page{Body: []byte("b"), ViewState: "V2"}, "")

	cache.Store(c, Page{Body: []byte("c"), ViewState: "V3"}, "V1")
	_, ok := cache.Get(a)
	require.False(t, ok)
	page, ok := cache.Get(b)
	require.True(t, ok)
	require.Equal(t, "b", string(page.Body))

	// re-storing under a new view state drops the old tag
	cache.Store(b, Page{Body: []byte("b2"), ViewState: "V4"}, "")
	cache.EvictViewState("V2")
	page, ok = cache.Get(b)
	require.True(t, ok)
	require.Equal(t, "b2", string(page.Body))

	cache.EvictViewState("V4")
	_, ok = cache.Get(b)
	require.False(t, ok)
	require.Equal(t, 1, cache.Len())

	cache.Clear()
	require.Equal(t, 0, cache.Len())
}

func TestNewClientValidation(t *testing.T) {
	tel := telemetry.NewMemoryAPI()

	cases := []struct {
		options ClientOptions
		field   string
	}{
		{ClientOptions{}, "BaseUrl"},
		{ClientOptions{BaseUrl: "ftp://sigaa.example.com"}, "BaseUrl"},
		{ClientOptions{BaseUrl: "https://"}, "BaseUrl"},
		{ClientOptions{BaseUrl: "https://sigaa.example.com", TokenCookie: "bad cookie"}, "TokenCookie"},
		{ClientOptions{BaseUrl: "https://sigaa.example.com", ExpiredPath: "expirada.jsp"}, "ExpiredPath"},
		{ClientOptions{BaseUrl: "https://sigaa.example.com", CacheSize: -1}, "CacheSize"},
		{ClientOptions{BaseUrl: "https://sigaa.example.com", RequestsPerSecond: -1}, "RequestsPerSecond"},
		{ClientOptions{BaseUrl: "https://sigaa.example.com", Timezone: "Not/AZone"}, "Timezone"},
	}
	for _, test := range cases {
		_, err := NewClient(test.options, tel)
		var verr ValidationError
		require.ErrorAs(t, err, &verr, test.field)
		require.Equal(t, test.field, verr.Field)
	}

	client, err := NewClient(ClientOptions{BaseUrl: "https://sigaa.example.com"}, tel)
	require.NoError(t, err)
	require.NotNil(t, client.Location())
}
