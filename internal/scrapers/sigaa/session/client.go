package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sigaa-scraper/internal/components/assert"
	"sigaa-scraper/internal/components/telemetry"
	"sigaa-scraper/internal/scrapers/sigaa/postback"
	"strings"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const (
	report_client_request          = "client.request"
	report_client_open             = "client.open"
	report_client_follow_redirects = "client.follow-redirects"
	report_client_cache            = "client.cache"
)

const (
	DefaultTokenCookie = "JSESSIONID"
	DefaultExpiredPath = "/sigaa/expirada.jsp"
	DefaultCacheSize   = 512
	DefaultTimeout     = time.Second * 30
	DefaultTimezone    = "America/Sao_Paulo"
	DefaultUserAgent   = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"

	maxRedirects = 20
)

type ClientOptions struct {
	// BaseUrl is the root of the portal (ex. https://sigaa.ifsc.edu.br).
	BaseUrl   string
	UserAgent string
	// TokenCookie is the name of the cookie that carries the session token.
	TokenCookie string
	// ExpiredPath is where the portal redirects requests of expired sessions.
	ExpiredPath string
	// CacheSize is the maximum amount of pages kept by the page cache.
	CacheSize int
	// RequestsPerSecond limits the rate of requests, 0 means unlimited.
	RequestsPerSecond float64
	Timeout           time.Duration
	// Timezone is the IANA name of the timezone dates on the portal are in.
	Timezone string
	// DumpDir, when set, receives a copy of every http exchange.
	DumpDir string
}

var cookieNameRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

func (o ClientOptions) withDefaults() ClientOptions {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.TokenCookie == "" {
		o.TokenCookie = DefaultTokenCookie
	}
	if o.ExpiredPath == "" {
		o.ExpiredPath = DefaultExpiredPath
	}
	if o.CacheSize == 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

func (o ClientOptions) validate() (*url.URL, error) {
	if o.BaseUrl == "" {
		return nil, ValidationError{Field: "BaseUrl", Reason: "is required"}
	}
	base, err := url.Parse(o.BaseUrl)
	if err != nil {
		return nil, ValidationError{Field: "BaseUrl", Reason: err.Error()}
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, ValidationError{Field: "BaseUrl", Reason: fmt.Sprintf("unsupported scheme '%s'", base.Scheme)}
	}
	if base.Host == "" {
		return nil, ValidationError{Field: "BaseUrl", Reason: "has no host"}
	}
	if !cookieNameRegex.MatchString(o.TokenCookie) {
		return nil, ValidationError{Field: "TokenCookie", Reason: fmt.Sprintf("'%s' is not a cookie name", o.TokenCookie)}
	}
	if !strings.HasPrefix(o.ExpiredPath, "/") {
		return nil, ValidationError{Field: "ExpiredPath", Reason: "must be an absolute path"}
	}
	if o.CacheSize < 0 {
		return nil, ValidationError{Field: "CacheSize", Reason: "must not be negative"}
	}
	if o.RequestsPerSecond < 0 {
		return nil, ValidationError{Field: "RequestsPerSecond", Reason: "must not be negative"}
	}
	if o.Timeout < 0 {
		return nil, ValidationError{Field: "Timeout", Reason: "must not be negative"}
	}
	return base, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		loc, err := time.LoadLocation(DefaultTimezone)
		if err != nil {
			// no tzdata available, the portal does not observe dst anymore
			return time.FixedZone("BRT", -3*60*60), nil
		}
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, ValidationError{Field: "Timezone", Reason: err.Error()}
	}
	return loc, nil
}

// Client is a session with the portal. It keeps the session tokens, caches
// pages until their view state is superseded and serializes requests made
// without a token. It is safe for concurrent use.
type Client struct {
	baseUrl  *url.URL
	options  ClientOptions
	location *time.Location

	http       *resty.Client
	tokens     *TokenStore
	cache      *PageCache
	serializer *Serializer
	inflight   *singleflight.Group

	tel telemetry.API
}

func NewClient(options ClientOptions, tel telemetry.API) (*Client, error) {
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("sigaa_session", tel)

	options = options.withDefaults()
	baseUrl, err := options.validate()
	if err != nil {
		return nil, err
	}
	location, err := loadLocation(options.Timezone)
	if err != nil {
		return nil, err
	}

	httpClient := resty.New()
	// the token store is the only source of cookies
	httpClient.SetCookieJar(nil)
	httpClient.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(httpClient.GetClient().Transport)
	httpClient.SetHeader("user-agent", options.UserAgent)
	httpClient.SetTimeout(options.Timeout)
	// redirects are part of the protocol (expired sessions, login), they are
	// handed to the caller so the session token can be picked up on the way
	httpClient.SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}))

	telemetry.InstrumentResty(httpClient, tel)
	if options.DumpDir != "" {
		err = telemetry.DumpResty(httpClient, options.DumpDir, tel)
		if err != nil {
			return nil, fmt.Errorf("prepare dump dir: %w", err)
		}
	}

	if options.RequestsPerSecond > 0 {
		burst := int(options.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		rateLimiter := rate.NewLimiter(rate.Limit(options.RequestsPerSecond), burst)
		httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return rateLimiter.Wait(req.Context())
		})
	}

	return &Client{
		baseUrl:    baseUrl,
		options:    options,
		location:   location,
		http:       httpClient,
		tokens:     NewTokenStore(options.TokenCookie),
		cache:      NewPageCache(options.CacheSize),
		serializer: &Serializer{},
		inflight:   &singleflight.Group{},
		tel:        tel,
	}, nil
}

func (c *Client) BaseUrl() *url.URL {
	u := *c.baseUrl
	return &u
}

// Location is the timezone of the dates the portal displays.
func (c *Client) Location() *time.Location {
	return c.location
}

func (c *Client) Cache() *PageCache {
	return c.cache
}

// Authenticated returns true if the session holds a token for the portal.
func (c *Client) Authenticated() bool {
	_, ok := c.tokens.Get(c.baseUrl.Hostname())
	return ok
}

type requestOptions struct {
	noCache bool
}

type RequestOption func(o *requestOptions)

// NoCache skips the cache lookup, the response is still stored.
func NoCache() RequestOption {
	return func(o *requestOptions) {
		o.noCache = true
	}
}

func collectOptions(opts []RequestOption) requestOptions {
	var out requestOptions
	for _, o := range opts {
		o(&out)
	}
	return out
}

func (c *Client) resolve(endpoint string) (*url.URL, error) {
	u, err := c.baseUrl.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("resolve '%s': %w", endpoint, err)
	}
	return u, nil
}

func (c *Client) headers(u *url.URL, fields *postback.Fields) map[string]string {
	headers := map[string]string{}
	if token, ok := c.tokens.Get(u.Hostname()); ok {
		headers["Cookie"] = token
	}
	if fields != nil {
		headers["Content-Type"] = "application/x-www-form-urlencoded"
	}
	return headers
}

func cacheKey(method string, u *url.URL, headers map[string]string, fields *postback.Fields) CacheKey {
	key := CacheKey{
		Method:  method,
		Url:     u.String(),
		Headers: fmt.Sprintf("Content-Type: %s\nCookie: %s", headers["Content-Type"], headers["Cookie"]),
	}
	if fields != nil {
		key.Body = fields.Encode()
	}
	return key
}

// Get fetches endpoint (relative to the base url) or returns the cached page.
// Concurrent identical GETs share a single request, made with the context of
// the first caller.
func (c *Client) Get(ctx context.Context, endpoint string, opts ...RequestOption) (Page, error) {
	u, err := c.resolve(endpoint)
	if err != nil {
		return Page{}, err
	}
	o := collectOptions(opts)

	key := cacheKey(http.MethodGet, u, c.headers(u, nil), nil)
	if !o.noCache {
		if page, ok := c.cache.Get(key); ok {
			c.tel.ReportDebug(report_client_cache, "hit", key.Url)
			return page, nil
		}
	}

	res, err, _ := c.inflight.Do(key.String(), func() (any, error) {
		return c.request(ctx, http.MethodGet, u, nil)
	})
	if err != nil {
		return Page{}, err
	}
	return res.(Page), nil
}

// Post submits fields to endpoint (relative to the base url) or returns the
// cached page of an identical submission.
func (c *Client) Post(ctx context.Context, endpoint string, fields *postback.Fields, opts ...RequestOption) (Page, error) {
	assert.NotNil(fields)

	u, err := c.resolve(endpoint)
	if err != nil {
		return Page{}, err
	}
	o := collectOptions(opts)

	if !o.noCache {
		key := cacheKey(http.MethodPost, u, c.headers(u, fields), fields)
		if page, ok := c.cache.Get(key); ok {
			c.tel.ReportDebug(report_client_cache, "hit", key.Url)
			return page, nil
		}
	}

	return c.request(ctx, http.MethodPost, u, fields)
}

// Submit posts a postback form.
func (c *Client) Submit(ctx context.Context, form postback.Form, opts ...RequestOption) (Page, error) {
	assert.NotNil(form.Action)
	return c.Post(ctx, form.Action.String(), form.Fields, opts...)
}

func (c *Client) newRequest(ctx context.Context, u *url.URL, fields *postback.Fields) (*resty.Request, CacheKey) {
	method := http.MethodGet
	if fields != nil {
		method = http.MethodPost
	}
	headers := c.headers(u, fields)

	req := c.http.R().
		SetContext(ctx).
		SetHeaders(headers)
	if fields != nil {
		req.SetBody(fields.Encode())
	}
	return req, cacheKey(method, u, headers, fields)
}

func (c *Client) request(ctx context.Context, method string, u *url.URL, fields *postback.Fields) (Page, error) {
	_, authenticated := c.tokens.Get(u.Hostname())

	var page Page
	err := c.serializer.Do(authenticated, func() error {
		// the token is read again, a request queued behind the handshake
		// can already use the token it produced
		req, key := c.newRequest(ctx, u, fields)

		res, err := req.Execute(method, u.String())
		if err != nil {
			terr := newTransportError(err)
			c.tel.ReportBroken(report_client_request, terr, method, u.String())
			return terr
		}
		c.tokens.Update(u.Hostname(), res.Header())

		page = Page{
			StatusCode: res.StatusCode(),
			Header:     res.Header(),
			Body:       res.Body(),
			Url:        u,
		}
		if fields != nil {
			page.PostValues = fields.Clone()
		}
		if page.StatusCode != http.StatusOK {
			return nil
		}

		page.ViewState = viewStateOf(page.Body)
		var superseded string
		if fields != nil {
			superseded = fields.Get(postback.ViewStateField)
		}
		c.cache.Store(key, page, superseded)
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return page, nil
}

// Open submits a postback form without reading the response body, it is
// used for downloads. The page rendered with the view state of the form is
// evicted on success. An unauthenticated stream keeps its place in the
// serializer until its body is closed.
func (c *Client) Open(ctx context.Context, form postback.Form) (Stream, error) {
	assert.NotNil(form.Action)
	assert.NotNil(form.Fields)

	u := form.Action
	_, authenticated := c.tokens.Get(u.Hostname())
	release := c.serializer.Acquire(authenticated)

	req, _ := c.newRequest(ctx, u, form.Fields)
	req.SetDoNotParseResponse(true)

	res, err := req.Execute(http.MethodPost, u.String())
	if err != nil {
		release()
		terr := newTransportError(err)
		c.tel.ReportBroken(report_client_open, terr, u.String())
		return Stream{}, terr
	}
	c.tokens.Update(u.Hostname(), res.Header())

	stream := Stream{
		StatusCode: res.StatusCode(),
		Header:     res.Header(),
		Url:        u,
		Body:       &releasingBody{ReadCloser: res.RawBody(), release: release},
	}
	if stream.StatusCode == http.StatusOK {
		if viewState := form.ViewState(); viewState != "" {
			c.cache.EvictViewState(viewState)
		}
	}
	return stream, nil
}

type releasingBody struct {
	io.ReadCloser
	release func()
}

func (b *releasingBody) Close() error {
	defer b.release()
	return b.ReadCloser.Close()
}

// FollowRedirects fetches the location of page until the response is not a
// redirect anymore.
func (c *Client) FollowRedirects(ctx context.Context, page Page) (Page, error) {
	for i := 0; page.Location() != ""; i++ {
		if i >= maxRedirects {
			err := fmt.Errorf("stopped after %d redirects", maxRedirects)
			c.tel.ReportBroken(report_client_follow_redirects, err, page.Url.String())
			return Page{}, err
		}
		next, err := page.Url.Parse(page.Location())
		if err != nil {
			return Page{}, fmt.Errorf("parse redirect location: %w", err)
		}
		page, err = c.Get(ctx, next.String())
		if err != nil {
			return Page{}, err
		}
	}
	return page, nil
}

// Check classifies the status of a page. Only 200 is a success, a redirect
// to the expiry page means the session is gone.
func (c *Client) Check(page Page) error {
	return c.checkStatus(page.StatusCode, page.Location())
}

func (c *Client) checkStatus(code int, location string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusFound && strings.Contains(location, c.options.ExpiredPath):
		return ErrSessionExpired
	default:
		return &UnexpectedResponseError{Code: code}
	}
}

// GetChecked is Get followed by Check.
func (c *Client) GetChecked(ctx context.Context, endpoint string, opts ...RequestOption) (Page, error) {
	page, err := c.Get(ctx, endpoint, opts...)
	if err != nil {
		return Page{}, err
	}
	return page, c.Check(page)
}

// SubmitChecked is Submit followed by Check.
func (c *Client) SubmitChecked(ctx context.Context, form postback.Form, opts ...RequestOption) (Page, error) {
	page, err := c.Submit(ctx, form, opts...)
	if err != nil {
		return Page{}, err
	}
	return page, c.Check(page)
}

// Snapshot is the part of a session that can outlive the process.
type Snapshot struct {
	BaseUrl string            `json:"base_url"`
	Tokens  map[string]string `json:"tokens"`
}

func (c *Client) Snapshot() Snapshot {
	return Snapshot{
		BaseUrl: c.baseUrl.String(),
		Tokens:  c.tokens.Snapshot(),
	}
}

// Restore replaces the tokens of the session with the ones of a snapshot
// taken against the same portal, the page cache is cleared.
func (c *Client) Restore(snapshot Snapshot) error {
	if snapshot.BaseUrl != c.baseUrl.String() {
		return fmt.Errorf("restore session: snapshot is of '%s', not '%s'", snapshot.BaseUrl, c.baseUrl.String())
	}
	c.cache.Clear()
	c.tokens.Clear()
	for domain, token := range snapshot.Tokens {
		c.tokens.Set(domain, token)
	}
	return nil
}

// Close tears the session down locally, it does not notify the server.
func (c *Client) Close() {
	c.tokens.Clear()
	c.cache.Clear()
}
