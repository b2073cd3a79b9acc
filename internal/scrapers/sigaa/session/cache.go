package session

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheKey identifies a request, two requests are only the same request if
// all fields are equal.
type CacheKey struct {
	Method string
	Url    string
	// Headers is the canonical form of the request headers that change the
	// response (the session cookie and the content type).
	Headers string
	// Body is the encoded form body, it is empty for GET requests.
	Body string
}

func (k CacheKey) String() string {
	return fmt.Sprintf("%s %s\n%s\n%s", k.Method, k.Url, k.Headers, k.Body)
}

type cacheEntry struct {
	page Page
	tag  string
}

// PageCache keeps the pages the session fetched until the server moves the
// view they were rendered with forward. It is not time based, a page is
// dropped only when a postback supersedes its view state or when the cache
// is full.
type PageCache struct {
	mutex       sync.Mutex
	entries     *lru.Cache[CacheKey, cacheEntry]
	byViewState map[string]map[CacheKey]struct{}
}

func NewPageCache(size int) *PageCache {
	c := &PageCache{
		byViewState: map[string]map[CacheKey]struct{}{},
	}
	entries, err := lru.NewWithEvict(size, c.onEvict)
	if err != nil {
		// only returned for a non-positive size
		panic(err)
	}
	c.entries = entries
	return c
}

// onEvict is called by the lru with c.mutex held.
func (c *PageCache) onEvict(key CacheKey, entry cacheEntry) {
	c.untag(key, entry.tag)
}

func (c *PageCache) untag(key CacheKey, tag string) {
	if tag == "" {
		return
	}
	keys := c.byViewState[tag]
	delete(keys, key)
	if len(keys) == 0 {
		delete(c.byViewState, tag)
	}
}

func (c *PageCache) Get(key CacheKey) (Page, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	entry, ok := c.entries.Get(key)
	if !ok {
		return Page{}, false
	}
	return entry.page, true
}

// Store inserts or replaces the page for key. superseded is the view state
// the request posted (if any), every page rendered with it is evicted
// before the new page is stored.
func (c *PageCache) Store(key CacheKey, page Page, superseded string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if superseded != "" {
		c.evictViewState(superseded)
	}

	if old, ok := c.entries.Peek(key); ok {
		c.untag(key, old.tag)
	}
	c.entries.Add(key, cacheEntry{page: page, tag: page.ViewState})
	if page.ViewState != "" {
		keys, ok := c.byViewState[page.ViewState]
		if !ok {
			keys = map[CacheKey]struct{}{}
			c.byViewState[page.ViewState] = keys
		}
		keys[key] = struct{}{}
	}
}

// EvictViewState removes every page rendered with the given view state.
func (c *PageCache) EvictViewState(viewState string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.evictViewState(viewState)
}

func (c *PageCache) evictViewState(viewState string) {
	keys := c.byViewState[viewState]
	victims := make([]CacheKey, 0, len(keys))
	for k := range keys {
		victims = append(victims, k)
	}
	for _, k := range victims {
		c.entries.Remove(k)
	}
	delete(c.byViewState, viewState)
}

func (c *PageCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries.Purge()
	c.byViewState = map[string]map[CacheKey]struct{}{}
}

func (c *PageCache) Len() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.entries.Len()
}
