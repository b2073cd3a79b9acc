package session

import (
	"net/http"
	"regexp"
	"sync"
)

// TokenStore holds the session token of every domain the session talked to,
// tokens are stored as the full `name=value` cookie pair.
type TokenStore struct {
	mutex   sync.RWMutex
	pattern *regexp.Regexp
	tokens  map[string]string
}

func NewTokenStore(cookieName string) *TokenStore {
	return &TokenStore{
		pattern: regexp.MustCompile(regexp.QuoteMeta(cookieName) + `=[^;]*`),
		tokens:  map[string]string{},
	}
}

func (s *TokenStore) Get(domain string) (string, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	token, ok := s.tokens[domain]
	return token, ok
}

func (s *TokenStore) Set(domain, token string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tokens[domain] = token
}

func (s *TokenStore) Delete(domain string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.tokens, domain)
}

func (s *TokenStore) Clear() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.tokens = map[string]string{}
}

// Snapshot returns a copy of all tokens keyed by domain.
func (s *TokenStore) Snapshot() map[string]string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	out := make(map[string]string, len(s.tokens))
	for k, v := range s.tokens {
		out[k] = v
	}
	return out
}

// Update stores the first session token found in the Set-Cookie headers of
// a response, it returns false if there was none.
func (s *TokenStore) Update(domain string, header http.Header) bool {
	for _, cookie := range header.Values("Set-Cookie") {
		token := s.pattern.FindString(cookie)
		if token == "" {
			continue
		}
		s.Set(domain, token)
		return true
	}
	return false
}
