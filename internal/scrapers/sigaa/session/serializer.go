package session

import "sync"

// Serializer runs unauthenticated work one at a time in submission order.
// Until a domain hands out a session token, the server tells clients apart
// by connection only, interleaving those requests breaks the handshake.
type Serializer struct {
	mutex   sync.Mutex
	tail    chan struct{}
	pending int
}

// Acquire waits behind every unauthenticated work submitted before it and
// returns the function that lets the next one run. Authenticated callers get
// through immediately. release may be called more than once.
func (s *Serializer) Acquire(authenticated bool) (release func()) {
	if authenticated {
		return func() {}
	}

	s.mutex.Lock()
	prev := s.tail
	done := make(chan struct{})
	s.tail = done
	s.pending++
	s.mutex.Unlock()

	var once sync.Once
	release = func() {
		once.Do(func() {
			s.mutex.Lock()
			s.pending--
			if s.pending == 0 {
				s.tail = nil
			}
			s.mutex.Unlock()
			close(done)
		})
	}

	if prev != nil {
		<-prev
	}
	return release
}

// Do runs work immediately when authenticated is set, otherwise it waits
// behind every unauthenticated work submitted before it.
func (s *Serializer) Do(authenticated bool, work func() error) error {
	release := s.Acquire(authenticated)
	defer release()
	return work()
}

// Pending returns the amount of unauthenticated work running or queued.
func (s *Serializer) Pending() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.pending
}
