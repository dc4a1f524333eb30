package mapcap

import "sync"

// Scope collects disposers so a view can release every subscription it made
// with one Teardown call.
type Scope struct {
	mu        sync.Mutex
	disposers []Disposer
	closed    bool
}

// Add records d. If the scope is already torn down, d runs immediately.
func (s *Scope) Add(d Disposer) {
	if d == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		d()
		return
	}
	s.disposers = append(s.disposers, d)
	s.mu.Unlock()
}

// Teardown runs every recorded disposer in reverse order. Later Adds dispose
// immediately.
func (s *Scope) Teardown() {
	s.mu.Lock()
	ds := s.disposers
	s.disposers = nil
	s.closed = true
	s.mu.Unlock()

	for i := len(ds) - 1; i >= 0; i-- {
		ds[i]()
	}
}

// Len reports how many disposers are outstanding.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.disposers)
}

// Once wraps d so that only the first call has an effect.
func Once(d Disposer) Disposer {
	var once sync.Once
	return func() { once.Do(d) }
}
