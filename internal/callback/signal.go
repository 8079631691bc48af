package callback

import "sync"

// Signal is a resettable shutdown flag. Done returns a channel that is closed
// for as long as the flag is set, so it can be used both as a poll and in a
// select.
//
// Every Clear starts a new generation. A listener run remembers the
// generation it started in and raises the flag with SetFor, so a capture that
// finishes after a newer start request cannot cancel the run that request
// asked for.
type Signal struct {
	mu  sync.Mutex
	set bool
	gen uint64
	ch  chan struct{}
}

// NewSignal returns a cleared signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set raises the flag and wakes every waiter. Setting twice is harmless.
func (s *Signal) Set() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raise()
}

// SetFor raises the flag only if no Clear happened since gen was observed.
// It reports whether the flag is set on return.
func (s *Signal) SetFor(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return s.set
	}
	s.raise()
	return true
}

func (s *Signal) raise() {
	if !s.set {
		s.set = true
		close(s.ch)
	}
}

// Clear lowers the flag and starts a new generation. Waiters holding the old,
// closed channel have already been woken; later calls to Done get a fresh
// channel.
func (s *Signal) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	if s.set {
		s.set = false
		s.ch = make(chan struct{})
	}
}

// IsSet reports the flag without blocking.
func (s *Signal) IsSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// Done returns a channel closed when the flag is (or becomes) set.
func (s *Signal) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

// Watch returns Done and the current generation in one step.
func (s *Signal) Watch() (<-chan struct{}, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch, s.gen
}
