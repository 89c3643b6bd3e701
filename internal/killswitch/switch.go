package killswitch

import "sync"

// Switch is the operator escape hatch. While engaged, schedulers drop their
// queues and stop running tasks.
type Switch struct {
	mu       sync.Mutex
	engaged  bool
	changed  chan struct{}
	onChange []func(engaged bool)
}

func New(engaged bool) *Switch {
	return &Switch{engaged: engaged, changed: make(chan struct{})}
}

func (s *Switch) Engaged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engaged
}

// Set flips the switch and wakes everyone waiting on Changed.
// It reports whether the state actually changed.
func (s *Switch) Set(engaged bool) bool {
	s.mu.Lock()
	if s.engaged == engaged {
		s.mu.Unlock()
		return false
	}
	s.engaged = engaged
	close(s.changed)
	s.changed = make(chan struct{})
	hooks := append([]func(bool){}, s.onChange...)
	s.mu.Unlock()

	for _, fn := range hooks {
		fn(engaged)
	}
	return true
}

// Changed returns a channel that is closed on the next state change.
// Callers must fetch a fresh channel after each wake-up.
func (s *Switch) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.changed
}

// OnChange registers fn to run after every state change.
func (s *Switch) OnChange(fn func(engaged bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}
