package limits

// InFlightSet tracks items that own queued or running tasks, with the number
// of tasks still pending for each.
//
// Not safe for concurrent use; the owning tenant serializes access.
type InFlightSet struct {
	pending map[string]int
}

func NewInFlightSet() *InFlightSet {
	return &InFlightSet{pending: make(map[string]int)}
}

// Reserve claims id before its tasks exist. It returns false if id is already held.
func (s *InFlightSet) Reserve(id string) bool {
	if _, ok := s.pending[id]; ok {
		return false
	}
	s.pending[id] = 0
	return true
}

// Assign sets the number of tasks that must complete before id is released.
func (s *InFlightSet) Assign(id string, tasks int) {
	s.pending[id] = tasks
}

// Release records one completed task and reports whether it was the last one.
func (s *InFlightSet) Release(id string) bool {
	n, ok := s.pending[id]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(s.pending, id)
		return true
	}
	s.pending[id] = n - 1
	return false
}

// Cancel drops a reservation whose admission was abandoned.
func (s *InFlightSet) Cancel(id string) {
	delete(s.pending, id)
}

func (s *InFlightSet) Contains(id string) bool {
	_, ok := s.pending[id]
	return ok
}

func (s *InFlightSet) Len() int {
	return len(s.pending)
}
