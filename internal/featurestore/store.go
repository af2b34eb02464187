package featurestore

import "sync"

// key identifies one rolling window by (rack, metric).
type key struct {
	rack   string
	metric string
}

// Store is the C1 Feature Store: a map of (rack, metric) -> Window. It is
// exclusively owned and mutated by the bus dispatcher goroutine (spec §5),
// so the mutex here only guards against the HTTP/WS read path taking a
// snapshot concurrently.
type Store struct {
	size int

	mu      sync.RWMutex
	windows map[key]*Window
}

// New creates a Store whose windows are all of the given size.
func New(size int) *Store {
	return &Store{size: size, windows: make(map[key]*Window)}
}

// Push appends v to the (rack, metric) window, creating it lazily.
func (s *Store) Push(rack, metric string, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{rack, metric}
	w, ok := s.windows[k]
	if !ok {
		w = NewWindow(s.size)
		s.windows[k] = w
	}
	w.Push(v)
}

// Window returns the dense, left-padded read for (rack, metric). An unseen
// (rack, metric) pair returns a zero-padded window of the configured size,
// consistent with invariant I1.
func (s *Store) Window(rack, metric string) []float64 {
	s.mu.RLock()
	w, ok := s.windows[key{rack, metric}]
	s.mu.RUnlock()
	if !ok {
		return NewWindow(s.size).Dense()
	}
	return w.Dense()
}

// Snapshot returns every tracked metric window for rack.
func (s *Store) Snapshot(rack string) map[string][]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]float64)
	for k, w := range s.windows {
		if k.rack == rack {
			out[k.metric] = w.Dense()
		}
	}
	return out
}
