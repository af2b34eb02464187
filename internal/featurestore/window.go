// Package featurestore implements C1, the per-(rack, metric) rolling
// feature window: a bounded FIFO with O(1) push and a dense, left-padded
// length-N read (spec §3 "RollingWindow", §4.1).
package featurestore

// Window is a bounded FIFO of float64 samples, newest at the tail. It
// never holds more than its configured size; once full, pushing drops the
// oldest sample.
type Window struct {
	size    int
	samples []float64
}

// NewWindow creates an empty Window of the given size. size must be >= 1.
func NewWindow(size int) *Window {
	return &Window{size: size, samples: make([]float64, 0, size)}
}

// Push appends v, evicting the oldest sample if the window is already at
// capacity. NaN is a legal value (spec §4.1 "Failure: none").
func (w *Window) Push(v float64) {
	if len(w.samples) == w.size {
		copy(w.samples, w.samples[1:])
		w.samples[len(w.samples)-1] = v
		return
	}
	w.samples = append(w.samples, v)
}

// Dense returns a length-size slice: the stored samples right-aligned, with
// the earliest known sample left-padding any remaining slots (spec
// invariant I1 -- a read always returns exactly N floats). An empty window
// left-pads with zero.
func (w *Window) Dense() []float64 {
	out := make([]float64, w.size)
	if len(w.samples) == 0 {
		return out
	}
	pad := w.size - len(w.samples)
	first := w.samples[0]
	for i := 0; i < pad; i++ {
		out[i] = first
	}
	copy(out[pad:], w.samples)
	return out
}

// Len returns the number of real (non-padded) samples currently stored.
func (w *Window) Len() int {
	return len(w.samples)
}
