package tracker

import "github.com/gammazero/deque"

// Window tracks the mean of the most recent values added to it
type Window struct {
	size   int
	values *deque.Deque[float64]
	sum    float64
}

// NewWindow returns a new Window over the last size values
func NewWindow(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{
		size:   size,
		values: deque.New[float64](size),
	}
}

// Add adds v to the window, removing the oldest value if the window is
// full
func (w *Window) Add(v float64) {
	if w.values.Len() == w.size {
		w.sum -= w.values.PopFront()
	}
	w.values.PushBack(v)
	w.sum += v
}

// Mean returns the mean of the values in the window, or 0 if it is empty
func (w *Window) Mean() float64 {
	if w.values.Len() == 0 {
		return 0
	}
	return w.sum / float64(w.values.Len())
}

// Len returns the number of values in the window
func (w *Window) Len() int {
	return w.values.Len()
}

// Reset removes all values from the window
func (w *Window) Reset() {
	w.values.Clear()
	w.sum = 0
}
