package engine

// rollingWindow is a FIFO-capped sample array for aggregate statistics.
// Pushing past the cap drops the oldest sample.
type rollingWindow struct {
	samples []float64
	cap     int
}

func newRollingWindow(cap int) *rollingWindow {
	return &rollingWindow{cap: cap}
}

func (w *rollingWindow) push(v float64) {
	w.samples = append(w.samples, v)
	if len(w.samples) > w.cap {
		w.samples = w.samples[len(w.samples)-w.cap:]
	}
}

func (w *rollingWindow) mean() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range w.samples {
		sum += v
	}
	return sum / float64(len(w.samples))
}

func (w *rollingWindow) len() int { return len(w.samples) }
