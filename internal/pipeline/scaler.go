package pipeline

import "sync"

// Outcome classifies one processed item for the scaler.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeTransient Outcome = "transient_error"
	OutcomeFatal     Outcome = "fatal_error"
)

// ringBuffer keeps the last N outcomes, silently evicting the oldest on
// overflow. This window is the only state the scaler retains.
type ringBuffer struct {
	buf    []Outcome
	pos    int
	filled bool
}

func newRingBuffer(size int) *ringBuffer {
	return &ringBuffer{buf: make([]Outcome, size)}
}

func (r *ringBuffer) push(o Outcome) {
	r.buf[r.pos] = o
	r.pos = (r.pos + 1) % len(r.buf)
	if r.pos == 0 {
		r.filled = true
	}
}

func (r *ringBuffer) length() int {
	if r.filled {
		return len(r.buf)
	}
	return r.pos
}

func (r *ringBuffer) count(o Outcome) int {
	n := 0
	for i := 0; i < r.length(); i++ {
		if r.buf[i] == o {
			n++
		}
	}
	return n
}

// Stats summarizes the scaler's rolling window.
type Stats struct {
	Total         int     `json:"total"`
	Success       int     `json:"success"`
	Transient     int     `json:"transient"`
	Fatal         int     `json:"fatal"`
	SuccessRate   float64 `json:"success_rate"`
	TransientRate float64 `json:"transient_rate"`
	FatalRate     float64 `json:"fatal_rate"`
}

// AdaptiveScaler recommends a worker-pool size from a rolling window of
// per-item outcomes. The 1%-3% transient band is a deliberate dead zone: no
// change is made there, which keeps the pool from oscillating.
type AdaptiveScaler struct {
	mu     sync.Mutex
	window *ringBuffer
	min    int
	max    int
	step   int
}

func NewAdaptiveScaler(windowSize, minConcurrency, maxConcurrency, step int) *AdaptiveScaler {
	if windowSize < 1 {
		windowSize = 100
	}
	if minConcurrency < 1 {
		minConcurrency = 1
	}
	if maxConcurrency < minConcurrency {
		maxConcurrency = minConcurrency
	}
	if step < 1 {
		step = 1
	}
	return &AdaptiveScaler{
		window: newRingBuffer(windowSize),
		min:    minConcurrency,
		max:    maxConcurrency,
		step:   step,
	}
}

func (s *AdaptiveScaler) Record(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.window.push(o)
}

func (s *AdaptiveScaler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsLocked()
}

func (s *AdaptiveScaler) statsLocked() Stats {
	st := Stats{
		Total:     s.window.length(),
		Success:   s.window.count(OutcomeSuccess),
		Transient: s.window.count(OutcomeTransient),
		Fatal:     s.window.count(OutcomeFatal),
	}
	total := st.Total
	if total == 0 {
		total = 1
	}
	st.SuccessRate = float64(st.Success) / float64(total)
	st.TransientRate = float64(st.Transient) / float64(total)
	st.FatalRate = float64(st.Fatal) / float64(total)
	return st
}

// Suggest recommends the next concurrency given the current one. Rules in
// priority order: fatal rate above 1% clamps to the minimum; transient rate
// above 3% steps down; transient rate below 1% steps up; otherwise hold.
func (s *AdaptiveScaler) Suggest(current int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statsLocked()

	switch {
	case st.FatalRate > 0.01:
		return s.min
	case st.TransientRate > 0.03:
		next := current - s.step
		if next < s.min {
			next = s.min
		}
		return next
	case st.TransientRate < 0.01:
		next := current + s.step
		if next > s.max {
			next = s.max
		}
		return next
	default:
		return current
	}
}

func (s *AdaptiveScaler) Min() int { return s.min }
