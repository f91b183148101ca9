package ui

import "strings"

// SparklineChars are the eight bar heights.
var SparklineChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline keeps the last N samples in a ring and renders them as bars.
// The build view plots files per second, the console plots query latency.
type Sparkline struct {
	samples []float64
	head    int
	count   int
}

// NewSparkline creates a sparkline holding capacity samples.
func NewSparkline(capacity int) *Sparkline {
	if capacity <= 0 {
		capacity = 60
	}
	return &Sparkline{samples: make([]float64, capacity)}
}

// Add appends a sample, overwriting the oldest once full.
func (s *Sparkline) Add(value float64) {
	s.samples[s.head] = value
	s.head = (s.head + 1) % len(s.samples)
	s.count++
}

// Count returns how many samples were ever added.
func (s *Sparkline) Count() int { return s.count }

// Clear drops all samples.
func (s *Sparkline) Clear() {
	clear(s.samples)
	s.head = 0
	s.count = 0
}

// Values returns the retained samples, oldest first.
func (s *Sparkline) Values() []float64 {
	n := min(s.count, len(s.samples))
	out := make([]float64, 0, n)
	start := 0
	if s.count >= len(s.samples) {
		start = s.head
	}
	for i := range n {
		out = append(out, s.samples[(start+i)%len(s.samples)])
	}
	return out
}

// Max returns the largest retained sample.
func (s *Sparkline) Max() float64 {
	var m float64
	for _, v := range s.Values() {
		m = max(m, v)
	}
	return m
}

// Render draws the most recent width samples, scaled to the largest of
// them, left-padded with spaces. width <= 0 means the full capacity.
func (s *Sparkline) Render(width int) string {
	if width <= 0 {
		width = len(s.samples)
	}
	values := s.Values()
	if len(values) > width {
		values = values[len(values)-width:]
	}

	var peak float64
	for _, v := range values {
		peak = max(peak, v)
	}

	var sb strings.Builder
	sb.Grow(width * 3)
	sb.WriteString(strings.Repeat(" ", width-len(values)))
	top := len(SparklineChars) - 1
	for _, v := range values {
		idx := 0
		if peak > 0 {
			idx = min(max(int(v/peak*float64(top)), 0), top)
		}
		sb.WriteRune(SparklineChars[idx])
	}
	return sb.String()
}
