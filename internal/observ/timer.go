// Package observ measures where a build spends its time.
package observ

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Phase is one timed interval, typically one recipe.
type Phase struct {
	Name  string
	Start time.Time
	Dur   time.Duration
	Note  string
	open  bool
}

// Timer collects phases. Recipes build concurrently, so every method may
// be called from several goroutines.
type Timer struct {
	mu     sync.Mutex
	phases []Phase
	now    func() time.Time
}

// NewTimer returns an empty Timer.
func NewTimer() *Timer { return &Timer{phases: make([]Phase, 0, 8), now: time.Now} }

// Begin opens a phase and returns its handle for End.
func (t *Timer) Begin(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Start: t.now(), open: true})
	return len(t.phases) - 1
}

// End closes the phase idx. Unknown or already closed handles are ignored.
func (t *Timer) End(idx int, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.phases) || !t.phases[idx].open {
		return
	}
	p := &t.phases[idx]
	p.Dur = t.now().Sub(p.Start)
	p.Note = note
	p.open = false
}

// Track opens a phase and returns the function that closes it.
func (t *Timer) Track(name string) func(note string) {
	idx := t.Begin(name)
	return func(note string) { t.End(idx, note) }
}

// PhaseReport is a closed phase in milliseconds.
type PhaseReport struct {
	Name       string  `json:"name"`
	DurationMS float64 `json:"duration_ms"`
	Note       string  `json:"note,omitempty"`
}

// Report summarises a timer. SumMS adds up overlapping phases and so can
// exceed WallMS, the span from the first start to the last end.
type Report struct {
	SumMS  float64       `json:"sum_ms"`
	WallMS float64       `json:"wall_ms"`
	Phases []PhaseReport `json:"phases"`
}

// Report lists closed phases in the order they began.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	var r Report
	var sum time.Duration
	var first, last time.Time
	for _, p := range t.phases {
		if p.open {
			continue
		}
		sum += p.Dur
		if first.IsZero() || p.Start.Before(first) {
			first = p.Start
		}
		if end := p.Start.Add(p.Dur); end.After(last) {
			last = end
		}
		r.Phases = append(r.Phases, PhaseReport{Name: p.Name, DurationMS: millis(p.Dur), Note: p.Note})
	}
	r.SumMS = millis(sum)
	if !first.IsZero() {
		r.WallMS = millis(last.Sub(first))
	}
	return r
}

// Summary prints the phases slowest first, then the totals.
func (t *Timer) Summary() string {
	r := t.Report()
	phases := slices.Clone(r.Phases)
	slices.SortStableFunc(phases, func(a, b PhaseReport) int {
		switch {
		case a.DurationMS > b.DurationMS:
			return -1
		case a.DurationMS < b.DurationMS:
			return 1
		}
		return 0
	})
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, p := range phases {
		fmt.Fprintf(&sb, "  %-32s %8.2f ms", p.Name, p.DurationMS)
		if p.Note != "" {
			sb.WriteString("  // " + p.Note)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-32s %8.2f ms\n", "sum", r.SumMS)
	fmt.Fprintf(&sb, "  %-32s %8.2f ms\n", "wall", r.WallMS)
	return sb.String()
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
