package observ

import (
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTimerConcurrentPhases(t *testing.T) {
	tm := NewTimer()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			done := tm.Track("recipe")
			done("ok")
		}()
	}
	wg.Wait()
	r := tm.Report()
	if len(r.Phases) != 4 {
		t.Fatalf("phases = %d", len(r.Phases))
	}
	if !strings.Contains(tm.Summary(), "// ok") {
		t.Fatalf("summary lacks notes:\n%s", tm.Summary())
	}
}

func TestEndIgnoresBadHandles(t *testing.T) {
	tm := NewTimer()
	tm.End(3, "x")
	idx := tm.Begin("open")
	if len(tm.Report().Phases) != 0 {
		t.Fatalf("open phase reported")
	}
	tm.End(idx, "first")
	tm.End(idx, "second")
	if r := tm.Report(); len(r.Phases) != 1 || r.Phases[0].Note != "first" {
		t.Fatalf("phases = %+v", r.Phases)
	}
}

func TestOverlappingPhases(t *testing.T) {
	clock := time.Unix(100, 0)
	tm := NewTimer()
	tm.now = func() time.Time { return clock }

	a := tm.Begin("recipe a.toml")
	clock = clock.Add(10 * time.Millisecond)
	b := tm.Begin("recipe b.toml")
	clock = clock.Add(20 * time.Millisecond)
	tm.End(a, "")
	clock = clock.Add(5 * time.Millisecond)
	tm.End(b, "")

	r := tm.Report()
	if r.SumMS != 55 || r.WallMS != 35 {
		t.Fatalf("sum %.1f wall %.1f, want 55 and 35", r.SumMS, r.WallMS)
	}
	s := tm.Summary()
	if strings.Index(s, "a.toml") > strings.Index(s, "b.toml") {
		t.Fatalf("slowest phase should come first:\n%s", s)
	}
}
