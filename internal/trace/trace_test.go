package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelScopes(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelPhase, ScopeClass, true},
		{LevelPhase, ScopeMethod, false},
		{LevelDetail, ScopeMethod, true},
		{LevelDetail, ScopeStmt, false},
		{LevelDebug, ScopeStmt, true},
		{LevelError, ScopeDriver, false},
	}
	for _, tc := range cases {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Errorf("%s.ShouldEmit(%s) = %v, want %v", tc.level, tc.scope, got, tc.want)
		}
	}
}

func TestStreamTracerText(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)
	cls := Begin(tr, ScopeClass, "class:com/example/A", 0)
	m := Begin(tr, ScopeMethod, "method:run", cls.ID())
	Point(tr, ScopeStmt, "stmt", m.ID(), "dropped at detail")
	m.End("")
	cls.WithExtra("bytes", "120").End("ok")
	out := buf.String()
	if strings.Count(out, "\n") != 4 {
		t.Fatalf("want 4 lines, got:\n%s", out)
	}
	if strings.Contains(out, "dropped") {
		t.Fatalf("stmt event leaked at detail level:\n%s", out)
	}
	if !strings.Contains(out, "← class:com/example/A (ok) {bytes=120}") {
		t.Fatalf("missing class end line:\n%s", out)
	}
}

func TestRingTracerWraps(t *testing.T) {
	r := NewRingTracer(3, LevelDebug)
	for i := 0; i < 5; i++ {
		Point(r, ScopeStmt, "p", 0, strings.Repeat("x", i))
	}
	events := r.Snapshot()
	if len(events) != 3 {
		t.Fatalf("len = %d", len(events))
	}
	if events[0].Detail != "xx" || events[2].Detail != "xxxx" {
		t.Fatalf("order: %q .. %q", events[0].Detail, events[2].Detail)
	}
}

func TestContextDefaultsToNop(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Fatalf("expected Nop")
	}
	r := NewRingTracer(4, LevelPhase)
	ctx := WithTracer(context.Background(), r)
	if FromContext(ctx) != r {
		t.Fatalf("tracer not propagated")
	}
}

func TestNewOffIsNop(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil || tr.Enabled() {
		t.Fatalf("New(off) = %v, %v", tr, err)
	}
	if s := Begin(tr, ScopeDriver, "x", 0); s.ID() != 0 {
		t.Fatalf("span on disabled tracer has id %d", s.ID())
	}
}

func TestChildSpansShareRootLane(t *testing.T) {
	r := NewRingTracer(16, LevelDebug)
	a := Begin(r, ScopeDriver, "recipe:a", 0)
	b := Begin(r, ScopeDriver, "recipe:b", 0)
	ca := Begin(r, ScopeClass, "class:A", a.ID())
	Point(r, ScopeStmt, "stmt", ca.ID(), "")
	ca.End("")
	b.End("")
	a.End("")
	events := r.Snapshot()
	if len(events) != 7 {
		t.Fatalf("events = %d", len(events))
	}
	for _, ev := range events {
		want := a.ID()
		if ev.Name == "recipe:b" {
			want = b.ID()
		}
		if ev.Lane != want {
			t.Errorf("%s %s: lane %d, want %d", ev.Kind, ev.Name, ev.Lane, want)
		}
	}
	if d := a.End(""); d != 0 {
		t.Fatalf("second End reported %v", d)
	}
}

func TestRingDumpChrome(t *testing.T) {
	r := NewRingTracer(8, LevelPhase)
	s := Begin(r, ScopeDriver, "build", 0)
	s.WithExtra("recipes", "2").End("ok")
	var buf bytes.Buffer
	if err := r.Dump(&buf, FormatChrome); err != nil {
		t.Fatal(err)
	}
	var doc struct {
		TraceEvents []struct {
			Name string            `json:"name"`
			Ph   string            `json:"ph"`
			Args map[string]string `json:"args"`
		} `json:"traceEvents"`
	}
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("dump is not JSON: %v\n%s", err, buf.String())
	}
	if len(doc.TraceEvents) != 2 || doc.TraceEvents[0].Ph != "B" || doc.TraceEvents[1].Ph != "E" {
		t.Fatalf("events = %+v", doc.TraceEvents)
	}
	if doc.TraceEvents[1].Args["detail"] != "ok" || doc.TraceEvents[1].Args["recipes"] != "2" {
		t.Fatalf("end args = %v", doc.TraceEvents[1].Args)
	}
}

func TestParseNames(t *testing.T) {
	for _, l := range []Level{LevelOff, LevelError, LevelPhase, LevelDetail, LevelDebug} {
		got, err := ParseLevel(strings.ToUpper(l.String()))
		if err != nil || got != l {
			t.Errorf("ParseLevel(%s) = %v, %v", l, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Errorf("ParseLevel accepted junk")
	}
	if m, err := ParseMode("both"); err != nil || m != ModeBoth {
		t.Errorf("ParseMode(both) = %v, %v", m, err)
	}
	if f := formatFor(FormatAuto, "out.ndjson"); f != FormatNDJSON {
		t.Errorf("formatFor(ndjson) = %v", f)
	}
	if f := formatFor(FormatAuto, "-"); f != FormatText {
		t.Errorf("formatFor(-) = %v", f)
	}
}
