package buildpipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"classbuilder/internal/asm"
	"classbuilder/internal/buildcache"
	"classbuilder/internal/diag"
	"classbuilder/internal/observ"
	"classbuilder/internal/testkit"
	"classbuilder/internal/trace"
)

func writeRecipe(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(src), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) last(file string) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out Event
	for _, ev := range r.events {
		if ev.File == file {
			out = ev
		}
	}
	return out
}

const shapes = `
package = "demo"
[[class]]
name = "Square"
constructor = true
getters = true
  [[class.field]]
  name = "side"
  type = "int"
`

const greeter = `
package: demo
classes:
  - name: Greeter
    main: hi
`

func TestBuildWritesEveryClass(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	recipes := []string{
		writeRecipe(t, src, "shapes.toml", shapes),
		writeRecipe(t, src, "greeter.yaml", greeter),
	}
	rec := &recorder{}
	timer := observ.NewTimer()
	res, err := Build(context.Background(), &Request{
		Recipes:   recipes,
		OutputDir: out,
		Jobs:      2,
		Render:    true,
		Progress:  rec,
		Timer:     timer,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if res.Failed() {
		t.Fatalf("unexpected diagnostics: %+v", res.Bag.Items())
	}
	if len(res.Outputs) != 2 || res.Outputs[0].Class != "demo/Greeter" || res.Outputs[1].Class != "demo/Square" {
		t.Fatalf("outputs = %+v", res.Outputs)
	}
	for _, o := range res.Outputs {
		data, err := os.ReadFile(o.Path)
		if err != nil {
			t.Fatalf("read %s: %v", o.Path, err)
		}
		if len(data) != o.Size {
			t.Fatalf("%s: %d bytes on disk, %d reported", o.Path, len(data), o.Size)
		}
		if _, err := testkit.CheckClass(data); err != nil {
			t.Fatalf("%s: %v", o.Class, err)
		}
		if _, err := os.Stat(filepath.Join(out, filepath.FromSlash(o.Class)+RenderExt)); err != nil {
			t.Fatalf("rendering missing: %v", err)
		}
	}
	for _, path := range recipes {
		if ev := rec.last(path); ev.Status != StatusDone {
			t.Fatalf("%s: last event %+v, want done", path, ev)
		}
	}
	for _, stage := range []Stage{StageLoad, StageCompile, StageSerialize, StageWrite} {
		if !res.Timings.Has(stage) {
			t.Errorf("no timing for %s", stage)
		}
	}
	if len(timer.Report().Phases) != 2 {
		t.Fatalf("timer phases = %+v", timer.Report().Phases)
	}
}

func TestBuildCollectsFailuresPerRecipe(t *testing.T) {
	src := t.TempDir()
	good := writeRecipe(t, src, "good.toml", shapes)
	bad := writeRecipe(t, src, "bad.yaml", "classes:\n  - name: Broken\n    extends: java.lang.String\n")
	rec := &recorder{}
	res, err := Build(context.Background(), &Request{
		Recipes:   []string{good, bad},
		OutputDir: t.TempDir(),
		Progress:  rec,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Source != bad || items[0].Code != diag.AsmBadDeclaration {
		t.Fatalf("diagnostics = %+v", items)
	}
	if ev := rec.last(bad); ev.Status != StatusError || ev.Stage != StageCompile {
		t.Fatalf("bad recipe last event %+v", ev)
	}
	if ev := rec.last(good); ev.Status != StatusDone {
		t.Fatalf("good recipe last event %+v", ev)
	}
	if len(res.Outputs) != 1 {
		t.Fatalf("outputs = %+v", res.Outputs)
	}
}

func TestBuildRejectsClashingClasses(t *testing.T) {
	src := t.TempDir()
	out := t.TempDir()
	a := writeRecipe(t, src, "a.toml", shapes)
	b := writeRecipe(t, src, "b.toml", shapes)
	res, err := Build(context.Background(), &Request{Recipes: []string{a, b}, OutputDir: out})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	items := res.Bag.Items()
	if len(items) != 1 || items[0].Code != diag.RecInvalid {
		t.Fatalf("diagnostics = %+v", items)
	}
	if _, err := os.Stat(filepath.Join(out, "demo", "Square.class")); !os.IsNotExist(err) {
		t.Fatalf("clashing class should not be written, stat err %v", err)
	}
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src := t.TempDir()
	_, err := Build(ctx, &Request{Recipes: []string{writeRecipe(t, src, "a.toml", shapes)}, DryRun: true})
	if err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestBuildReusesCache(t *testing.T) {
	src := t.TempDir()
	recipes := []string{
		writeRecipe(t, src, "shapes.toml", shapes),
		writeRecipe(t, src, "greeter.yaml", greeter),
	}
	cache, err := buildcache.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	build := func(out string, opts asm.Options) *Result {
		t.Helper()
		res, err := Build(context.Background(), &Request{Recipes: recipes, OutputDir: out, Options: opts, Cache: cache, CacheSalt: "test"})
		if err != nil || res.Failed() {
			t.Fatalf("Build: %v %+v", err, res.Bag.Items())
		}
		return res
	}

	first := build(t.TempDir(), asm.Options{})
	if first.CacheHits() != 0 {
		t.Fatalf("cold cache hits = %d", first.CacheHits())
	}
	out := t.TempDir()
	second := build(out, asm.Options{})
	if second.CacheHits() != 2 {
		t.Fatalf("warm cache hits = %d", second.CacheHits())
	}
	if second.Timings.Has(StageCompile) {
		t.Fatalf("cached build still compiled")
	}
	for i, o := range second.Outputs {
		data, err := os.ReadFile(o.Path)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, first.Outputs[i].data) {
			t.Fatalf("%s: cached bytes differ", o.Class)
		}
	}

	if third := build(t.TempDir(), asm.Options{Debug: true}); third.CacheHits() != 0 {
		t.Fatalf("changed options still hit the cache")
	}
}

func TestBuildTracesRecipesAndClasses(t *testing.T) {
	src := t.TempDir()
	path := writeRecipe(t, src, "shapes.toml", shapes)
	ring := trace.NewRingTracer(256, trace.LevelDetail)
	ctx := trace.WithTracer(context.Background(), ring)
	if _, err := Build(ctx, &Request{Recipes: []string{path}, DryRun: true}); err != nil {
		t.Fatal(err)
	}
	seen := map[string]bool{}
	var buildLane uint64
	for _, ev := range ring.Snapshot() {
		if ev.Kind != trace.KindSpanBegin {
			continue
		}
		seen[ev.Name] = true
		if ev.Name == "build" {
			buildLane = ev.Lane
		} else if ev.Lane != buildLane {
			t.Errorf("%s on lane %d, want %d", ev.Name, ev.Lane, buildLane)
		}
	}
	for _, name := range []string{"build", "recipe:" + path, "class:demo/Square", "method:getSide()I"} {
		if !seen[name] {
			t.Errorf("no span %q in %v", name, seen)
		}
	}
}
