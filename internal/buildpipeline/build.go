// Package buildpipeline builds recipe files into class files: each recipe
// is loaded, compiled and serialized on its own goroutine, then the
// results are checked for clashes and written out.
package buildpipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"classbuilder/internal/asm"
	"classbuilder/internal/buildcache"
	"classbuilder/internal/diag"
	"classbuilder/internal/observ"
	"classbuilder/internal/recipe"
	"classbuilder/internal/trace"
	"classbuilder/internal/typeinfo"
)

const defaultMaxDiagnostics = 200

// RenderExt is the file extension of pseudo-source renderings.
const RenderExt = ".jrender"

// Request configures one build.
type Request struct {
	Recipes   []string
	OutputDir string
	// Jobs bounds concurrent recipes; zero means GOMAXPROCS.
	Jobs int
	// Registry is the shared, read-only type metadata; nil uses the
	// JDK bootstrap.
	Registry typeinfo.Provider
	// Options is the assembler template. Provider, Tracer and ParentSpan
	// are filled in per recipe.
	Options asm.Options
	// Render also writes a pseudo-source rendering next to every class.
	Render bool
	// DryRun skips the write stage.
	DryRun bool
	// Cache, when set, skips compiling recipes whose bytes and settings
	// are unchanged. CacheSalt is mixed into every key and should change
	// with the tool version and the registry contents.
	Cache     *buildcache.Cache
	CacheSalt string

	Progress       ProgressSink
	Timer          *observ.Timer
	MaxDiagnostics int
}

// Output is one generated class.
type Output struct {
	Recipe   string
	Class    string
	Path     string
	Size     int
	Rendered string
	// Cached is set when the class came from the build cache.
	Cached bool

	data []byte
}

// Result collects what a build produced.
type Result struct {
	Outputs []Output
	Bag     *diag.Bag
	Timings *Timings
}

// Failed reports whether any recipe failed.
func (r *Result) Failed() bool { return r.Bag.HasErrors() }

// CacheHits counts outputs served from the build cache.
func (r *Result) CacheHits() int {
	n := 0
	for _, o := range r.Outputs {
		if o.Cached {
			n++
		}
	}
	return n
}

// Build runs the pipeline. Recipe failures are collected in the result's
// bag and do not stop other recipes; the returned error is reserved for
// cancellation and write-independent setup problems.
func Build(ctx context.Context, req *Request) (*Result, error) {
	if req == nil {
		return nil, fmt.Errorf("missing build request")
	}
	maxDiag := req.MaxDiagnostics
	if maxDiag <= 0 {
		maxDiag = defaultMaxDiagnostics
	}
	res := &Result{Bag: diag.NewBag(maxDiag), Timings: &Timings{}}
	if len(req.Recipes) == 0 {
		return res, nil
	}
	registry := req.Registry
	if registry == nil {
		registry = typeinfo.Default()
	}
	jobs := req.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}
	tracer := trace.FromContext(ctx)
	span := trace.Begin(tracer, trace.ScopeDriver, "build", trace.CurrentSpan(ctx).SpanID)
	defer span.End("")

	for _, path := range req.Recipes {
		emit(req.Progress, Event{File: path, Stage: StageLoad, Status: StatusQueued})
	}

	perRecipe := make([][]Output, len(req.Recipes))
	failed := make([]bool, len(req.Recipes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(jobs, len(req.Recipes)))
	for i, path := range req.Recipes {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			b := &recipeBuild{req: req, res: res, path: path, registry: registry, tracer: tracer, parent: span.ID()}
			outs, err := b.run()
			if err != nil {
				res.Bag.AddError(path, err)
				emit(req.Progress, Event{File: path, Stage: b.stage, Status: StatusError, Err: err})
				failed[i] = true
				return nil
			}
			perRecipe[i] = outs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	for i, outs := range perRecipe {
		if !failed[i] {
			res.Outputs = append(res.Outputs, outs...)
		}
	}
	sort.SliceStable(res.Outputs, func(i, j int) bool { return res.Outputs[i].Class < res.Outputs[j].Class })
	clashed := res.checkClashes()

	if !req.DryRun {
		start := time.Now()
		for i := range res.Outputs {
			out := &res.Outputs[i]
			if clashed[out.Recipe] {
				continue
			}
			if err := write(req, out); err != nil {
				res.Bag.AddError(out.Recipe, err)
				clashed[out.Recipe] = true
				emit(req.Progress, Event{File: out.Recipe, Stage: StageWrite, Status: StatusError, Err: err})
			}
		}
		res.Timings.Add(StageWrite, time.Since(start))
	}
	for i, path := range req.Recipes {
		switch {
		case failed[i]:
		case clashed[path]:
			emit(req.Progress, Event{File: path, Stage: StageWrite, Status: StatusError})
		default:
			emit(req.Progress, Event{File: path, Stage: StageWrite, Status: StatusDone})
		}
	}
	res.Bag.Sort()
	res.Bag.Dedup()
	return res, nil
}

// checkClashes reports classes generated by more than one recipe and
// returns the recipes involved.
func (r *Result) checkClashes() map[string]bool {
	bad := make(map[string]bool)
	for i := 1; i < len(r.Outputs); i++ {
		prev, cur := r.Outputs[i-1], r.Outputs[i]
		if prev.Class != cur.Class {
			continue
		}
		err := diag.Errorf(diag.RecInvalid, "class %s is generated by both %s and %s", cur.Class, prev.Recipe, cur.Recipe)
		r.Bag.Add(diag.FromError(cur.Recipe, err.At(cur.Class)))
		bad[prev.Recipe], bad[cur.Recipe] = true, true
	}
	return bad
}

type recipeBuild struct {
	req      *Request
	res      *Result
	path     string
	registry typeinfo.Provider
	tracer   trace.Tracer
	parent   uint64
	stage    Stage
}

// step runs fn as stage, reporting progress and timing.
func (b *recipeBuild) step(stage Stage, fn func() error) error {
	b.stage = stage
	emit(b.req.Progress, Event{File: b.path, Stage: stage, Status: StatusWorking})
	start := time.Now()
	err := fn()
	b.res.Timings.Add(stage, time.Since(start))
	return err
}

func (b *recipeBuild) run() ([]Output, error) {
	span := trace.Begin(b.tracer, trace.ScopeDriver, "recipe:"+b.path, b.parent)
	defer span.End("")
	if b.req.Timer != nil {
		done := b.req.Timer.Track("recipe " + b.path)
		defer done("")
	}

	var (
		file  *recipe.File
		key   buildcache.Digest
		entry *buildcache.Entry
	)
	if err := b.step(StageLoad, func() error {
		data, err := os.ReadFile(b.path)
		if err != nil {
			return diag.Errorf(diag.RecDecode, "%s: %v", b.path, err)
		}
		if b.req.Cache != nil {
			key = buildcache.Key(data, b.fingerprint()...)
			if hit, ok, err := b.req.Cache.Get(key); err == nil && ok {
				entry = hit
				return nil
			}
		}
		file, err = recipe.LoadBytes(b.path, data)
		return err
	}); err != nil {
		return nil, err
	}
	if entry != nil {
		span.WithExtra("cache", "hit")
		outs := make([]Output, 0, len(entry.Classes))
		for _, cc := range entry.Classes {
			outs = append(outs, Output{Recipe: b.path, Class: cc.Name, Size: len(cc.Data), Rendered: cc.Rendered, Cached: true, data: cc.Data})
		}
		return outs, nil
	}

	var classes []*asm.Class
	if err := b.step(StageCompile, func() (err error) {
		opts := b.req.Options
		opts.Tracer, opts.ParentSpan = b.tracer, span.ID()
		classes, err = recipe.Compile(file, b.registry, opts)
		return err
	}); err != nil {
		return nil, err
	}

	outs := make([]Output, 0, len(classes))
	if err := b.step(StageSerialize, func() error {
		for _, c := range classes {
			data, err := c.Bytes()
			if err != nil {
				return err
			}
			out := Output{Recipe: b.path, Class: c.Name(), Size: len(data), data: data}
			if b.req.Render {
				out.Rendered = c.Render()
			}
			outs = append(outs, out)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if b.req.Cache != nil {
		stored := &buildcache.Entry{Recipe: b.path}
		for _, o := range outs {
			stored.Classes = append(stored.Classes, buildcache.CachedClass{Name: o.Class, Data: o.data, Rendered: o.Rendered})
		}
		// a cache that cannot be written only costs the next build time
		if err := b.req.Cache.Put(key, stored); err != nil {
			trace.Point(b.tracer, trace.ScopeDriver, "cache-put", span.ID(), err.Error())
		}
	}
	span.WithExtra("classes", fmt.Sprint(len(outs)))
	return outs, nil
}

// fingerprint lists the settings that change the bytes a recipe compiles to.
func (b *recipeBuild) fingerprint() []string {
	o := b.req.Options
	return []string{
		fmt.Sprintf("class=%d.%d debug=%t source=%s locals=%d render=%t", o.Major, o.Minor, o.Debug, o.SourceFile, o.MaxLocals, b.req.Render),
		b.req.CacheSalt,
	}
}

func write(req *Request, out *Output) error {
	dir := req.OutputDir
	if dir == "" {
		dir = "."
	}
	out.Path = filepath.Join(dir, filepath.FromSlash(out.Class)+".class")
	if err := os.MkdirAll(filepath.Dir(out.Path), 0o755); err != nil {
		return diag.Errorf(diag.AsmIO, "create %s: %v", filepath.Dir(out.Path), err).At(out.Class)
	}
	if err := os.WriteFile(out.Path, out.data, 0o644); err != nil {
		return diag.Errorf(diag.AsmIO, "write %s: %v", out.Path, err).At(out.Class)
	}
	if out.Rendered != "" {
		path := filepath.Join(dir, filepath.FromSlash(out.Class)+RenderExt)
		if err := os.WriteFile(path, []byte(out.Rendered), 0o644); err != nil {
			return diag.Errorf(diag.AsmIO, "write %s: %v", path, err).At(out.Class)
		}
	}
	return nil
}
