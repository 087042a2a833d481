package buildpipeline

import (
	"sync"
	"time"
)

// Stage describes a high-level pipeline phase of one recipe.
type Stage string

const (
	// StageLoad decodes and validates the recipe file.
	StageLoad Stage = "load"
	// StageCompile drives the class assemblers.
	StageCompile Stage = "compile"
	// StageSerialize produces the class-file bytes.
	StageSerialize Stage = "serialize"
	// StageWrite stores class files (and renderings) on disk.
	StageWrite Stage = "write"
)

// Stages lists the pipeline phases in order.
var Stages = []Stage{StageLoad, StageCompile, StageSerialize, StageWrite}

// Status captures progress state within a stage.
type Status string

const (
	// StatusQueued indicates the task is waiting to start.
	StatusQueued Status = "queued"
	// StatusWorking indicates the task is currently working.
	StatusWorking Status = "working"
	// StatusDone indicates the task is done.
	StatusDone Status = "done"
	// StatusError indicates the task encountered an error.
	StatusError Status = "error"
)

// Event reports progress for a recipe (or for the whole build when File is empty).
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Err     error
	Elapsed time.Duration
}

// ProgressSink consumes progress events. Recipes build concurrently, so
// OnEvent may be called from several goroutines.
type ProgressSink interface {
	OnEvent(Event)
}

// Timings holds accumulated stage durations across recipes.
type Timings struct {
	mu     sync.Mutex
	stages map[Stage]time.Duration
}

// Add accumulates dur into stage.
func (t *Timings) Add(stage Stage, dur time.Duration) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stages == nil {
		t.stages = make(map[Stage]time.Duration)
	}
	t.stages[stage] += dur
}

// Has reports whether a duration for stage is recorded.
func (t *Timings) Has(stage Stage) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.stages[stage]
	return ok
}

// Duration returns the recorded duration for stage.
func (t *Timings) Duration(stage Stage) time.Duration {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stages[stage]
}

// Sum returns the sum of durations across the provided stages.
func (t *Timings) Sum(stages ...Stage) time.Duration {
	var total time.Duration
	for _, stage := range stages {
		total += t.Duration(stage)
	}
	return total
}
