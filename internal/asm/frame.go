package asm

import (
	"github.com/bits-and-blooms/bitset"

	"classbuilder/internal/bytecode"
	"classbuilder/internal/jtype"
)

type frameKind uint8

const (
	frameBody frameKind = iota
	frameIf
	frameElseIf
	frameElse
	frameWhile
	frameForEach
	frameTry
	frameCatch
)

func (k frameKind) String() string {
	return [...]string{"body", "if", "else if", "else", "while", "for", "try", "catch"}[k]
}

// frame is one open scope. An if chain and a try with its catches each
// use a single frame whose kind follows the current arm.
//
// inherited is the assignment state on entry; assigned is updated live
// and reset to inherited whenever a new arm opens; merged intersects the
// assigned sets of every arm that completes normally.
type frame struct {
	kind      frameKind
	inherited *bitset.BitSet
	assigned  *bitset.BitSet
	merged    *bitset.BitSet
	closed    bool
	// nodes made inside the scope start at this index of Method.nodes
	firstNode int

	// if chains: goto sites that skip the remaining arms, kept on the
	// patch stack
	ends    int
	hasElse bool

	// loops
	top       int
	infinite  bool
	forward   bool // continue jumps forward to the increment
	breaks    []bytecode.Site
	continues []bytecode.Site
	breakSet  *bitset.BitSet
	index     *Local

	// try/catch
	tryStart int
	tryEnd   int
	armEnds  []bytecode.Site
	caught   []jtype.Type
}

func (m *Method) open(kind frameKind) *frame {
	parent := m.top()
	f := &frame{
		kind:      kind,
		inherited: parent.assigned.Clone(),
		assigned:  parent.assigned.Clone(),
		firstNode: len(m.nodes),
	}
	m.frames = append(m.frames, f)
	return f
}

// merge folds the current arm into merged when it completes normally.
func (f *frame) merge() {
	if f.closed {
		return
	}
	if f.merged == nil {
		f.merged = f.assigned.Clone()
		return
	}
	f.merged.InPlaceIntersection(f.assigned)
}

// rearm starts the next mutually exclusive arm.
func (f *frame) rearm(kind frameKind) {
	f.kind = kind
	f.assigned = f.inherited.Clone()
	f.closed = false
}

func (f *frame) isLoop() bool {
	return f.kind == frameWhile || f.kind == frameForEach
}

// recordBreak intersects the state at a break into the loop's exit set.
func (f *frame) recordBreak(state *bitset.BitSet) {
	if f.breakSet == nil {
		f.breakSet = state.Clone()
		return
	}
	f.breakSet.InPlaceIntersection(state)
}

// close pops the innermost frame and hands its outcome to the parent:
// the merged state when some arm falls through, closed otherwise.
func (m *Method) close() {
	f := m.top()
	m.frames = m.frames[:len(m.frames)-1]
	parent := m.top()
	if f.merged == nil {
		parent.closed = true
		return
	}
	parent.assigned = f.merged
}

// loop returns the innermost enclosing loop frame.
func (m *Method) loop() *frame {
	for i := len(m.frames) - 1; i > 0; i-- {
		if m.frames[i].isLoop() {
			return m.frames[i]
		}
	}
	return nil
}
