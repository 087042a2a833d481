package asm

import (
	"errors"

	"github.com/bits-and-blooms/bitset"

	"classbuilder/internal/bytecode"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
	"classbuilder/internal/trace"
	"classbuilder/internal/typeinfo"
)

// Local is a parameter or declared local variable.
type Local struct {
	m      *Method
	id     uint
	slot   int
	typ    jtype.Type
	name   string
	start  int
	param  bool
	hidden bool
}

func (l *Local) Name() string { return l.name }

func (l *Local) Type() jtype.Type { return l.typ }

// Slot returns the first local-variable index the value occupies.
func (l *Local) Slot() int { return l.slot }

type handler struct {
	start, end, pc int
	catchType      uint16
}

type lineEntry struct {
	pc, line int
}

type renderLine struct {
	depth int
	text  string
}

// Method assembles one method, constructor or static initializer. Every
// statement is type-checked and emitted as soon as it is issued.
type Method struct {
	c        *Class
	info     *typeinfo.Method
	abstract bool
	where    string

	this     *Local
	params   []*Local
	locals   []*Local
	nextSlot int

	code     *bytecode.Buffer
	frames   []*frame
	nodes    []*Expr
	handlers []handler
	lines    []lineEntry
	maxStack int

	stmts       int
	superCalled bool
	finished    bool

	throws      []uint16
	throwNames  []jtype.Type
	annotations []annotationBlob
	rendered    []renderLine
	span        *trace.Span
}

func (c *Class) newMethod(info *typeinfo.Method, params []Param) (*Method, error) {
	m := &Method{
		c:        c,
		info:     info,
		abstract: info.IsAbstract() || info.Flags.IsNative(),
		where:    c.name + "." + info.Name + info.Descriptor(),
		code:     bytecode.New(),
	}
	if !info.IsStatic() {
		l, err := m.allocate(jtype.Class(c.name), "this", false)
		if err != nil {
			return nil, m.fail(err)
		}
		l.param = true
		m.this = l
	}
	for i, p := range params {
		l, err := m.allocate(info.Params[i], p.Name, false)
		if err != nil {
			return nil, m.fail(err)
		}
		l.param = true
		m.params = append(m.params, l)
	}
	c.methods = append(c.methods, m)
	if m.abstract {
		m.finished = true
		return m, nil
	}
	body := &frame{kind: frameBody, inherited: bitset.New(8)}
	for _, l := range m.locals {
		body.inherited.Set(l.id)
	}
	body.assigned = body.inherited.Clone()
	m.frames = []*frame{body}
	m.span = trace.Begin(c.opts.Tracer, trace.ScopeMethod, "method:"+info.Name+info.Descriptor(), c.span.ID())
	return m, nil
}

// Name returns the method name.
func (m *Method) Name() string { return m.info.Name }

// Descriptor returns the method descriptor.
func (m *Method) Descriptor() string { return m.info.Descriptor() }

// Returns is the declared return type.
func (m *Method) Returns() jtype.Type { return m.info.Return }

// IsStatic reports a static method.
func (m *Method) IsStatic() bool { return m.info.IsStatic() }

// IsConstructor reports <init>.
func (m *Method) IsConstructor() bool { return m.info.IsConstructor() }

// Finished reports whether End closed the body.
func (m *Method) Finished() bool { return m.finished }

// Param returns the i-th declared parameter.
func (m *Method) Param(i int) *Local {
	if i < 0 || i >= len(m.params) {
		return nil
	}
	return m.params[i]
}

// Arg finds a parameter by name.
func (m *Method) Arg(name string) *Local {
	for _, p := range m.params {
		if p.name == name {
			return p
		}
	}
	return nil
}

// MaxLocals returns the number of local slots used so far.
func (m *Method) MaxLocals() int { return m.nextSlot }

// allocate reserves slots for a new local. On failure nothing is allocated.
func (m *Method) allocate(t jtype.Type, name string, hidden bool) (*Local, error) {
	t = t.Resolve(m.c.name)
	limit := m.c.opts.MaxLocals
	if m.nextSlot+t.Slots() > limit {
		return nil, diag.Errorf(diag.SynTooManyLocals, "local %s needs slot %d, limit is %d", name, m.nextSlot+t.Slots()-1, limit-1)
	}
	l := &Local{m: m, id: uint(len(m.locals)), slot: m.nextSlot, typ: t, name: name, start: m.code.Pos(), hidden: hidden}
	m.locals = append(m.locals, l)
	m.nextSlot += t.Slots()
	return l, nil
}

// Declare adds a local variable. It is unassigned until written.
func (m *Method) Declare(t jtype.Type, name string) (*Local, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := checkName(name, false); err != nil {
		return nil, m.fail(err)
	}
	if t.IsVoid() || t.IsNull() {
		return nil, m.fail(diag.Errorf(diag.TypVoidValue, "local %s cannot have type %s", name, t))
	}
	l, err := m.allocate(t, name, false)
	if err != nil {
		return nil, m.fail(err)
	}
	m.rendered = append(m.rendered, renderLine{depth: m.depth(), text: l.typ.String() + " " + name + ";"})
	return l, nil
}

// enter guards every builder call on the method.
func (m *Method) enter() error {
	if err := m.c.usable(); err != nil {
		return err
	}
	if m.abstract {
		return m.fail(diag.Errorf(diag.SynNoBody, "%s has no body", m.info.Name))
	}
	if m.finished {
		return m.fail(diag.Errorf(diag.SynMethodClosed, "%s already finished", m.info.Name))
	}
	return nil
}

// stmt guards statements: the innermost scope must still be reachable.
func (m *Method) stmt() error {
	if err := m.enter(); err != nil {
		return err
	}
	if m.top().closed {
		return m.fail(diag.Errorf(diag.SynScopeClosed, "statement after return, throw, break or continue"))
	}
	return nil
}

func (m *Method) fail(err error) error {
	var de *diag.Error
	if errors.As(err, &de) && de.Where == "" && de.Code != diag.AsmUnusable {
		err = de.At(m.where)
	}
	return m.c.fail(err)
}

// result wraps constructor results so failures poison the class.
func (m *Method) result(e *Expr, err error) (*Expr, error) {
	if err != nil {
		return nil, m.fail(err)
	}
	return e, nil
}

func (m *Method) top() *frame { return m.frames[len(m.frames)-1] }

// mark starts a statement: line bookkeeping, rendering and tracing.
// depth is the nesting level the rendered text appears at.
func (m *Method) mark(kind string, depth int, text string) {
	m.stmts++
	pc := m.code.Pos()
	line := m.c.nextLine()
	if n := len(m.lines); n > 0 && m.lines[n-1].pc == pc {
		m.lines[n-1].line = line
	} else {
		m.lines = append(m.lines, lineEntry{pc: pc, line: line})
	}
	m.rendered = append(m.rendered, renderLine{depth: depth, text: text})
	trace.Point(m.c.opts.Tracer, trace.ScopeStmt, kind, m.span.ID(), text)
}

// depth is the nesting level of statements in the innermost scope.
func (m *Method) depth() int { return len(m.frames) }

// need records the operand-stack words a statement uses.
func (m *Method) need(words int) {
	if words > m.maxStack {
		m.maxStack = words
	}
}

// isAssigned reports definite assignment of l at the current point.
func (m *Method) isAssigned(l *Local) bool {
	return m.top().assigned.Test(l.id)
}

func (m *Method) assign(l *Local) {
	m.top().assigned.Set(l.id)
}

// inInitializer reports whether final fields of the class may be written.
func (m *Method) inInitializer(static bool) bool {
	if static {
		return m.info.Name == "<clinit>"
	}
	return m.info.Name == "<init>"
}
