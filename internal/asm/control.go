package asm

import (
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
	"classbuilder/internal/typeinfo"
)

func (m *Method) throwable(t jtype.Type) bool {
	return typeinfo.IsAssignable(m.c.lookup, t, jtype.Throwable)
}

// test claims a condition operand.
func (m *Method) test(cond *Expr) (*Expr, error) {
	if err := m.claim(cond); err != nil {
		return nil, err
	}
	c, err := m.condition(cond)
	if err != nil {
		return nil, err
	}
	own(c)
	return c, nil
}

// If opens a conditional. Close the chain with End.
func (m *Method) If(cond *Expr) error {
	return m.statement(func() error {
		c, err := m.test(cond)
		if err != nil {
			return err
		}
		m.mark("if", m.depth(), "if ("+render(c)+") {")
		m.need(need(c))
		if err := m.branch(c, false); err != nil {
			return err
		}
		m.open(frameIf)
		return nil
	})
}

// ifArm checks that the innermost scope is an if chain still taking arms.
func (m *Method) ifArm(what string) (*frame, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	f := m.top()
	if f.kind != frameIf && f.kind != frameElseIf {
		return nil, m.fail(diag.Errorf(diag.SynElseOutsideIf, "%s inside %s", what, f.kind))
	}
	return f, nil
}

// skip ends the current arm: a normally completing arm jumps over the
// remaining ones, then the previous false exit lands here.
func (m *Method) skip(f *frame) error {
	b := m.code
	if !f.closed {
		b.PushPatch(classfile.OpGoto)
		f.ends++
		if err := b.SwapPatch(); err != nil {
			return err
		}
	}
	return b.PopPatch()
}

// ElseIf closes the current arm and opens another guarded by cond.
// Locals read by cond must be assigned before the whole chain.
func (m *Method) ElseIf(cond *Expr) error {
	f, err := m.ifArm("else if")
	if err != nil {
		return err
	}
	if err := m.elseIf(f, cond); err != nil {
		return m.fail(err)
	}
	return nil
}

func (m *Method) elseIf(f *frame, cond *Expr) error {
	c, err := m.test(cond)
	if err != nil {
		return err
	}
	var unassigned *Local
	c.readsOf(func(l *Local) bool {
		if !f.inherited.Test(l.id) {
			unassigned = l
			return false
		}
		return true
	})
	if unassigned != nil {
		return diag.Errorf(diag.AccUnassignedLocal, "local %s might not have been assigned", unassigned.name)
	}
	f.merge()
	if err := m.skip(f); err != nil {
		return err
	}
	f.rearm(frameElseIf)
	m.mark("elseif", m.depth()-1, "} else if ("+render(c)+") {")
	m.need(need(c))
	return m.branch(c, false)
}

// Else opens the final arm of an if chain.
func (m *Method) Else() error {
	f, err := m.ifArm("else")
	if err != nil {
		return err
	}
	f.merge()
	if err := m.skip(f); err != nil {
		return m.fail(err)
	}
	f.rearm(frameElse)
	f.hasElse = true
	m.rendered = append(m.rendered, renderLine{depth: m.depth() - 1, text: "} else {"})
	return nil
}

func (m *Method) endIf(f *frame) error {
	b := m.code
	f.merge()
	if !f.hasElse {
		// the last test falls through to here with nothing assigned
		if err := b.PopPatch(); err != nil {
			return err
		}
		f.closed = false
		f.assigned = f.inherited
		f.merge()
	}
	for range f.ends {
		if err := b.PopPatch(); err != nil {
			return err
		}
	}
	m.close()
	return nil
}

// While opens a loop re-testing cond before every iteration. A constant
// true condition emits no test; such a loop exits only through Break.
func (m *Method) While(cond *Expr) error {
	return m.statement(func() error {
		c, err := m.test(cond)
		if err != nil {
			return err
		}
		m.mark("while", m.depth(), "while ("+render(c)+") {")
		top := m.code.Pos()
		infinite := c.kind == ExprConst && c.value == true
		if !infinite {
			m.need(need(c))
			if err := m.branch(c, false); err != nil {
				return err
			}
		}
		f := m.open(frameWhile)
		f.top, f.infinite = top, infinite
		return nil
	})
}

// ForEach declares name of type t and opens a loop over an array or a
// java/lang/Iterable.
func (m *Method) ForEach(t jtype.Type, name string, over *Expr) (*Local, error) {
	var v *Local
	err := m.statement(func() error {
		var err error
		v, err = m.forEach(t, name, over)
		return err
	})
	return v, err
}

func (m *Method) forEach(t jtype.Type, name string, over *Expr) (*Local, error) {
	if err := checkName(name, false); err != nil {
		return nil, err
	}
	if err := m.claim(over); err != nil {
		return nil, err
	}
	t = t.Resolve(m.c.name)
	if t.IsVoid() || t.IsNull() {
		return nil, diag.Errorf(diag.TypVoidValue, "loop variable %s cannot have type %s", name, t)
	}
	src := over.typ
	array := src.IsArray()
	if !array && !typeinfo.IsAssignable(m.c.lookup, src, jtype.Class("java/lang/Iterable")) {
		return nil, diag.Errorf(diag.TypNotIterable, "cannot iterate over %s", src)
	}
	if array && !m.argConvertible(src.Elem(), t, true) {
		return nil, diag.Errorf(diag.TypNotAssignable, "%s elements are not assignable to %s", src, t)
	}
	own(over)
	m.mark("foreach", m.depth(), "for ("+t.String()+" "+name+" : "+render(over)+") {")
	m.need(need(over))
	if err := m.realize(over); err != nil {
		return nil, err
	}
	if array {
		return m.forArray(t, name, src)
	}
	return m.forIterable(t, name)
}

func (m *Method) hidden(t jtype.Type, name string) (*Local, error) {
	l, err := m.allocate(t, name, true)
	if err != nil {
		return nil, err
	}
	m.assign(l)
	return l, nil
}

func (m *Method) forArray(t jtype.Type, name string, src jtype.Type) (*Local, error) {
	b := m.code
	arr, err := m.hidden(src, "$array")
	if err != nil {
		return nil, err
	}
	idx, err := m.hidden(jtype.Int, "$index")
	if err != nil {
		return nil, err
	}
	v, err := m.allocate(t, name, false)
	if err != nil {
		return nil, err
	}
	if err := b.Store(src, arr.slot); err != nil {
		return nil, err
	}
	b.Emit(classfile.OpIconst0)
	if err := b.Store(jtype.Int, idx.slot); err != nil {
		return nil, err
	}
	top := b.Pos()
	if err := b.Load(jtype.Int, idx.slot); err != nil {
		return nil, err
	}
	if err := b.Load(src, arr.slot); err != nil {
		return nil, err
	}
	b.Emit(classfile.OpArraylength)
	b.PushPatch(classfile.OpIfIcmpge)

	load := m.node(ExprArrayGet, src.Elem(), m.localNode(arr), m.localNode(idx))
	load.op = arrayLoad(src.Elem())
	elem, err := m.assignConv(load, t)
	if err != nil {
		return nil, err
	}
	own(elem)
	m.need(need(elem))
	if err := m.realize(elem); err != nil {
		return nil, err
	}
	if err := b.Store(t, v.slot); err != nil {
		return nil, err
	}
	v.start = b.Pos()
	f := m.open(frameForEach)
	f.top, f.forward, f.index = top, true, idx
	f.assigned.Set(v.id)
	return v, nil
}

func (m *Method) forIterable(t jtype.Type, name string) (*Local, error) {
	b := m.code
	iter := jtype.Class("java/util/Iterator")
	it, err := m.hidden(iter, "$iterator")
	if err != nil {
		return nil, err
	}
	v, err := m.allocate(t, name, false)
	if err != nil {
		return nil, err
	}
	iterator, err := m.c.pool.InterfaceMethodref("java/lang/Iterable", "iterator", "()Ljava/util/Iterator;")
	if err != nil {
		return nil, err
	}
	hasNext, err := m.c.pool.InterfaceMethodref(iter.InternalName(), "hasNext", "()Z")
	if err != nil {
		return nil, err
	}
	if err := b.EmitInterface(iterator, 0); err != nil {
		return nil, err
	}
	if err := b.Store(iter, it.slot); err != nil {
		return nil, err
	}
	top := b.Pos()
	if err := b.Load(iter, it.slot); err != nil {
		return nil, err
	}
	if err := b.EmitInterface(hasNext, 0); err != nil {
		return nil, err
	}
	b.PushPatch(classfile.OpIfeq)

	next, err := m.invokeNode(classfile.OpInvokeinterface, iter.InternalName(), true, "next", jtype.Object, nil, m.localNode(it))
	if err != nil {
		return nil, err
	}
	elem, err := m.castConv(next, t)
	if err != nil {
		return nil, err
	}
	own(elem)
	m.need(need(elem))
	if err := m.realize(elem); err != nil {
		return nil, err
	}
	if err := b.Store(t, v.slot); err != nil {
		return nil, err
	}
	v.start = b.Pos()
	f := m.open(frameForEach)
	f.top = top
	f.assigned.Set(v.id)
	return v, nil
}

// localNode loads a hidden local without the assignment check.
func (m *Method) localNode(l *Local) *Expr {
	e := m.node(ExprLocal, l.typ)
	e.local = l
	return e
}

// Break leaves the innermost loop.
func (m *Method) Break() error {
	return m.statement(func() error {
		l := m.loop()
		if l == nil {
			return diag.Errorf(diag.SynBreakOutsideLoop, "break outside a loop")
		}
		m.mark("break", m.depth(), "break;")
		l.breaks = append(l.breaks, m.code.Jump(classfile.OpGoto))
		l.recordBreak(m.top().assigned)
		m.top().closed = true
		return nil
	})
}

// Continue starts the next iteration of the innermost loop.
func (m *Method) Continue() error {
	return m.statement(func() error {
		l := m.loop()
		if l == nil {
			return diag.Errorf(diag.SynContinueOutsideLoop, "continue outside a loop")
		}
		m.mark("continue", m.depth(), "continue;")
		if l.forward {
			l.continues = append(l.continues, m.code.Jump(classfile.OpGoto))
		} else if err := m.code.BranchTo(classfile.OpGoto, l.top); err != nil {
			return err
		}
		m.top().closed = true
		return nil
	})
}

func (m *Method) endLoop(f *frame) error {
	b := m.code
	if f.forward && (!f.closed || len(f.continues) > 0) {
		if err := b.ResolveAll(f.continues, b.Pos()); err != nil {
			return err
		}
		if err := b.Iinc(f.index.slot, 1); err != nil {
			return err
		}
		f.closed = false
	}
	if !f.closed {
		if err := b.BranchTo(classfile.OpGoto, f.top); err != nil {
			return err
		}
	}
	if !f.infinite {
		if err := b.PopPatch(); err != nil {
			return err
		}
	}
	if err := b.ResolveAll(f.breaks, b.Pos()); err != nil {
		return err
	}
	// a tested loop may run zero times; an infinite one exits only
	// through its breaks
	f.closed = false
	switch {
	case !f.infinite:
		f.merged = f.inherited
	case f.breakSet != nil:
		f.merged = f.breakSet
	default:
		f.merged = nil
	}
	m.close()
	return nil
}

// Try opens a protected region. At least one Catch must follow.
func (m *Method) Try() error {
	return m.statement(func() error {
		m.mark("try", m.depth(), "try {")
		f := m.open(frameTry)
		f.tryStart = m.code.Pos()
		return nil
	})
}

// Catch ends the try body or the previous handler and opens a handler
// for t, storing the exception in a new local called name.
func (m *Method) Catch(t jtype.Type, name string) (*Local, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	f := m.top()
	if f.kind != frameTry && f.kind != frameCatch {
		return nil, m.fail(diag.Errorf(diag.SynCatchOutsideTry, "catch inside %s", f.kind))
	}
	l, err := m.catch(f, t.Resolve(m.c.name), name)
	if err != nil {
		return nil, m.fail(err)
	}
	return l, nil
}

func (m *Method) catch(f *frame, t jtype.Type, name string) (*Local, error) {
	b := m.code
	if err := checkName(name, false); err != nil {
		return nil, err
	}
	if !t.IsReference() || t.IsArray() || t.IsNull() || !m.throwable(t) {
		return nil, diag.Errorf(diag.TypNotThrowable, "cannot catch %s", t)
	}
	for _, prev := range f.caught {
		if typeinfo.IsAssignable(m.c.lookup, t, prev) {
			return nil, diag.Errorf(diag.SynOverlappingCatch, "%s is already caught by the handler for %s", t, prev)
		}
	}
	if f.kind == frameTry {
		if b.Pos() == f.tryStart {
			b.Emit(classfile.OpNop)
		}
		f.tryEnd = b.Pos()
	}
	f.merge()
	if !f.closed {
		f.armEnds = append(f.armEnds, b.Jump(classfile.OpGoto))
	}
	idx, err := m.c.pool.Class(t.InternalName())
	if err != nil {
		return nil, err
	}
	f.rearm(frameCatch)
	f.caught = append(f.caught, t)
	l, err := m.allocate(t, name, false)
	if err != nil {
		return nil, err
	}
	m.handlers = append(m.handlers, handler{start: f.tryStart, end: f.tryEnd, pc: b.Pos(), catchType: idx})
	m.mark("catch", m.depth()-1, "} catch ("+t.String()+" "+name+") {")
	m.need(1)
	if err := b.Store(t, l.slot); err != nil {
		return nil, err
	}
	l.start = b.Pos()
	f.assigned.Set(l.id)
	return l, nil
}

func (m *Method) endTry(f *frame) error {
	if f.kind == frameTry {
		return diag.Errorf(diag.SynCatchOutsideTry, "try without catch")
	}
	f.merge()
	if err := m.code.ResolveAll(f.armEnds, m.code.Pos()); err != nil {
		return err
	}
	m.close()
	return nil
}

// End closes the innermost scope. Closing the method body finishes the
// method.
func (m *Method) End() error {
	if err := m.enter(); err != nil {
		return err
	}
	f := m.top()
	var err error
	if f.kind != frameBody {
		err = m.dangling(f.firstNode)
	}
	switch {
	case err != nil:
	case f.kind == frameBody:
		err = m.finish()
	case f.kind == frameIf || f.kind == frameElseIf || f.kind == frameElse:
		err = m.endIf(f)
	case f.kind == frameWhile || f.kind == frameForEach:
		err = m.endLoop(f)
	case f.kind == frameTry || f.kind == frameCatch:
		err = m.endTry(f)
	default:
		err = diag.Errorf(diag.SynUnbalancedEnd, "no scope to end")
	}
	if err != nil {
		return m.fail(err)
	}
	if f.kind != frameBody {
		m.rendered = append(m.rendered, renderLine{depth: m.depth(), text: "}"})
	}
	return nil
}
