package asm

import (
	"strconv"
	"strings"

	"classbuilder/internal/bytecode"
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// statement runs body under the statement guard and poisons the class
// on failure.
func (m *Method) statement(body func() error) error {
	if err := m.stmt(); err != nil {
		return err
	}
	if err := body(); err != nil {
		return m.fail(err)
	}
	return nil
}

func (m *Method) ownLocal(l *Local) error {
	if l == nil {
		return diag.Errorf(diag.TypOperandMismatch, "missing local")
	}
	if l.m != m {
		return diag.Errorf(diag.SynForeignNode, "local %s belongs to %s", l.name, l.m.where)
	}
	return nil
}

// Assign stores e into l and marks l assigned on the current path.
func (m *Method) Assign(l *Local, e *Expr) error {
	return m.statement(func() error {
		if err := m.ownLocal(l); err != nil {
			return err
		}
		if err := m.claim(e); err != nil {
			return err
		}
		v, err := m.assignConv(e, l.typ)
		if err != nil {
			return err
		}
		own(v)
		m.mark("assign", m.depth(), l.name+" = "+render(v)+";")
		m.need(need(v))
		if err := m.realize(v); err != nil {
			return err
		}
		if err := m.code.Store(l.typ, l.slot); err != nil {
			return err
		}
		m.assign(l)
		return nil
	})
}

// Increment adds a constant to an int local in place.
func (m *Method) Increment(l *Local, delta int) error {
	return m.statement(func() error {
		if err := m.ownLocal(l); err != nil {
			return err
		}
		if l.typ != jtype.Int {
			return diag.Errorf(diag.TypOperandMismatch, "increment of %s local %s", l.typ, l.name)
		}
		if !m.isAssigned(l) {
			return diag.Errorf(diag.AccUnassignedLocal, "local %s might not have been assigned", l.name)
		}
		text := l.name + "++;"
		switch {
		case delta == -1:
			text = l.name + "--;"
		case delta < 0:
			text = l.name + " -= " + strconv.Itoa(-delta) + ";"
		case delta != 1:
			text = l.name + " += " + strconv.Itoa(delta) + ";"
		}
		m.mark("increment", m.depth(), text)
		return m.code.Iinc(l.slot, delta)
	})
}

// Do runs e for its side effects and discards any value.
func (m *Method) Do(e *Expr) error {
	return m.statement(func() error {
		if err := m.claim(e); err != nil {
			return err
		}
		e.consumed = true
		m.mark("expr", m.depth(), render(e)+";")
		m.need(need(e))
		if err := m.realize(e); err != nil {
			return err
		}
		switch e.typ.Slots() {
		case 1:
			m.code.Emit(classfile.OpPop)
		case 2:
			m.code.Emit(classfile.OpPop2)
		}
		return nil
	})
}

// SetField stores v into obj.name.
func (m *Method) SetField(obj *Expr, name string, v *Expr) error {
	return m.statement(func() error {
		if err := m.claim(obj, v); err != nil {
			return err
		}
		f, idx, err := m.field(obj.typ, name, false)
		if err != nil {
			return err
		}
		if err := m.finalCheck(f); err != nil {
			return err
		}
		cv, err := m.assignConv(v, f.Type)
		if err != nil {
			return err
		}
		own(obj)
		own(cv)
		m.mark("putfield", m.depth(), render(obj)+"."+name+" = "+render(cv)+";")
		m.need(seqNeed(0, []*Expr{obj, cv}))
		if err := m.realize(obj); err != nil {
			return err
		}
		if err := m.realize(cv); err != nil {
			return err
		}
		m.code.EmitU2(classfile.OpPutfield, idx)
		return nil
	})
}

// SetStatic stores v into the static field owner.name.
func (m *Method) SetStatic(owner jtype.Type, name string, v *Expr) error {
	return m.statement(func() error {
		if err := m.claim(v); err != nil {
			return err
		}
		owner = owner.Resolve(m.c.name)
		f, idx, err := m.field(owner, name, true)
		if err != nil {
			return err
		}
		if err := m.finalCheck(f); err != nil {
			return err
		}
		cv, err := m.assignConv(v, f.Type)
		if err != nil {
			return err
		}
		own(cv)
		m.mark("putstatic", m.depth(), owner.SimpleName()+"."+name+" = "+render(cv)+";")
		m.need(need(cv))
		if err := m.realize(cv); err != nil {
			return err
		}
		m.code.EmitU2(classfile.OpPutstatic, idx)
		return nil
	})
}

// SetIndex stores v into arr[idx].
func (m *Method) SetIndex(arr, idx, v *Expr) error {
	return m.statement(func() error {
		if err := m.claim(arr, idx, v); err != nil {
			return err
		}
		i, err := m.arrayIndex(arr, idx)
		if err != nil {
			return err
		}
		elem := arr.typ.Elem()
		cv, err := m.assignConv(v, elem)
		if err != nil {
			return err
		}
		ops := []*Expr{arr, i, cv}
		for _, o := range ops {
			own(o)
		}
		m.mark("astore", m.depth(), render(arr)+"["+render(i)+"] = "+render(cv)+";")
		m.need(seqNeed(0, ops))
		for _, o := range ops {
			if err := m.realize(o); err != nil {
				return err
			}
		}
		m.code.Emit(arrayStore(elem))
		return nil
	})
}

func returnOp(t jtype.Type) classfile.Opcode {
	switch t.Kind() {
	case jtype.KindVoid:
		return classfile.OpReturn
	case jtype.KindLong:
		return classfile.OpLreturn
	case jtype.KindFloat:
		return classfile.OpFreturn
	case jtype.KindDouble:
		return classfile.OpDreturn
	case jtype.KindReference:
		return classfile.OpAreturn
	}
	return classfile.OpIreturn
}

// Return leaves the method. e must be nil exactly when it returns void.
func (m *Method) Return(e *Expr) error {
	return m.statement(func() error {
		ret := m.info.Return
		if e == nil {
			if !ret.IsVoid() {
				return diag.Errorf(diag.TypMissingReturn, "%s must return %s", m.info.Name, ret)
			}
			m.mark("return", m.depth(), "return;")
			m.code.Emit(classfile.OpReturn)
			m.top().closed = true
			return nil
		}
		if ret.IsVoid() {
			return diag.Errorf(diag.TypExtraneousReturn, "void method %s returns a value", m.info.Name)
		}
		if err := m.claim(e); err != nil {
			return err
		}
		v, err := m.assignConv(e, ret)
		if err != nil {
			return err
		}
		own(v)
		m.mark("return", m.depth(), "return "+render(v)+";")
		m.need(need(v))
		if err := m.realize(v); err != nil {
			return err
		}
		m.code.Emit(returnOp(ret))
		m.top().closed = true
		return nil
	})
}

// Throw raises e, which must be a Throwable.
func (m *Method) Throw(e *Expr) error {
	return m.statement(func() error {
		if err := m.claim(e); err != nil {
			return err
		}
		if !e.typ.IsReference() || e.typ.IsNull() || !m.throwable(e.typ) {
			return diag.Errorf(diag.TypNotThrowable, "cannot throw %s", e.typ)
		}
		own(e)
		m.mark("throw", m.depth(), "throw "+render(e)+";")
		m.need(need(e))
		if err := m.realize(e); err != nil {
			return err
		}
		m.code.Emit(classfile.OpAthrow)
		m.top().closed = true
		return nil
	})
}

// SuperConstructor calls the superclass constructor args select. It must
// be the first statement of a constructor; field initializers follow it.
func (m *Method) SuperConstructor(args ...*Expr) error {
	return m.statement(func() error {
		if !m.info.IsConstructor() || m.superCalled || m.stmts > 0 {
			return diag.Errorf(diag.SynMisplacedSuperCall, "super(...) must open a constructor")
		}
		if err := m.claim(args...); err != nil {
			return err
		}
		target, err := m.resolve(m.c.info.Super, "<init>", false, args)
		if err != nil {
			return err
		}
		this := m.node(ExprThis, m.this.typ)
		call, err := m.invoke(target, this, true, args)
		if err != nil {
			return err
		}
		own(call)
		parts := make([]string, len(call.args)-1)
		for i, a := range call.args[1:] {
			parts[i] = render(a)
		}
		m.mark("super", m.depth(), "super("+strings.Join(parts, ", ")+");")
		m.need(need(call))
		if err := m.realize(call); err != nil {
			return err
		}
		m.superCalled = true
		m.fieldInits(m.code, false)
		return nil
	})
}

// fieldInits emits the initializers of instance or non-constant static
// fields into b.
func (m *Method) fieldInits(b *bytecode.Buffer, static bool) {
	for _, f := range m.c.fields {
		if !f.hasInit || f.info.IsStatic() != static || f.constantValue() {
			continue
		}
		op := classfile.OpPutstatic
		if !static {
			b.Emit(classfile.OpAload0)
			op = classfile.OpPutfield
		}
		emitConst(b, f.init, f.ref)
		b.EmitU2(op, f.fieldref)
		m.need(1 + f.info.Type.Slots())
	}
}
