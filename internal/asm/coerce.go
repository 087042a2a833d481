package asm

import (
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
	"classbuilder/internal/typeinfo"
)

// stackIndex maps int-like, long, float and double onto the i/l/f/d rows
// of the conversion opcode block that starts at i2l.
func stackIndex(k jtype.Kind) int {
	switch k {
	case jtype.KindLong:
		return 1
	case jtype.KindFloat:
		return 2
	case jtype.KindDouble:
		return 3
	}
	return 0
}

func convOp(from, to jtype.Kind) classfile.Opcode {
	s, t := stackIndex(from), stackIndex(to)
	if t > s {
		t--
	}
	return classfile.OpI2l + classfile.Opcode(3*s+t)
}

// convOps returns the instructions converting a primitive from one kind
// to another, chained through int when no direct form exists.
func convOps(from, to jtype.Kind) []classfile.Opcode {
	if from == to {
		return nil
	}
	var ops []classfile.Opcode
	switch to {
	case jtype.KindByte, jtype.KindShort, jtype.KindChar:
		if stackIndex(from) != 0 {
			ops = append(ops, convOp(from, jtype.KindInt))
		}
		switch {
		case to == jtype.KindByte:
			ops = append(ops, classfile.OpI2b)
		case to == jtype.KindShort && from != jtype.KindByte:
			ops = append(ops, classfile.OpI2s)
		case to == jtype.KindChar:
			ops = append(ops, classfile.OpI2c)
		}
		return ops
	}
	if stackIndex(from) == stackIndex(to) {
		return nil
	}
	return []classfile.Opcode{convOp(from, to)}
}

// widens reports a primitive widening conversion.
func widens(from, to jtype.Kind) bool {
	if from == to || !from.IsNumeric() || !to.IsNumeric() || to == jtype.KindChar {
		return false
	}
	return to.Level() > from.Level()
}

// convert wraps e in a primitive conversion to t.
func (m *Method) convert(e *Expr, t jtype.Type) *Expr {
	if e.typ == t {
		return e
	}
	n := m.implicit(ExprConvert, t, e)
	n.ops = convOps(e.typ.Kind(), t.Kind())
	return n
}

// retype changes the static type of e without emitting anything.
func (m *Method) retype(e *Expr, t jtype.Type) *Expr {
	if e.typ == t {
		return e
	}
	return m.implicit(ExprConvert, t, e)
}

func (m *Method) box(e *Expr) (*Expr, error) {
	bt, ok := jtype.Box(e.typ)
	if !ok {
		return nil, diag.Errorf(diag.TypNotAssignable, "%s has no box type", e.typ)
	}
	n, err := m.invokeNode(classfile.OpInvokestatic, bt.InternalName(), false, "valueOf", bt, []jtype.Type{e.typ}, e)
	if err != nil {
		return nil, err
	}
	n.suppressed = true
	return n, nil
}

func (m *Method) unbox(e *Expr) (*Expr, error) {
	pt, ok := jtype.Unbox(e.typ)
	if !ok {
		return nil, diag.Errorf(diag.TypNotAssignable, "%s is not a box type", e.typ)
	}
	n, err := m.invokeNode(classfile.OpInvokevirtual, e.typ.InternalName(), false, pt.Kind().String()+"Value", pt, nil, e)
	if err != nil {
		return nil, err
	}
	n.suppressed = true
	return n, nil
}

// unboxed unboxes wrapper-typed operands and leaves the rest alone.
func (m *Method) unboxed(e *Expr) (*Expr, error) {
	if _, ok := jtype.Unbox(e.typ); ok {
		return m.unbox(e)
	}
	return e, nil
}

// fitsNarrow reports an int constant that an assignment may narrow.
func fitsNarrow(e *Expr, to jtype.Kind) bool {
	if e.kind != ExprConst || !e.typ.Kind().IsIntLike() {
		return false
	}
	if to != jtype.KindByte && to != jtype.KindShort && to != jtype.KindChar {
		return false
	}
	v, ok := e.value.(int32)
	if !ok {
		return false
	}
	lo, hi := intRange(to)
	return int64(v) >= lo && int64(v) <= hi
}

// assignConv adapts e for storage into a location of type t: identity,
// constant narrowing, primitive widening, boxing, unboxing then widening,
// or reference assignability.
func (m *Method) assignConv(e *Expr, t jtype.Type) (*Expr, error) {
	s := e.typ
	if s == t {
		return e, nil
	}
	if s.IsVoid() {
		return nil, diag.Errorf(diag.TypVoidValue, "void value where %s is required", t)
	}
	switch {
	case s.IsPrimitive() && t.IsPrimitive():
		sk, tk := s.Kind(), t.Kind()
		if sk == jtype.KindBoolean || tk == jtype.KindBoolean {
			break
		}
		if fitsNarrow(e, tk) {
			e.typ = t
			return e, nil
		}
		if widens(sk, tk) {
			return m.convert(e, t), nil
		}
	case s.IsPrimitive():
		bt, _ := jtype.Box(s)
		if typeinfo.IsAssignable(m.c.lookup, bt, t) {
			return m.box(e)
		}
	case t.IsPrimitive():
		u, ok := jtype.Unbox(s)
		if !ok || (u != t && !widens(u.Kind(), t.Kind())) {
			break
		}
		n, err := m.unbox(e)
		if err != nil {
			return nil, err
		}
		return m.convert(n, t), nil
	default:
		if typeinfo.IsAssignable(m.c.lookup, s, t) {
			return e, nil
		}
	}
	return nil, diag.Errorf(diag.TypNotAssignable, "%s is not assignable to %s", s, t)
}

// argConvertible reports whether an argument passes to a parameter in
// method invocation context; boxing is allowed only in the second phase.
func (m *Method) argConvertible(s, p jtype.Type, boxing bool) bool {
	switch {
	case s == p:
		return true
	case s.IsVoid():
		return false
	case s.IsPrimitive() && p.IsPrimitive():
		return widens(s.Kind(), p.Kind())
	case s.IsReference() && p.IsReference():
		return typeinfo.IsAssignable(m.c.lookup, s, p)
	case !boxing:
		return false
	case s.IsPrimitive():
		bt, _ := jtype.Box(s)
		return typeinfo.IsAssignable(m.c.lookup, bt, p)
	}
	u, ok := jtype.Unbox(s)
	return ok && (u == p || widens(u.Kind(), p.Kind()))
}

func (m *Method) isInterface(t jtype.Type) bool {
	if t.IsArray() || !t.IsReference() || t.IsNull() {
		return false
	}
	c, ok := m.c.lookup.Class(t.InternalName())
	return ok && c.IsInterface()
}

// castConv applies an explicit cast. Downcasts and casts involving
// interfaces get a checkcast that may fail at run time.
func (m *Method) castConv(e *Expr, t jtype.Type) (*Expr, error) {
	s := e.typ
	bad := func() (*Expr, error) {
		return nil, diag.Errorf(diag.TypInvalidCast, "cannot cast %s to %s", s, t)
	}
	switch {
	case s.IsVoid() || t.IsVoid():
		return bad()
	case s == t:
		return e, nil
	case s.IsPrimitive() && t.IsPrimitive():
		if (s.Kind() == jtype.KindBoolean) != (t.Kind() == jtype.KindBoolean) {
			return bad()
		}
		return m.convert(e, t), nil
	case s.IsPrimitive():
		bt, _ := jtype.Box(s)
		if !typeinfo.IsAssignable(m.c.lookup, bt, t) {
			return bad()
		}
		return m.box(e)
	case t.IsPrimitive():
		bt, _ := jtype.Box(t)
		if _, ok := jtype.Unbox(s); !ok {
			if !typeinfo.IsAssignable(m.c.lookup, bt, s) {
				return bad()
			}
			var err error
			if e, err = m.checkcast(e, bt); err != nil {
				return nil, err
			}
			s = bt
		}
		u, _ := jtype.Unbox(s)
		if u != t && !widens(u.Kind(), t.Kind()) {
			return bad()
		}
		n, err := m.unbox(e)
		if err != nil {
			return nil, err
		}
		return m.convert(n, t), nil
	case typeinfo.IsAssignable(m.c.lookup, s, t):
		return m.retype(e, t), nil
	case typeinfo.IsAssignable(m.c.lookup, t, s),
		m.isInterface(s) && !t.IsArray(),
		m.isInterface(t) && !s.IsArray():
		return m.checkcast(e, t)
	}
	return bad()
}

func (m *Method) checkcast(e *Expr, t jtype.Type) (*Expr, error) {
	idx, err := m.c.pool.Class(t.InternalName())
	if err != nil {
		return nil, err
	}
	n := m.implicit(ExprCheckCast, t, e)
	n.ref = idx
	return n, nil
}
