package asm

import (
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// valueFamily is the i/l/f/d offset typed arithmetic opcodes add to their
// int form.
func valueFamily(t jtype.Type) classfile.Opcode {
	return classfile.Opcode(stackIndex(t.Kind()))
}

// binary builds a typed binary operation over already converted operands.
func (m *Method) binary(base classfile.Opcode, sym string, t jtype.Type, a, b *Expr) *Expr {
	e := m.node(ExprBinary, t, a, b)
	e.op, e.sym = base+valueFamily(t), sym
	return e
}

// numeric unboxes both operands and widens them to their promoted type.
func (m *Method) numeric(sym string, a, b *Expr) (jtype.Type, *Expr, *Expr, error) {
	ua, err := m.unboxed(a)
	if err != nil {
		return jtype.Void, nil, nil, err
	}
	ub, err := m.unboxed(b)
	if err != nil {
		return jtype.Void, nil, nil, err
	}
	return m.promoted(sym, ua, ub)
}

func (m *Method) promoted(sym string, a, b *Expr) (jtype.Type, *Expr, *Expr, error) {
	t, ok := jtype.Promote(a.typ, b.typ)
	if !ok || t == jtype.Boolean {
		return jtype.Void, nil, nil, diag.Errorf(diag.TypOperandMismatch, "operator %s on %s and %s", sym, a.typ, b.typ)
	}
	return t, m.convert(a, t), m.convert(b, t), nil
}

func (m *Method) arith(base classfile.Opcode, sym string, a, b *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(a, b); err != nil {
		return nil, err
	}
	if sym == "+" && (a.typ == jtype.String || b.typ == jtype.String) {
		return m.concat(a, b)
	}
	t, ca, cb, err := m.numeric(sym, a, b)
	if err != nil {
		return nil, err
	}
	return m.binary(base, sym, t, ca, cb), nil
}

// Add builds a + b. A String operand makes it a concatenation.
func (m *Method) Add(a, b *Expr) (*Expr, error) {
	return m.result(m.arith(classfile.OpIadd, "+", a, b))
}

func (m *Method) Sub(a, b *Expr) (*Expr, error) {
	return m.result(m.arith(classfile.OpIsub, "-", a, b))
}

func (m *Method) Mul(a, b *Expr) (*Expr, error) {
	return m.result(m.arith(classfile.OpImul, "*", a, b))
}

func (m *Method) Div(a, b *Expr) (*Expr, error) {
	return m.result(m.arith(classfile.OpIdiv, "/", a, b))
}

func (m *Method) Rem(a, b *Expr) (*Expr, error) {
	return m.result(m.arith(classfile.OpIrem, "%", a, b))
}

// bitwise accepts two booleans or two integral operands.
func (m *Method) bitwise(base classfile.Opcode, sym string, a, b *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(a, b); err != nil {
		return nil, err
	}
	ua, err := m.unboxed(a)
	if err != nil {
		return nil, err
	}
	ub, err := m.unboxed(b)
	if err != nil {
		return nil, err
	}
	t, ok := jtype.Promote(ua.typ, ub.typ)
	if !ok || (t != jtype.Boolean && !t.Kind().IsIntegral()) {
		return nil, diag.Errorf(diag.TypOperandMismatch, "operator %s on %s and %s", sym, a.typ, b.typ)
	}
	return m.binary(base, sym, t, m.convert(ua, t), m.convert(ub, t)), nil
}

func (m *Method) And(a, b *Expr) (*Expr, error) {
	return m.result(m.bitwise(classfile.OpIand, "&", a, b))
}

func (m *Method) Or(a, b *Expr) (*Expr, error) {
	return m.result(m.bitwise(classfile.OpIor, "|", a, b))
}

func (m *Method) Xor(a, b *Expr) (*Expr, error) {
	return m.result(m.bitwise(classfile.OpIxor, "^", a, b))
}

// shift takes an integral or boolean left operand, promoted on its own,
// and a byte, short, char or int distance.
func (m *Method) shift(base classfile.Opcode, sym string, a, b *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(a, b); err != nil {
		return nil, err
	}
	ua, err := m.unboxed(a)
	if err != nil {
		return nil, err
	}
	ub, err := m.unboxed(b)
	if err != nil {
		return nil, err
	}
	lk, rk := ua.typ.Kind(), ub.typ.Kind()
	if !lk.IsIntegral() && lk != jtype.KindBoolean {
		return nil, diag.Errorf(diag.TypOperandMismatch, "shift of %s", a.typ)
	}
	if !rk.IsIntLike() || rk == jtype.KindBoolean {
		return nil, diag.Errorf(diag.TypOperandMismatch, "shift distance of type %s", b.typ)
	}
	t := jtype.PromoteUnary(ua.typ)
	if t == jtype.Boolean {
		t = jtype.Int
	}
	var left *Expr
	if ua.typ == jtype.Boolean {
		left = m.retype(ua, t)
	} else {
		left = m.convert(ua, t)
	}
	e := m.node(ExprBinary, t, left, m.convert(ub, jtype.Int))
	e.op, e.sym = base, sym
	if t == jtype.Long {
		e.op++
	}
	return e, nil
}

func (m *Method) Shl(a, b *Expr) (*Expr, error) {
	return m.result(m.shift(classfile.OpIshl, "<<", a, b))
}

func (m *Method) Shr(a, b *Expr) (*Expr, error) {
	return m.result(m.shift(classfile.OpIshr, ">>", a, b))
}

func (m *Method) Ushr(a, b *Expr) (*Expr, error) {
	return m.result(m.shift(classfile.OpIushr, ">>>", a, b))
}

// Neg builds -a.
func (m *Method) Neg(a *Expr) (*Expr, error) {
	return m.result(m.neg(a))
}

func (m *Method) neg(a *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(a); err != nil {
		return nil, err
	}
	ua, err := m.unboxed(a)
	if err != nil {
		return nil, err
	}
	if !ua.typ.Kind().IsNumeric() {
		return nil, diag.Errorf(diag.TypOperandMismatch, "negation of %s", a.typ)
	}
	t := jtype.PromoteUnary(ua.typ)
	e := m.node(ExprUnary, t, m.convert(ua, t))
	e.op, e.sym = classfile.OpIneg+valueFamily(t), "-"
	return e, nil
}

// condition unboxes a Boolean operand and checks it is boolean.
func (m *Method) condition(e *Expr) (*Expr, error) {
	u, err := m.unboxed(e)
	if err != nil {
		return nil, err
	}
	if u.typ != jtype.Boolean {
		return nil, diag.Errorf(diag.TypNotBoolean, "condition of type %s", e.typ)
	}
	return u, nil
}

// Not builds !a.
func (m *Method) Not(a *Expr) (*Expr, error) {
	return m.result(m.not(a))
}

func (m *Method) not(a *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(a); err != nil {
		return nil, err
	}
	c, err := m.condition(a)
	if err != nil {
		return nil, err
	}
	return m.node(ExprNot, jtype.Boolean, c), nil
}

func (m *Method) logic(and bool, a, b *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(a, b); err != nil {
		return nil, err
	}
	ca, err := m.condition(a)
	if err != nil {
		return nil, err
	}
	cb, err := m.condition(b)
	if err != nil {
		return nil, err
	}
	e := m.node(ExprLogic, jtype.Boolean, ca, cb)
	e.and = and
	if and {
		e.sym = "&&"
	} else {
		e.sym = "||"
	}
	return e, nil
}

// AndAlso builds a && b; b is evaluated only when a holds.
func (m *Method) AndAlso(a, b *Expr) (*Expr, error) {
	return m.result(m.logic(true, a, b))
}

// OrElse builds a || b; b is evaluated only when a fails.
func (m *Method) OrElse(a, b *Expr) (*Expr, error) {
	return m.result(m.logic(false, a, b))
}

// compare builds a comparison. Equality accepts two numeric, two boolean
// or two reference operands, unboxing when a box meets a primitive;
// ordering accepts numeric operands only.
func (m *Method) compare(cmp Cmp, a, b *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(a, b); err != nil {
		return nil, err
	}
	equality := cmp == CmpEq || cmp == CmpNe
	if equality && a.typ.IsReference() && b.typ.IsReference() {
		e := m.node(ExprCompare, jtype.Boolean, a, b)
		e.cmp, e.sym = cmp, cmp.String()
		return e, nil
	}
	if a.typ.IsVoid() || b.typ.IsVoid() {
		return nil, diag.Errorf(diag.TypVoidValue, "comparison with a void value")
	}
	ua, err := m.unboxed(a)
	if err != nil {
		return nil, err
	}
	ub, err := m.unboxed(b)
	if err != nil {
		return nil, err
	}
	t, ca, cb := jtype.Boolean, ua, ub
	if !equality || ua.typ != jtype.Boolean || ub.typ != jtype.Boolean {
		if t, ca, cb, err = m.promoted(cmp.String(), ua, ub); err != nil {
			return nil, err
		}
	}
	e := m.node(ExprCompare, jtype.Boolean, ca, cb)
	e.cmp, e.sym, e.owner = cmp, cmp.String(), t
	return e, nil
}

func (m *Method) Eq(a, b *Expr) (*Expr, error) { return m.result(m.compare(CmpEq, a, b)) }

func (m *Method) Ne(a, b *Expr) (*Expr, error) { return m.result(m.compare(CmpNe, a, b)) }

func (m *Method) Lt(a, b *Expr) (*Expr, error) { return m.result(m.compare(CmpLt, a, b)) }

func (m *Method) Le(a, b *Expr) (*Expr, error) { return m.result(m.compare(CmpLe, a, b)) }

func (m *Method) Gt(a, b *Expr) (*Expr, error) { return m.result(m.compare(CmpGt, a, b)) }

func (m *Method) Ge(a, b *Expr) (*Expr, error) { return m.result(m.compare(CmpGe, a, b)) }

// appendDescriptor picks the StringBuilder.append overload for t.
func appendDescriptor(t jtype.Type) jtype.Type {
	switch t.Kind() {
	case jtype.KindByte, jtype.KindShort:
		return jtype.Int
	case jtype.KindReference:
		if t == jtype.String {
			return t
		}
		return jtype.Object
	}
	return t
}

const builder = "java/lang/StringBuilder"

// concat builds a StringBuilder chain over both operands.
func (m *Method) concat(a, b *Expr) (*Expr, error) {
	if a.typ.IsVoid() || b.typ.IsVoid() {
		return nil, diag.Errorf(diag.TypVoidValue, "concatenation with a void value")
	}
	cls, err := m.c.pool.Class(builder)
	if err != nil {
		return nil, err
	}
	init, err := m.c.pool.Methodref(builder, "<init>", "()V")
	if err != nil {
		return nil, err
	}
	str, err := m.c.pool.Methodref(builder, "toString", "()Ljava/lang/String;")
	if err != nil {
		return nil, err
	}
	aux := []uint16{cls, init}
	for _, part := range []*Expr{a, b} {
		idx, err := m.c.pool.Methodref(builder, "append", jtype.MethodDescriptor(jtype.Class(builder), appendDescriptor(part.typ)))
		if err != nil {
			return nil, err
		}
		aux = append(aux, idx)
	}
	e := m.node(ExprConcat, jtype.String, a, b)
	e.ref, e.aux, e.sym = str, aux, "+"
	return e, nil
}
