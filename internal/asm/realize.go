package asm

import (
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// realize emits e in post-order: operands left to right, then the
// operator. It leaves the value (if any) on the operand stack.
func (m *Method) realize(e *Expr) error {
	b := m.code
	if e.isCondition() {
		return m.materialize(e)
	}
	if e.kind == ExprNew {
		b.EmitU2(classfile.OpNew, e.aux[0])
		b.Emit(classfile.OpDup)
	}
	if e.kind == ExprConcat {
		b.EmitU2(classfile.OpNew, e.aux[0])
		b.Emit(classfile.OpDup)
		b.EmitU2(classfile.OpInvokespecial, e.aux[1])
		for i, part := range e.args {
			if err := m.realize(part); err != nil {
				return err
			}
			b.EmitU2(classfile.OpInvokevirtual, e.aux[2+i])
		}
		b.EmitU2(classfile.OpInvokevirtual, e.ref)
		return nil
	}
	for _, a := range e.args {
		if err := m.realize(a); err != nil {
			return err
		}
	}
	switch e.kind {
	case ExprConst:
		emitConst(b, e.value, e.ref)
	case ExprThis:
		b.Emit(classfile.OpAload0)
	case ExprLocal:
		return b.Load(e.local.typ, e.local.slot)
	case ExprStaticGet:
		b.EmitU2(classfile.OpGetstatic, e.ref)
	case ExprFieldGet:
		b.EmitU2(classfile.OpGetfield, e.ref)
	case ExprArrayGet, ExprUnary, ExprBinary:
		b.Emit(e.op)
	case ExprArrayLength:
		b.Emit(classfile.OpArraylength)
	case ExprInvoke:
		if e.op == classfile.OpInvokeinterface {
			return b.EmitInterface(e.ref, e.slots)
		}
		b.EmitU2(e.op, e.ref)
	case ExprNew:
		b.EmitU2(classfile.OpInvokespecial, e.ref)
	case ExprNewArray:
		if e.op == classfile.OpNewarray {
			b.EmitU1(classfile.OpNewarray, uint8(e.ref))
		} else {
			b.EmitU2(classfile.OpAnewarray, e.ref)
		}
	case ExprConvert:
		for _, op := range e.ops {
			b.Emit(op)
		}
	case ExprCheckCast:
		b.EmitU2(classfile.OpCheckcast, e.ref)
	case ExprInstanceOf:
		b.EmitU2(classfile.OpInstanceof, e.ref)
	default:
		return diag.Errorf(diag.TypOperandMismatch, "cannot emit %s node", e.kind)
	}
	return nil
}

// materialize turns a condition into 0 or 1 on the stack.
func (m *Method) materialize(e *Expr) error {
	b := m.code
	if e.kind == ExprLogic {
		return m.logicValue(e)
	}
	if err := m.branch(e, false); err != nil {
		return err
	}
	b.Emit(classfile.OpIconst0 + 1)
	return m.falseTail()
}

// falseTail finishes a value whose false site is on top of the patch
// stack and whose true path has just pushed 1.
func (m *Method) falseTail() error {
	b := m.code
	b.PushPatch(classfile.OpGoto)
	if err := b.SwapPatch(); err != nil {
		return err
	}
	if err := b.PopPatch(); err != nil {
		return err
	}
	b.Emit(classfile.OpIconst0)
	return b.PopPatch()
}

// logicValue materializes a && b or a || b.
func (m *Method) logicValue(e *Expr) error {
	b := m.code
	x, y := e.args[0], e.args[1]
	if e.and {
		// both false sites land on iconst_0
		if err := m.branch(x, false); err != nil {
			return err
		}
		if err := m.branch(y, false); err != nil {
			return err
		}
		b.Emit(classfile.OpIconst0 + 1)
		b.PushPatch(classfile.OpGoto)
		if err := b.SwapPatch(); err != nil {
			return err
		}
		if err := b.PopPatch(); err != nil {
			return err
		}
		if err := b.SwapPatch(); err != nil {
			return err
		}
		if err := b.PopPatch(); err != nil {
			return err
		}
		b.Emit(classfile.OpIconst0)
		return b.PopPatch()
	}
	if err := m.branch(x, true); err != nil {
		return err
	}
	if err := m.branch(y, false); err != nil {
		return err
	}
	if err := b.SwapPatch(); err != nil {
		return err
	}
	if err := b.PopPatch(); err != nil {
		return err
	}
	b.Emit(classfile.OpIconst0 + 1)
	return m.falseTail()
}

// branch emits a test of e that jumps when e equals jumpIf and leaves
// exactly one open site on the patch stack.
func (m *Method) branch(e *Expr, jumpIf bool) error {
	b := m.code
	switch e.kind {
	case ExprCompare:
		x, y := e.args[0], e.args[1]
		cmp := e.cmp
		if !jumpIf {
			cmp = cmp.Negate()
		}
		if x.typ.IsReference() {
			if isNullConst(x) {
				x, y = y, x
			}
			if err := m.realize(x); err != nil {
				return err
			}
			if isNullConst(y) {
				b.PushPatch(nullBranch(cmp))
				return nil
			}
			if err := m.realize(y); err != nil {
				return err
			}
			b.PushPatch(classfile.OpIfAcmpeq + classfile.Opcode(cmp))
			return nil
		}
		if err := m.realize(x); err != nil {
			return err
		}
		if err := m.realize(y); err != nil {
			return err
		}
		switch x.typ.Kind() {
		case jtype.KindLong:
			b.Emit(classfile.OpLcmp)
		case jtype.KindFloat:
			b.Emit(nanCompare(e.cmp, classfile.OpFcmpl, classfile.OpFcmpg))
		case jtype.KindDouble:
			b.Emit(nanCompare(e.cmp, classfile.OpDcmpl, classfile.OpDcmpg))
		default:
			b.PushPatch(classfile.OpIfIcmpeq + classfile.Opcode(cmp))
			return nil
		}
		b.PushPatch(classfile.OpIfeq + classfile.Opcode(cmp))
		return nil
	case ExprNullTest:
		cmp := e.cmp
		if !jumpIf {
			cmp = cmp.Negate()
		}
		if err := m.realize(e.args[0]); err != nil {
			return err
		}
		b.PushPatch(nullBranch(cmp))
		return nil
	case ExprNot:
		return m.branch(e.args[0], !jumpIf)
	}
	if err := m.realize(e); err != nil {
		return err
	}
	if jumpIf {
		b.PushPatch(classfile.OpIfne)
	} else {
		b.PushPatch(classfile.OpIfeq)
	}
	return nil
}

func nullBranch(cmp Cmp) classfile.Opcode {
	if cmp == CmpEq {
		return classfile.OpIfnull
	}
	return classfile.OpIfnonnull
}

// nanCompare picks the compare whose NaN result makes the test false:
// the g form for < and <=, the l form otherwise.
func nanCompare(cmp Cmp, l, g classfile.Opcode) classfile.Opcode {
	if cmp == CmpLt || cmp == CmpLe {
		return g
	}
	return l
}

// need estimates the operand-stack words evaluating e takes.
func need(e *Expr) int {
	n := 0
	switch e.kind {
	case ExprNew:
		n = seqNeed(2, e.args)
	case ExprConcat:
		n = 2
		for _, part := range e.args {
			n = max(n, 1+need(part))
		}
	case ExprLogic, ExprNot:
		for _, a := range e.args {
			n = max(n, need(a))
		}
	default:
		n = seqNeed(0, e.args)
	}
	return max(n, e.typ.Slots(), 1)
}

// seqNeed is the peak of evaluating args in order on top of acc words.
func seqNeed(acc int, args []*Expr) int {
	n := acc
	for _, a := range args {
		n = max(n, acc+need(a))
		acc += a.typ.Slots()
	}
	return max(n, acc)
}
