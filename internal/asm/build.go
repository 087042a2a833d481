package asm

import (
	"math"

	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// constType infers the type of a Go constant.
func constType(v any) (jtype.Type, error) {
	switch x := v.(type) {
	case nil:
		return jtype.Null, nil
	case bool:
		return jtype.Boolean, nil
	case int8:
		return jtype.Byte, nil
	case int16:
		return jtype.Short, nil
	case uint16:
		return jtype.Char, nil
	case int32:
		return jtype.Int, nil
	case int:
		if x < math.MinInt32 || x > math.MaxInt32 {
			return jtype.Long, nil
		}
		return jtype.Int, nil
	case int64:
		return jtype.Long, nil
	case float32:
		return jtype.Float, nil
	case float64:
		return jtype.Double, nil
	case string:
		return jtype.String, nil
	case jtype.Type:
		return jtype.Class("java/lang/Class"), nil
	}
	return jtype.Void, diag.Errorf(diag.TypUnsupportedConstant, "unsupported constant %T", v)
}

// Const builds a literal. Go types map onto Java ones: int8 byte, int16
// short, uint16 char, int and int32 int, int64 long, float32 float,
// float64 double, string String, nil null and a jtype.Type a class literal.
func (m *Method) Const(v any) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	t, err := constType(v)
	if err != nil {
		return nil, m.fail(err)
	}
	var payload any = v
	if ct, ok := v.(jtype.Type); ok {
		if ct.IsVoid() || ct.IsNull() {
			return nil, m.fail(diag.Errorf(diag.TypUnsupportedConstant, "no class literal for %s", ct))
		}
		if ct.IsPrimitive() {
			// int.class is Integer.TYPE
			bt, _ := jtype.Box(ct)
			idx, err := m.c.pool.Fieldref(bt.InternalName(), "TYPE", "Ljava/lang/Class;")
			if err != nil {
				return nil, m.fail(err)
			}
			e := m.node(ExprStaticGet, t)
			e.ref, e.sym, e.owner, e.value = idx, "TYPE", bt, ct
			return e, nil
		}
		payload = ct.Resolve(m.c.name)
	} else if t != jtype.Null && t != jtype.String {
		if payload, err = constantFor(t, v); err != nil {
			return nil, m.fail(err)
		}
	}
	ref, err := m.c.internConst(t, payload)
	if err != nil {
		return nil, m.fail(err)
	}
	e := m.node(ExprConst, t)
	e.value, e.ref = payload, ref
	return e, nil
}

func (m *Method) Int(v int32) (*Expr, error) { return m.Const(v) }

func (m *Method) Long(v int64) (*Expr, error) { return m.Const(v) }

func (m *Method) Float(v float32) (*Expr, error) { return m.Const(v) }

func (m *Method) Double(v float64) (*Expr, error) { return m.Const(v) }

func (m *Method) Bool(v bool) (*Expr, error) { return m.Const(v) }

func (m *Method) Char(v rune) (*Expr, error) {
	if v < 0 || v > math.MaxUint16 {
		return nil, m.fail(diag.Errorf(diag.TypUnsupportedConstant, "char %U outside the basic plane", v))
	}
	return m.Const(uint16(v))
}

func (m *Method) Str(v string) (*Expr, error) { return m.Const(v) }

func (m *Method) Null() (*Expr, error) { return m.Const(nil) }

// ClassLit builds t.class.
func (m *Method) ClassLit(t jtype.Type) (*Expr, error) { return m.Const(t) }

func isNullConst(e *Expr) bool {
	return e.kind == ExprConst && e.typ.IsNull()
}

// This loads the receiver.
func (m *Method) This() (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if m.this == nil {
		return nil, m.fail(diag.Errorf(diag.AccNoThis, "this in static method %s", m.info.Name))
	}
	e := m.node(ExprThis, m.this.typ)
	return e, nil
}

// Get loads a local. The local must be definitely assigned.
func (m *Method) Get(l *Local) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if l == nil {
		return nil, m.fail(diag.Errorf(diag.TypOperandMismatch, "missing local"))
	}
	if l.m != m {
		return nil, m.fail(diag.Errorf(diag.SynForeignNode, "local %s belongs to %s", l.name, l.m.where))
	}
	if !m.isAssigned(l) {
		return nil, m.fail(diag.Errorf(diag.AccUnassignedLocal, "local %s might not have been assigned", l.name))
	}
	e := m.node(ExprLocal, l.typ)
	e.local = l
	return e, nil
}

// arrayIndex checks an array operand and an int-like index.
func (m *Method) arrayIndex(arr, idx *Expr) (*Expr, error) {
	if !arr.typ.IsArray() {
		return nil, diag.Errorf(diag.TypNotArray, "%s is not an array", arr.typ)
	}
	i, err := m.unboxed(idx)
	if err != nil {
		return nil, err
	}
	if k := i.typ.Kind(); !k.IsIntLike() || k == jtype.KindBoolean {
		return nil, diag.Errorf(diag.TypOperandMismatch, "array index of type %s", idx.typ)
	}
	return m.convert(i, jtype.Int), nil
}

// Index loads arr[idx].
func (m *Method) Index(arr, idx *Expr) (*Expr, error) {
	return m.result(m.index(arr, idx))
}

func (m *Method) index(arr, idx *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(arr, idx); err != nil {
		return nil, err
	}
	i, err := m.arrayIndex(arr, idx)
	if err != nil {
		return nil, err
	}
	e := m.node(ExprArrayGet, arr.typ.Elem(), arr, i)
	e.op = arrayLoad(arr.typ.Elem())
	return e, nil
}

// arrayLoad selects the element load. boolean and byte arrays share baload.
func arrayLoad(elem jtype.Type) classfile.Opcode {
	switch elem.Kind() {
	case jtype.KindBoolean, jtype.KindByte:
		return classfile.OpBaload
	case jtype.KindChar:
		return classfile.OpCaload
	case jtype.KindShort:
		return classfile.OpSaload
	case jtype.KindInt:
		return classfile.OpIaload
	case jtype.KindLong:
		return classfile.OpLaload
	case jtype.KindFloat:
		return classfile.OpFaload
	case jtype.KindDouble:
		return classfile.OpDaload
	}
	return classfile.OpAaload
}

// arrayStore is arrayLoad's counterpart; the store opcodes sit 0x21 above.
func arrayStore(elem jtype.Type) classfile.Opcode {
	return arrayLoad(elem) + (classfile.OpIastore - classfile.OpIaload)
}

// Len loads arr.length.
func (m *Method) Len(arr *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(arr); err != nil {
		return nil, m.fail(err)
	}
	if !arr.typ.IsArray() {
		return nil, m.fail(diag.Errorf(diag.TypNotArray, "%s is not an array", arr.typ))
	}
	return m.node(ExprArrayLength, jtype.Int, arr), nil
}

var arrayCodes = map[jtype.Kind]uint8{
	jtype.KindBoolean: classfile.ArrayTBoolean,
	jtype.KindChar:    classfile.ArrayTChar,
	jtype.KindFloat:   classfile.ArrayTFloat,
	jtype.KindDouble:  classfile.ArrayTDouble,
	jtype.KindByte:    classfile.ArrayTByte,
	jtype.KindShort:   classfile.ArrayTShort,
	jtype.KindInt:     classfile.ArrayTInt,
	jtype.KindLong:    classfile.ArrayTLong,
}

// NewArray allocates a one-dimensional array of elem with length n.
func (m *Method) NewArray(elem jtype.Type, n *Expr) (*Expr, error) {
	return m.result(m.newArray(elem, n))
}

func (m *Method) newArray(elem jtype.Type, n *Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(n); err != nil {
		return nil, err
	}
	elem = elem.Resolve(m.c.name)
	if elem.IsVoid() || elem.IsNull() {
		return nil, diag.Errorf(diag.TypOperandMismatch, "no arrays of %s", elem)
	}
	length, err := m.unboxed(n)
	if err != nil {
		return nil, err
	}
	if k := length.typ.Kind(); !k.IsIntLike() || k == jtype.KindBoolean {
		return nil, diag.Errorf(diag.TypOperandMismatch, "array length of type %s", n.typ)
	}
	e := m.node(ExprNewArray, jtype.ArrayOf(elem), m.convert(length, jtype.Int))
	if elem.IsPrimitive() {
		e.op = classfile.OpNewarray
		e.ref = uint16(arrayCodes[elem.Kind()])
		return e, nil
	}
	e.op = classfile.OpAnewarray
	if e.ref, err = m.c.pool.Class(elem.InternalName()); err != nil {
		return nil, err
	}
	return e, nil
}

// Cast converts e explicitly to t.
func (m *Method) Cast(e *Expr, t jtype.Type) (*Expr, error) {
	return m.result(m.cast(e, t))
}

func (m *Method) cast(e *Expr, t jtype.Type) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(e); err != nil {
		return nil, err
	}
	t = t.Resolve(m.c.name)
	n, err := m.castConv(e, t)
	if err != nil {
		return nil, err
	}
	// the visible cast node emits nothing; the chain below does the work
	c := m.node(ExprConvert, t, n)
	c.sym = "cast"
	return c, nil
}

// InstanceOf tests e against the reference type t.
func (m *Method) InstanceOf(e *Expr, t jtype.Type) (*Expr, error) {
	return m.result(m.instanceOf(e, t))
}

func (m *Method) instanceOf(e *Expr, t jtype.Type) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(e); err != nil {
		return nil, err
	}
	t = t.Resolve(m.c.name)
	if !e.typ.IsReference() || !t.IsReference() || t.IsNull() {
		return nil, diag.Errorf(diag.TypOperandMismatch, "instanceof needs references, have %s and %s", e.typ, t)
	}
	idx, err := m.c.pool.Class(t.InternalName())
	if err != nil {
		return nil, err
	}
	n := m.node(ExprInstanceOf, jtype.Boolean, e)
	n.ref, n.owner = idx, t
	return n, nil
}

// IsNull tests e == null.
func (m *Method) IsNull(e *Expr) (*Expr, error) {
	return m.result(m.nullTest(e, CmpEq))
}

// NotNull tests e != null.
func (m *Method) NotNull(e *Expr) (*Expr, error) {
	return m.result(m.nullTest(e, CmpNe))
}

func (m *Method) nullTest(e *Expr, cmp Cmp) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(e); err != nil {
		return nil, err
	}
	if !e.typ.IsReference() {
		return nil, diag.Errorf(diag.TypOperandMismatch, "null test on %s", e.typ)
	}
	n := m.node(ExprNullTest, jtype.Boolean, e)
	n.cmp = cmp
	return n, nil
}
