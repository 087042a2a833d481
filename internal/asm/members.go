package asm

import (
	"math"

	"classbuilder/internal/bytecode"
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
	"classbuilder/internal/typeinfo"
)

// Field is a declared field.
type Field struct {
	c           *Class
	info        *typeinfo.Field
	init        any
	hasInit     bool
	ref         uint16 // pool index of the initializer constant
	fieldref    uint16
	annotations []annotationBlob
}

func (f *Field) Name() string { return f.info.Name }

func (f *Field) Type() jtype.Type { return f.info.Type }

func (f *Field) Flags() classfile.AccessFlags { return f.info.Flags }

// Param describes one formal parameter.
type Param struct {
	Name string
	Type jtype.Type
}

// P is shorthand for a Param.
func P(name string, t jtype.Type) Param { return Param{Name: name, Type: t} }

// AddField declares a field. Interface fields are always public static final.
func (c *Class) AddField(flags classfile.AccessFlags, t jtype.Type, name string) (*Field, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if err := checkName(name, false); err != nil {
		return nil, c.fail(err)
	}
	t = t.Resolve(c.name)
	if t.IsVoid() || t.IsNull() {
		return nil, c.fail(diag.Errorf(diag.AsmBadDeclaration, "field %s cannot have type %s", name, t))
	}
	if c.info.Field(name) != nil {
		return nil, c.fail(diag.Errorf(diag.SynDuplicateMember, "field %s already declared", name))
	}
	if c.info.IsInterface() {
		flags |= classfile.AccPublic | classfile.AccStatic | classfile.AccFinal
	}
	if flags.IsFinal() && flags&classfile.AccVolatile != 0 {
		return nil, c.fail(diag.Errorf(diag.AsmBadDeclaration, "field %s is both final and volatile", name))
	}
	fieldref, err := c.pool.Fieldref(c.name, name, t.Descriptor())
	if err != nil {
		return nil, c.fail(err)
	}
	info := &typeinfo.Field{Owner: c.name, Name: name, Type: t, Flags: flags}
	c.info.Fields = append(c.info.Fields, info)
	f := &Field{c: c, info: info, fieldref: fieldref}
	c.fields = append(c.fields, f)
	c.publish()
	return f, nil
}

// Init sets a constant initial value. Static final primitives and strings
// become ConstantValue attributes; other statics are assigned in <clinit>
// and instance fields at the start of every constructor that calls super.
func (f *Field) Init(v any) error {
	c := f.c
	if err := c.usable(); err != nil {
		return err
	}
	for _, m := range c.methods {
		if m.finished && m.inInitializer(f.info.IsStatic()) {
			return c.fail(diag.Errorf(diag.AsmBadDeclaration, "initializer for %s after %s was finished", f.info.Name, m.info.Name))
		}
	}
	cv, err := constantFor(f.info.Type, v)
	if err != nil {
		return c.fail(err)
	}
	f.init, f.hasInit = cv, true
	if f.ref, err = c.internConst(f.info.Type, cv); err != nil {
		return c.fail(err)
	}
	return nil
}

// constantValue reports whether the field is written as ConstantValue.
func (f *Field) constantValue() bool {
	t := f.info.Type
	return f.hasInit && f.info.IsStatic() && f.info.Flags.IsFinal() &&
		f.init != nil && (t.IsPrimitive() || t == jtype.String)
}

// constantFor checks that v can initialize a t and normalizes it to the
// payload stored on constant nodes.
func constantFor(t jtype.Type, v any) (any, error) {
	if v == nil {
		if t.IsReference() {
			return nil, nil
		}
		return nil, diag.Errorf(diag.TypNotAssignable, "null is not a %s", t)
	}
	if t.IsReference() {
		if s, ok := v.(string); ok && (t == jtype.String || t == jtype.Object) {
			return s, nil
		}
		return nil, diag.Errorf(diag.TypUnsupportedConstant, "cannot initialize %s from %T", t, v)
	}
	var i int64
	var fl float64
	isInt, isFloat := false, false
	switch x := v.(type) {
	case bool:
		if t.Kind() != jtype.KindBoolean {
			return nil, diag.Errorf(diag.TypNotAssignable, "boolean is not a %s", t)
		}
		return x, nil
	case int:
		i, isInt = int64(x), true
	case int8:
		i, isInt = int64(x), true
	case int16:
		i, isInt = int64(x), true
	case int32:
		i, isInt = int64(x), true
	case int64:
		i, isInt = x, true
	case uint16:
		i, isInt = int64(x), true
	case float32:
		fl, isFloat = float64(x), true
	case float64:
		fl, isFloat = x, true
	default:
		return nil, diag.Errorf(diag.TypUnsupportedConstant, "unsupported constant %T", v)
	}
	switch t.Kind() {
	case jtype.KindBoolean:
		return nil, diag.Errorf(diag.TypNotAssignable, "%v is not a boolean", v)
	case jtype.KindLong:
		if isInt {
			return i, nil
		}
	case jtype.KindFloat:
		if isInt {
			return float32(i), nil
		}
		if isFloat {
			return float32(fl), nil
		}
	case jtype.KindDouble:
		if isInt {
			return float64(i), nil
		}
		return fl, nil
	default:
		lo, hi := intRange(t.Kind())
		if isInt && i >= lo && i <= hi {
			return int32(i), nil
		}
	}
	return nil, diag.Errorf(diag.TypNotAssignable, "constant %v does not fit %s", v, t)
}

func intRange(k jtype.Kind) (int64, int64) {
	switch k {
	case jtype.KindByte:
		return math.MinInt8, math.MaxInt8
	case jtype.KindShort:
		return math.MinInt16, math.MaxInt16
	case jtype.KindChar:
		return 0, math.MaxUint16
	}
	return math.MinInt32, math.MaxInt32
}

// internConst interns the pool entry an ldc of v needs, or returns 0 when
// the value has a short form.
func (c *Class) internConst(t jtype.Type, v any) (uint16, error) {
	switch x := v.(type) {
	case nil, bool:
		return 0, nil
	case int32:
		if x >= math.MinInt16 && x <= math.MaxInt16 {
			return 0, nil
		}
		return c.pool.Integer(x)
	case int64:
		if x == 0 || x == 1 {
			return 0, nil
		}
		return c.pool.Long(x)
	case float32:
		if (x == 0 && !math.Signbit(float64(x))) || x == 1 || x == 2 {
			return 0, nil
		}
		return c.pool.Float(x)
	case float64:
		if (x == 0 && !math.Signbit(x)) || x == 1 {
			return 0, nil
		}
		return c.pool.Double(x)
	case string:
		return c.pool.String(x)
	case jtype.Type:
		return c.pool.Class(x.Resolve(c.name).InternalName())
	}
	return 0, diag.Errorf(diag.TypUnsupportedConstant, "unsupported constant %T for %s", v, t)
}

// emitConst pushes a constant prepared by internConst.
func emitConst(b *bytecode.Buffer, v any, ref uint16) {
	switch x := v.(type) {
	case nil:
		b.Emit(classfile.OpAconstNull)
	case bool:
		if x {
			b.Emit(classfile.OpIconst0 + 1)
		} else {
			b.Emit(classfile.OpIconst0)
		}
	case int32:
		switch {
		case x >= -1 && x <= 5:
			b.Emit(classfile.OpIconstM1 + classfile.Opcode(x+1))
		case x >= math.MinInt8 && x <= math.MaxInt8:
			b.EmitU1(classfile.OpBipush, uint8(int8(x)))
		case x >= math.MinInt16 && x <= math.MaxInt16:
			b.EmitU2(classfile.OpSipush, uint16(int16(x)))
		default:
			b.Ldc(ref, false)
		}
	case int64:
		if ref == 0 {
			b.Emit(classfile.OpLconst0 + classfile.Opcode(x))
			return
		}
		b.Ldc(ref, true)
	case float32:
		if ref == 0 {
			b.Emit(classfile.OpFconst0 + classfile.Opcode(x))
			return
		}
		b.Ldc(ref, false)
	case float64:
		if ref == 0 {
			b.Emit(classfile.OpDconst0 + classfile.Opcode(x))
			return
		}
		b.Ldc(ref, true)
	default:
		b.Ldc(ref, false)
	}
}

// declareMethod records a method signature on the class.
func (c *Class) declareMethod(flags classfile.AccessFlags, ret jtype.Type, name string, params []Param) (*typeinfo.Method, error) {
	if name != "<init>" && name != "<clinit>" {
		if err := checkName(name, false); err != nil {
			return nil, err
		}
	}
	ret = ret.Resolve(c.name)
	types := make([]jtype.Type, len(params))
	for i, p := range params {
		if p.Type.IsVoid() || p.Type.IsNull() {
			return nil, diag.Errorf(diag.AsmBadDeclaration, "parameter %s of %s cannot have type %s", p.Name, name, p.Type)
		}
		if err := checkName(p.Name, false); err != nil {
			return nil, err
		}
		types[i] = p.Type.Resolve(c.name)
	}
	info := &typeinfo.Method{Owner: c.name, Name: name, Params: types, Return: ret, Flags: flags}
	desc := info.Descriptor()
	for _, m := range c.info.Methods {
		if m.Name == name && m.Descriptor() == desc {
			return nil, diag.Errorf(diag.SynDuplicateMember, "method %s%s already declared", name, desc)
		}
	}
	if c.info.IsInterface() && name != "<clinit>" {
		if name == "<init>" {
			return nil, diag.Errorf(diag.AsmBadDeclaration, "interface %s cannot declare constructors", c.name)
		}
		if flags.IsStatic() {
			return nil, diag.Errorf(diag.AsmBadDeclaration, "interface method %s cannot be static", name)
		}
		info.Flags |= classfile.AccPublic | classfile.AccAbstract
	}
	if info.Flags.IsAbstract() {
		switch {
		case !c.info.Flags.IsAbstract():
			return nil, diag.Errorf(diag.AsmBadDeclaration, "abstract method %s in concrete class %s", name, c.name)
		case info.Flags&(classfile.AccPrivate|classfile.AccStatic|classfile.AccFinal|classfile.AccNative) != 0:
			return nil, diag.Errorf(diag.AsmBadDeclaration, "abstract method %s has incompatible modifiers %s", name, info.Flags.Modifiers(true))
		case name == "<init>":
			return nil, diag.Errorf(diag.AsmBadDeclaration, "constructor cannot be abstract")
		}
	}
	c.info.Methods = append(c.info.Methods, info)
	c.publish()
	return info, nil
}

// Method declares a method and returns its assembler. Abstract methods
// have no body; every other method must be closed with End.
func (c *Class) Method(flags classfile.AccessFlags, ret jtype.Type, name string, params ...Param) (*Method, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	if name == "<init>" || name == "<clinit>" {
		return nil, c.fail(diag.Errorf(diag.AsmBadDeclaration, "use Constructor or StaticInit for %s", name))
	}
	info, err := c.declareMethod(flags, ret, name, params)
	if err != nil {
		return nil, c.fail(err)
	}
	return c.newMethod(info, params)
}

// Constructor declares an <init> method.
func (c *Class) Constructor(flags classfile.AccessFlags, params ...Param) (*Method, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	flags &^= classfile.AccStatic | classfile.AccAbstract | classfile.AccFinal
	info, err := c.declareMethod(flags, jtype.Void, "<init>", params)
	if err != nil {
		return nil, c.fail(err)
	}
	return c.newMethod(info, params)
}

// StaticInit declares the static initializer. Initializers of non-final
// static fields run before its first statement.
func (c *Class) StaticInit() (*Method, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	info, err := c.declareMethod(classfile.AccStatic, jtype.Void, "<clinit>", nil)
	if err != nil {
		return nil, c.fail(err)
	}
	return c.newMethod(info, nil)
}

// Throws adds types to the method's Exceptions attribute.
func (m *Method) Throws(types ...jtype.Type) error {
	c := m.c
	if err := c.usable(); err != nil {
		return err
	}
	for _, t := range types {
		t = t.Resolve(c.name)
		if !typeinfo.IsAssignable(c.lookup, t, jtype.Throwable) {
			return m.fail(diag.Errorf(diag.TypNotThrowable, "%s is not throwable", t))
		}
		idx, err := c.pool.Class(t.InternalName())
		if err != nil {
			return m.fail(err)
		}
		m.throws = append(m.throws, idx)
		m.throwNames = append(m.throwNames, t)
	}
	return nil
}
