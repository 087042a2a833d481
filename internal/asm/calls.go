package asm

import (
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
	"classbuilder/internal/typeinfo"
)

// invokeNode builds a call whose target is already known. args holds the
// receiver first for instance calls.
func (m *Method) invokeNode(op classfile.Opcode, owner string, iface bool, name string, ret jtype.Type, params []jtype.Type, args ...*Expr) (*Expr, error) {
	desc := jtype.MethodDescriptor(ret, params...)
	var (
		idx uint16
		err error
	)
	if iface {
		idx, err = m.c.pool.InterfaceMethodref(owner, name, desc)
	} else {
		idx, err = m.c.pool.Methodref(owner, name, desc)
	}
	if err != nil {
		return nil, err
	}
	e := m.node(ExprInvoke, ret, args...)
	e.op, e.ref, e.sym = op, idx, name
	e.owner = jtype.Class(owner)
	if iface && op == classfile.OpInvokeinterface {
		for _, p := range params {
			e.slots += p.Slots()
		}
	}
	return e, nil
}

// resolve picks the overload of name on owner that args select: arity and
// static filter, then strict applicability, then applicability with
// boxing, then the most specific candidate.
func (m *Method) resolve(owner, name string, static bool, args []*Expr) (*typeinfo.Method, error) {
	all, err := typeinfo.FindMethods(m.c.lookup, owner, name)
	if err != nil {
		return nil, err
	}
	var sized, kind []*typeinfo.Method
	for _, cand := range all {
		if len(cand.Params) == len(args) {
			sized = append(sized, cand)
		}
	}
	if len(sized) == 0 {
		return nil, diag.Errorf(diag.TypArgumentMismatch, "no %s.%s takes %d arguments", owner, name, len(args))
	}
	for _, cand := range sized {
		if cand.IsStatic() == static {
			kind = append(kind, cand)
		}
	}
	if len(kind) == 0 {
		if static {
			return nil, diag.Errorf(diag.AccStaticMismatch, "%s.%s is an instance method", owner, name)
		}
		return nil, diag.Errorf(diag.AccStaticMismatch, "%s.%s is static", owner, name)
	}
	var visible []*typeinfo.Method
	for _, cand := range kind {
		if m.c.accessible(cand.Owner, cand.Flags) {
			visible = append(visible, cand)
		}
	}
	if len(visible) == 0 {
		return nil, diag.Errorf(diag.AccInvisible, "%s.%s is not accessible from %s", owner, name, m.c.name)
	}
	for _, boxing := range []bool{false, true} {
		var ok []*typeinfo.Method
		for _, cand := range visible {
			if m.applicable(cand, args, boxing) {
				ok = append(ok, cand)
			}
		}
		switch len(ok) {
		case 0:
			continue
		case 1:
			return ok[0], nil
		}
		if best := m.mostSpecific(ok); best != nil {
			return best, nil
		}
		return nil, diag.Errorf(diag.TypAmbiguousCall, "call to %s.%s is ambiguous between %s and %s", owner, name, ok[0].Signature(), ok[1].Signature())
	}
	return nil, diag.Errorf(diag.TypArgumentMismatch, "no %s.%s accepts (%s)", owner, name, argTypes(args))
}

func argTypes(args []*Expr) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += a.typ.String()
	}
	return s
}

func (m *Method) applicable(cand *typeinfo.Method, args []*Expr, boxing bool) bool {
	for i, a := range args {
		if !m.argConvertible(a.typ, cand.Params[i], boxing) {
			return false
		}
	}
	return true
}

// mostSpecific returns the candidate whose parameters all convert to
// every other candidate's, or nil when there is none.
func (m *Method) mostSpecific(cands []*typeinfo.Method) *typeinfo.Method {
	for _, a := range cands {
		best := true
		for _, b := range cands {
			if a == b {
				continue
			}
			for i := range a.Params {
				if !m.argConvertible(a.Params[i], b.Params[i], false) {
					best = false
					break
				}
			}
			if !best {
				break
			}
		}
		if best {
			return a
		}
	}
	return nil
}

// coerceArgs converts every argument to its parameter type.
func (m *Method) coerceArgs(target *typeinfo.Method, args []*Expr) ([]*Expr, error) {
	out := make([]*Expr, len(args))
	for i, a := range args {
		c, err := m.assignConv(a, target.Params[i])
		if err != nil {
			return nil, diag.Errorf(diag.TypArgumentMismatch, "argument %d of %s: %v", i+1, target.Signature(), err)
		}
		out[i] = c
	}
	return out, nil
}

// invoke builds the call node for a resolved target.
func (m *Method) invoke(target *typeinfo.Method, recv *Expr, special bool, args []*Expr) (*Expr, error) {
	owner, err := typeinfo.Lookup(m.c.lookup, target.Owner)
	if err != nil {
		return nil, err
	}
	conv, err := m.coerceArgs(target, args)
	if err != nil {
		return nil, err
	}
	op := classfile.OpInvokevirtual
	switch {
	case target.IsStatic():
		op = classfile.OpInvokestatic
	case special || target.IsConstructor() || (target.Flags.IsPrivate() && target.Owner == m.c.name):
		op = classfile.OpInvokespecial
	case owner.IsInterface():
		op = classfile.OpInvokeinterface
	}
	if recv != nil {
		conv = append([]*Expr{recv}, conv...)
	}
	return m.invokeNode(op, target.Owner, owner.IsInterface(), target.Name, target.Return, target.Params, conv...)
}

// Call invokes an instance method on recv.
func (m *Method) Call(recv *Expr, name string, args ...*Expr) (*Expr, error) {
	return m.result(m.call(recv, name, args))
}

func (m *Method) call(recv *Expr, name string, args []*Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(append([]*Expr{recv}, args...)...); err != nil {
		return nil, err
	}
	t := recv.typ
	if !t.IsReference() || t.IsNull() {
		return nil, diag.Errorf(diag.TypOperandMismatch, "cannot call %s on %s", name, t)
	}
	owner := t.InternalName()
	if t.IsArray() {
		owner = "java/lang/Object"
	}
	target, err := m.resolve(owner, name, false, args)
	if err != nil {
		return nil, err
	}
	return m.invoke(target, recv, false, args)
}

// CallStatic invokes a static method of owner.
func (m *Method) CallStatic(owner jtype.Type, name string, args ...*Expr) (*Expr, error) {
	return m.result(m.callStatic(owner, name, args))
}

func (m *Method) callStatic(owner jtype.Type, name string, args []*Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(args...); err != nil {
		return nil, err
	}
	owner = owner.Resolve(m.c.name)
	target, err := m.resolve(owner.InternalName(), name, true, args)
	if err != nil {
		return nil, err
	}
	return m.invoke(target, nil, false, args)
}

// CallSuper invokes the superclass implementation of a method on this.
func (m *Method) CallSuper(name string, args ...*Expr) (*Expr, error) {
	return m.result(m.callSuper(name, args))
}

func (m *Method) callSuper(name string, args []*Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if m.info.IsStatic() {
		return nil, diag.Errorf(diag.AccNoThis, "super.%s in static method", name)
	}
	if err := m.claim(args...); err != nil {
		return nil, err
	}
	target, err := m.resolve(m.c.info.Super, name, false, args)
	if err != nil {
		return nil, err
	}
	if target.IsAbstract() {
		return nil, diag.Errorf(diag.AccNoSuchMethod, "super.%s is abstract", target.Signature())
	}
	this := m.node(ExprThis, jtype.Class(m.c.name))
	this.sym = "super"
	return m.invoke(target, this, true, args)
}

// New constructs an instance of t with the constructor args select.
func (m *Method) New(t jtype.Type, args ...*Expr) (*Expr, error) {
	return m.result(m.newObject(t, args))
}

func (m *Method) newObject(t jtype.Type, args []*Expr) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(args...); err != nil {
		return nil, err
	}
	t = t.Resolve(m.c.name)
	if t.IsArray() || !t.IsReference() || t.IsNull() {
		return nil, diag.Errorf(diag.TypOperandMismatch, "cannot instantiate %s", t)
	}
	cls, err := typeinfo.Lookup(m.c.lookup, t.InternalName())
	if err != nil {
		return nil, err
	}
	if cls.IsInterface() || cls.Flags.IsAbstract() {
		return nil, diag.Errorf(diag.TypOperandMismatch, "cannot instantiate abstract %s", t)
	}
	target, err := m.resolve(cls.Name, "<init>", false, args)
	if err != nil {
		return nil, err
	}
	conv, err := m.coerceArgs(target, args)
	if err != nil {
		return nil, err
	}
	classIdx, err := m.c.pool.Class(cls.Name)
	if err != nil {
		return nil, err
	}
	ctor, err := m.c.pool.Methodref(cls.Name, "<init>", target.Descriptor())
	if err != nil {
		return nil, err
	}
	e := m.node(ExprNew, t, conv...)
	e.ref, e.aux = ctor, []uint16{classIdx}
	return e, nil
}

// field resolves a field for reading or writing.
func (m *Method) field(owner jtype.Type, name string, static bool) (*typeinfo.Field, uint16, error) {
	if !owner.IsReference() || owner.IsArray() || owner.IsNull() {
		return nil, 0, diag.Errorf(diag.TypOperandMismatch, "%s has no fields", owner)
	}
	f, err := typeinfo.FindField(m.c.lookup, owner.InternalName(), name)
	if err != nil {
		return nil, 0, err
	}
	if f.IsStatic() != static {
		if static {
			return nil, 0, diag.Errorf(diag.AccStaticMismatch, "%s.%s is an instance field", f.Owner, name)
		}
		return nil, 0, diag.Errorf(diag.AccStaticMismatch, "%s.%s is static", f.Owner, name)
	}
	if !m.c.accessible(f.Owner, f.Flags) {
		return nil, 0, diag.Errorf(diag.AccInvisible, "%s.%s is not accessible from %s", f.Owner, name, m.c.name)
	}
	idx, err := m.c.pool.Fieldref(f.Owner, f.Name, f.Descriptor())
	if err != nil {
		return nil, 0, err
	}
	return f, idx, nil
}

// Static reads a static field.
func (m *Method) Static(owner jtype.Type, name string) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	owner = owner.Resolve(m.c.name)
	f, idx, err := m.field(owner, name, true)
	if err != nil {
		return nil, m.fail(err)
	}
	e := m.node(ExprStaticGet, f.Type)
	e.ref, e.sym, e.owner = idx, name, owner
	return e, nil
}

// Field reads an instance field of obj.
func (m *Method) Field(obj *Expr, name string) (*Expr, error) {
	return m.result(m.getField(obj, name))
}

func (m *Method) getField(obj *Expr, name string) (*Expr, error) {
	if err := m.enter(); err != nil {
		return nil, err
	}
	if err := m.claim(obj); err != nil {
		return nil, err
	}
	f, idx, err := m.field(obj.typ, name, false)
	if err != nil {
		return nil, err
	}
	e := m.node(ExprFieldGet, f.Type, obj)
	e.ref, e.sym = idx, name
	return e, nil
}

// finalCheck rejects writes to final fields outside the owner's
// initializer for the matching kind.
func (m *Method) finalCheck(f *typeinfo.Field) error {
	if !f.Flags.IsFinal() {
		return nil
	}
	if f.Owner == m.c.name && m.inInitializer(f.IsStatic()) {
		return nil
	}
	return diag.Errorf(diag.AccFinalAssign, "cannot assign final field %s.%s", f.Owner, f.Name)
}
