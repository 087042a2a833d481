package recipe

import (
	"errors"
	"strings"
	"unicode/utf8"

	"fortio.org/safecast"

	"classbuilder/internal/asm"
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
	"classbuilder/internal/typeinfo"
)

// Compile assembles every class of f. Classes of one recipe may refer to
// each other: they share a session over base, and superclasses declared
// in the recipe are started first. The returned classes are complete but
// not yet serialized.
func Compile(f *File, base typeinfo.Provider, opts asm.Options) ([]*asm.Class, error) {
	if base == nil {
		base = typeinfo.Default()
	}
	session := typeinfo.NewSession(base)
	opts.Provider = session

	order, err := f.order()
	if err != nil {
		return nil, err
	}
	units := make([]*unit, 0, len(order))
	for _, rc := range order {
		u, err := f.declare(rc, opts)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	out := make([]*asm.Class, 0, len(units))
	for _, u := range units {
		if err := u.define(); err != nil {
			return nil, err
		}
		out = append(out, u.cls)
	}
	return out, nil
}

// order sorts classes so that a recipe superclass precedes its subclasses.
func (f *File) order() ([]*Class, error) {
	byName := make(map[string]*Class, len(f.Classes))
	for i := range f.Classes {
		byName[f.Classes[i].Name] = &f.Classes[i]
	}
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(f.Classes))
	out := make([]*Class, 0, len(f.Classes))
	var visit func(c *Class) error
	visit = func(c *Class) error {
		switch state[c.Name] {
		case done:
			return nil
		case visiting:
			return diag.Errorf(diag.RecInvalid, "inheritance cycle through %s", c.Name)
		}
		state[c.Name] = visiting
		if sup := byName[c.Extends]; sup != nil {
			if err := visit(sup); err != nil {
				return err
			}
		}
		state[c.Name] = done
		out = append(out, c)
		return nil
	}
	for i := range f.Classes {
		if err := visit(&f.Classes[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// className resolves a class reference: recipe classes first, then a
// fully qualified name.
func (f *File) className(name string) string {
	for i := range f.Classes {
		if f.Classes[i].Name == name {
			return f.InternalName(name)
		}
	}
	return strings.ReplaceAll(name, ".", "/")
}

// typeOf resolves a recipe type spelling.
func (f *File) typeOf(name string) (jtype.Type, error) {
	base := strings.TrimSpace(name)
	dims := 0
	for strings.HasSuffix(base, "[]") {
		dims++
		base = strings.TrimSpace(strings.TrimSuffix(base, "[]"))
	}
	for i := range f.Classes {
		if f.Classes[i].Name == base {
			t := jtype.Class(f.InternalName(base))
			for range dims {
				t = jtype.ArrayOf(t)
			}
			return t, nil
		}
	}
	t, err := jtype.Parse(name)
	if err != nil {
		return jtype.Void, diag.Errorf(diag.RecUnknownType, "type %q: %v", name, err)
	}
	return t, nil
}

func accessFlags(access string) (classfile.AccessFlags, error) {
	switch access {
	case "", "private":
		return classfile.AccPrivate, nil
	case "public":
		return classfile.AccPublic, nil
	case "protected":
		return classfile.AccProtected, nil
	case "package":
		return 0, nil
	}
	return 0, diag.Errorf(diag.RecInvalid, "unknown access %q", access)
}

// unit is one class between declaration and body generation.
type unit struct {
	f     *File
	rc    *Class
	cls   *asm.Class
	types []jtype.Type
}

// declare starts the class and declares its fields so that later classes
// of the recipe can see them.
func (f *File) declare(rc *Class, opts asm.Options) (*unit, error) {
	flags := classfile.AccPublic
	if rc.Final {
		flags |= classfile.AccFinal
	}
	ifaces := make([]string, len(rc.Implements))
	for i, in := range rc.Implements {
		ifaces[i] = f.className(in)
	}
	super := ""
	if rc.Extends != "" {
		super = f.className(rc.Extends)
	}
	cls, err := asm.NewClass(flags, f.InternalName(rc.Name), super, ifaces, opts)
	if err != nil {
		return nil, err
	}
	u := &unit{f: f, rc: rc, cls: cls}
	for i := range rc.Fields {
		fd := &rc.Fields[i]
		t, err := f.typeOf(fd.Type)
		if err != nil {
			return nil, at(err, cls.Name()+"."+fd.Name)
		}
		access, _ := accessFlags(fd.Access)
		if fd.Static {
			access |= classfile.AccStatic
		}
		if fd.Final {
			access |= classfile.AccFinal
		}
		field, err := cls.AddField(access, t, fd.Name)
		if err != nil {
			return nil, err
		}
		if fd.Value != nil {
			v, err := literal(t, fd.Value)
			if err != nil {
				return nil, at(err, cls.Name()+"."+fd.Name)
			}
			if err := field.Init(v); err != nil {
				return nil, err
			}
		}
		u.types = append(u.types, t)
	}
	return u, nil
}

// define generates every method body.
func (u *unit) define() error {
	if err := u.constructor(); err != nil {
		return err
	}
	if u.rc.Getters {
		for i, fd := range u.rc.Fields {
			if fd.Static {
				continue
			}
			if err := u.getter(getterName(fd.Name, u.types[i]), u.types[i], fd.Name, false); err != nil {
				return err
			}
		}
	}
	for i := range u.rc.Methods {
		if err := u.method(&u.rc.Methods[i]); err != nil {
			return err
		}
	}
	if u.rc.ToString {
		if err := u.toString(); err != nil {
			return err
		}
	}
	if u.rc.Main != "" {
		if err := u.main(); err != nil {
			return err
		}
	}
	return nil
}

// ctorFields lists the instance fields the generated constructor takes.
func (u *unit) ctorFields() []int {
	if !u.rc.Constructor {
		return nil
	}
	var out []int
	for i, fd := range u.rc.Fields {
		if !fd.Static && fd.Value == nil {
			out = append(out, i)
		}
	}
	return out
}

func (u *unit) constructor() error {
	idx := u.ctorFields()
	params := make([]asm.Param, len(idx))
	for i, fi := range idx {
		params[i] = asm.P(u.rc.Fields[fi].Name, u.types[fi])
	}
	m, err := u.cls.Constructor(classfile.AccPublic, params...)
	if err != nil {
		return err
	}
	for _, fi := range idx {
		name := u.rc.Fields[fi].Name
		this, err := m.This()
		if err != nil {
			return err
		}
		v, err := m.Get(m.Arg(name))
		if err != nil {
			return err
		}
		if err := m.SetField(this, name, v); err != nil {
			return err
		}
	}
	return m.End()
}

func getterName(field string, t jtype.Type) string {
	r, size := utf8.DecodeRuneInString(field)
	head := strings.ToUpper(string(r)) + field[size:]
	if t == jtype.Boolean {
		return "is" + head
	}
	return "get" + head
}

// getter generates a method returning a field.
func (u *unit) getter(name string, ret jtype.Type, field string, static bool) error {
	flags := classfile.AccPublic
	if static {
		flags |= classfile.AccStatic
	}
	m, err := u.cls.Method(flags, ret, name)
	if err != nil {
		return err
	}
	var v *asm.Expr
	if static {
		v, err = m.Static(u.cls.Type(), field)
	} else {
		var this *asm.Expr
		if this, err = m.This(); err != nil {
			return err
		}
		v, err = m.Field(this, field)
	}
	if err != nil {
		return err
	}
	if err := m.Return(v); err != nil {
		return err
	}
	return m.End()
}

func (u *unit) method(rm *Method) error {
	ret, err := u.f.typeOf(rm.Returns)
	if err != nil {
		return at(err, u.cls.Name()+"."+rm.Name)
	}
	if rm.Field != "" {
		return u.getter(rm.Name, ret, rm.Field, rm.Static)
	}
	flags := classfile.AccPublic
	if rm.Static {
		flags |= classfile.AccStatic
	}
	m, err := u.cls.Method(flags, ret, rm.Name)
	if err != nil {
		return err
	}
	v, err := literal(ret, rm.Value)
	if err != nil {
		return at(err, u.cls.Name()+"."+rm.Name)
	}
	e, err := m.Const(v)
	if err != nil {
		return err
	}
	if err := m.Return(e); err != nil {
		return err
	}
	return m.End()
}

// toString renders Simple[a=1, b=x] from the instance fields.
func (u *unit) toString() error {
	m, err := u.cls.Method(classfile.AccPublic, jtype.String, "toString")
	if err != nil {
		return err
	}
	text := u.cls.Type().SimpleName() + "["
	var acc *asm.Expr
	sep := ""
	for _, fd := range u.rc.Fields {
		if fd.Static {
			continue
		}
		lead, err := m.Str(text + sep + fd.Name + "=")
		if err != nil {
			return err
		}
		if acc != nil {
			if lead, err = m.Add(acc, lead); err != nil {
				return err
			}
		}
		this, err := m.This()
		if err != nil {
			return err
		}
		v, err := m.Field(this, fd.Name)
		if err != nil {
			return err
		}
		if acc, err = m.Add(lead, v); err != nil {
			return err
		}
		text, sep = "", ", "
	}
	tail, err := m.Str(text + "]")
	if err != nil {
		return err
	}
	if acc != nil {
		if tail, err = m.Add(acc, tail); err != nil {
			return err
		}
	}
	if err := m.Return(tail); err != nil {
		return err
	}
	return m.End()
}

// main prints the configured line.
func (u *unit) main() error {
	m, err := u.cls.Method(classfile.AccPublic|classfile.AccStatic, jtype.Void, "main", asm.P("args", jtype.ArrayOf(jtype.String)))
	if err != nil {
		return err
	}
	out, err := m.Static(jtype.Class("java/lang/System"), "out")
	if err != nil {
		return err
	}
	line, err := m.Str(u.rc.Main)
	if err != nil {
		return err
	}
	call, err := m.Call(out, "println", line)
	if err != nil {
		return err
	}
	if err := m.Do(call); err != nil {
		return err
	}
	return m.End()
}

// at locates a diagnostic that has no location yet.
func at(err error, where string) error {
	var de *diag.Error
	if errors.As(err, &de) {
		return de.At(where)
	}
	return err
}

// literal converts a decoded TOML or YAML scalar to the Go type the
// assembler uses for constants of t.
func literal(t jtype.Type, v any) (any, error) {
	bad := func() (any, error) {
		return nil, diag.Errorf(diag.TypNotAssignable, "value %v (%T) does not fit %s", v, v, t)
	}
	var i int64
	isInt := false
	switch x := v.(type) {
	case int:
		i, isInt = int64(x), true
	case int64:
		i, isInt = x, true
	case uint64:
		n, err := safecast.Conv[int64](x)
		if err != nil {
			return bad()
		}
		i, isInt = n, true
	}
	switch t.Kind() {
	case jtype.KindBoolean:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case jtype.KindByte:
		if n, err := safecast.Conv[int8](i); isInt && err == nil {
			return n, nil
		}
	case jtype.KindShort:
		if n, err := safecast.Conv[int16](i); isInt && err == nil {
			return n, nil
		}
	case jtype.KindChar:
		if s, ok := v.(string); ok && utf8.RuneCountInString(s) == 1 {
			r, _ := utf8.DecodeRuneInString(s)
			if n, err := safecast.Conv[uint16](r); err == nil {
				return n, nil
			}
		}
		if n, err := safecast.Conv[uint16](i); isInt && err == nil {
			return n, nil
		}
	case jtype.KindInt:
		if n, err := safecast.Conv[int32](i); isInt && err == nil {
			return n, nil
		}
	case jtype.KindLong:
		if isInt {
			return i, nil
		}
	case jtype.KindFloat:
		if isInt {
			return float32(i), nil
		}
		if x, ok := v.(float64); ok {
			return float32(x), nil
		}
	case jtype.KindDouble:
		if isInt {
			return float64(i), nil
		}
		if x, ok := v.(float64); ok {
			return x, nil
		}
	case jtype.KindReference:
		if s, ok := v.(string); ok && (t == jtype.String || t == jtype.Object) {
			return s, nil
		}
	}
	return bad()
}
