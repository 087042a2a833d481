package typeinfo

import (
	"classbuilder/internal/classfile"
	"classbuilder/internal/jtype"
)

// Provider answers type-metadata questions about classes that already
// exist (or are being built) outside the assembler asking.
//
// Implementations must be safe for concurrent reads when shared between
// assemblers running on different goroutines.
type Provider interface {
	// Class returns the metadata for an internal class name.
	Class(name string) (*Class, bool)
}

// Class describes a class or interface.
type Class struct {
	Name       string
	Super      string // "" only for java/lang/Object and interfaces without extends
	Interfaces []string
	Flags      classfile.AccessFlags
	Fields     []*Field
	Methods    []*Method
}

// Field describes a declared field.
type Field struct {
	Owner string
	Name  string
	Type  jtype.Type
	Flags classfile.AccessFlags
}

// Method describes a declared method or constructor.
type Method struct {
	Owner  string
	Name   string
	Params []jtype.Type
	Return jtype.Type
	Flags  classfile.AccessFlags
}

func (c *Class) IsInterface() bool { return c.Flags.IsInterface() }

// Type returns the class type handle.
func (c *Class) Type() jtype.Type { return jtype.Class(c.Name) }

// Field returns the field declared directly on c.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// DeclaredMethods returns overloads of name declared directly on c.
func (c *Class) DeclaredMethods(name string) []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// Clone returns a deep copy safe to publish to other goroutines.
func (c *Class) Clone() *Class {
	cp := *c
	cp.Interfaces = append([]string(nil), c.Interfaces...)
	cp.Fields = make([]*Field, len(c.Fields))
	for i, f := range c.Fields {
		fc := *f
		cp.Fields[i] = &fc
	}
	cp.Methods = make([]*Method, len(c.Methods))
	for i, m := range c.Methods {
		mc := *m
		mc.Params = append([]jtype.Type(nil), m.Params...)
		cp.Methods[i] = &mc
	}
	return &cp
}

// Descriptor returns the field descriptor.
func (f *Field) Descriptor() string { return f.Type.Descriptor() }

// IsStatic reports a static field.
func (f *Field) IsStatic() bool { return f.Flags.IsStatic() }

// Descriptor returns the method descriptor.
func (m *Method) Descriptor() string { return jtype.MethodDescriptor(m.Return, m.Params...) }

// IsStatic reports a static method.
func (m *Method) IsStatic() bool { return m.Flags.IsStatic() }

// IsConstructor reports <init>.
func (m *Method) IsConstructor() bool { return m.Name == "<init>" }

// IsAbstract reports an abstract method.
func (m *Method) IsAbstract() bool { return m.Flags.IsAbstract() }

// Signature renders name(params)ret with source-like type names.
func (m *Method) Signature() string {
	s := m.Name + "("
	for i, p := range m.Params {
		if i > 0 {
			s += ", "
		}
		s += p.String()
	}
	return s + ")" + m.Return.String()
}
