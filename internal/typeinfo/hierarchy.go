package typeinfo

import (
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// Lookup resolves name or reports AccNoSuchClass.
func Lookup(p Provider, name string) (*Class, error) {
	if c, ok := p.Class(name); ok {
		return c, nil
	}
	return nil, diag.Errorf(diag.AccNoSuchClass, "class %s not found", name)
}

// supertypes yields owner, then superclasses, then every interface
// reachable from them, each once.
func supertypes(p Provider, owner string, visit func(*Class) bool) error {
	seen := make(map[string]bool, 8)
	var ifaces []string
	for name := owner; name != ""; {
		c, err := Lookup(p, name)
		if err != nil {
			return err
		}
		seen[name] = true
		if !visit(c) {
			return nil
		}
		ifaces = append(ifaces, c.Interfaces...)
		name = c.Super
	}
	for len(ifaces) > 0 {
		name := ifaces[0]
		ifaces = ifaces[1:]
		if seen[name] {
			continue
		}
		seen[name] = true
		c, err := Lookup(p, name)
		if err != nil {
			return err
		}
		if !visit(c) {
			return nil
		}
		ifaces = append(ifaces, c.Interfaces...)
	}
	return nil
}

// FindField resolves a field by walking owner's supertypes.
func FindField(p Provider, owner, name string) (*Field, error) {
	var found *Field
	err := supertypes(p, owner, func(c *Class) bool {
		found = c.Field(name)
		return found == nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, diag.Errorf(diag.AccNoSuchField, "field %s.%s not found", owner, name)
	}
	return found, nil
}

// FindMethods collects every overload of name visible from owner. A
// descriptor declared closer to owner hides the same descriptor further up.
func FindMethods(p Provider, owner, name string) ([]*Method, error) {
	var out []*Method
	seen := make(map[string]bool)
	err := supertypes(p, owner, func(c *Class) bool {
		for _, m := range c.DeclaredMethods(name) {
			d := m.Descriptor()
			if seen[d] {
				continue
			}
			seen[d] = true
			out = append(out, m)
		}
		// constructors are never inherited
		return name != "<init>"
	})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, diag.Errorf(diag.AccNoSuchMethod, "method %s.%s not found", owner, name)
	}
	return out, nil
}

// IsSubclass reports whether sub is sup or inherits from it through
// superclasses or interfaces. Unknown classes are never subclasses.
func IsSubclass(p Provider, sub, sup string) bool {
	if sub == sup || sup == "java/lang/Object" {
		return true
	}
	found := false
	_ = supertypes(p, sub, func(c *Class) bool {
		found = c.Name == sup
		return !found
	})
	return found
}

// IsAssignable reports whether a value of type from may be stored in a
// location of type to without conversion.
func IsAssignable(p Provider, from, to jtype.Type) bool {
	if from == to {
		return true
	}
	if !from.IsReference() || !to.IsReference() {
		return false
	}
	if from.IsNull() {
		return true
	}
	if to == jtype.Object {
		return true
	}
	if from.IsArray() {
		if !to.IsArray() {
			name := to.InternalName()
			return name == "java/lang/Cloneable" || name == "java/io/Serializable"
		}
		fe, te := from.Elem(), to.Elem()
		if fe.IsPrimitive() || te.IsPrimitive() {
			return fe == te
		}
		return IsAssignable(p, fe, te)
	}
	if to.IsArray() {
		return false
	}
	return IsSubclass(p, from.InternalName(), to.InternalName())
}

// UnimplementedAbstract returns abstract methods reachable from name that
// have no concrete implementation anywhere on the superclass chain.
func UnimplementedAbstract(p Provider, name string) ([]*Method, error) {
	concrete := make(map[string]bool)
	abstract := make(map[string]*Method)
	var order []string
	err := supertypes(p, name, func(c *Class) bool {
		for _, m := range c.Methods {
			if m.IsConstructor() || m.IsStatic() || m.Name == "<clinit>" {
				continue
			}
			key := m.Name + m.Descriptor()
			if !m.IsAbstract() && !c.IsInterface() {
				concrete[key] = true
				continue
			}
			if _, ok := abstract[key]; !ok {
				abstract[key] = m
				order = append(order, key)
			}
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	var out []*Method
	for _, key := range order {
		if !concrete[key] {
			out = append(out, abstract[key])
		}
	}
	return out, nil
}
