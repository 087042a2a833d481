package typeinfo

import (
	"sort"
	"strings"
	"sync"

	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// Registry is a map-backed Provider. Populate it before sharing; reads are
// safe from any goroutine once mutation stops.
type Registry struct {
	classes map[string]*Class
}

func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class, 64)}
}

func (r *Registry) Class(name string) (*Class, bool) {
	c, ok := r.classes[name]
	return c, ok
}

// Add stores c, replacing any class with the same name.
func (r *Registry) Add(c *Class) {
	r.classes[c.Name] = c
}

// Len returns the number of classes.
func (r *Registry) Len() int { return len(r.classes) }

// Names returns class names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.classes))
	for name := range r.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Merge copies every class of other into r.
func (r *Registry) Merge(other *Registry) {
	for name, c := range other.classes {
		r.classes[name] = c
	}
}

// Session layers classes under construction over a base provider. Several
// assemblers may Define into the same session concurrently.
type Session struct {
	base Provider

	mu      sync.RWMutex
	defined map[string]*Class
}

func NewSession(base Provider) *Session {
	return &Session{base: base, defined: make(map[string]*Class)}
}

func (s *Session) Class(name string) (*Class, bool) {
	s.mu.RLock()
	c, ok := s.defined[name]
	s.mu.RUnlock()
	if ok {
		return c, true
	}
	if s.base == nil {
		return nil, false
	}
	return s.base.Class(name)
}

// Define publishes a copy of c, replacing an earlier definition.
func (s *Session) Define(c *Class) {
	cp := c.Clone()
	s.mu.Lock()
	s.defined[cp.Name] = cp
	s.mu.Unlock()
}

// Defined returns the classes published so far, sorted by name.
func (s *Session) Defined() []*Class {
	s.mu.RLock()
	out := make([]*Class, 0, len(s.defined))
	for _, c := range s.defined {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Definer is implemented by providers that accept classes under construction.
type Definer interface {
	Define(c *Class)
}

// Overlay answers for self first and delegates everything else to base.
// It is not synchronized; self belongs to one assembler.
type Overlay struct {
	Self *Class
	Base Provider
}

func (o Overlay) Class(name string) (*Class, bool) {
	if o.Self != nil && o.Self.Name == name {
		return o.Self, true
	}
	if o.Base == nil {
		return nil, false
	}
	return o.Base.Class(name)
}

// member declarations use a compact "<flags> <name> <descriptor>" form;
// flag letters: p public, r protected, v private, s static, f final, a abstract.
func parseFlags(s string) classfile.AccessFlags {
	var f classfile.AccessFlags
	for _, ch := range s {
		switch ch {
		case 'p':
			f |= classfile.AccPublic
		case 'r':
			f |= classfile.AccProtected
		case 'v':
			f |= classfile.AccPrivate
		case 's':
			f |= classfile.AccStatic
		case 'f':
			f |= classfile.AccFinal
		case 'a':
			f |= classfile.AccAbstract
		}
	}
	return f
}

// Define parses compact member declarations into a class. Descriptors
// starting with '(' are methods; others are fields.
func Define(name, super string, flags classfile.AccessFlags, interfaces []string, members ...string) (*Class, error) {
	c := &Class{Name: name, Super: super, Interfaces: interfaces, Flags: flags}
	for _, m := range members {
		parts := strings.Fields(m)
		if len(parts) != 3 {
			return nil, diag.Errorf(diag.AsmBadDeclaration, "member %q: want <flags> <name> <descriptor>", m)
		}
		mf := parseFlags(parts[0])
		if flags.IsInterface() && !mf.IsStatic() {
			mf |= classfile.AccAbstract | classfile.AccPublic
		}
		if strings.HasPrefix(parts[2], "(") {
			ret, params, err := jtype.ParseMethodDescriptor(parts[2])
			if err != nil {
				return nil, diag.Errorf(diag.AsmBadDeclaration, "member %q: %v", m, err)
			}
			c.Methods = append(c.Methods, &Method{Owner: name, Name: parts[1], Params: params, Return: ret, Flags: mf})
			continue
		}
		t, err := jtype.ParseDescriptor(parts[2])
		if err != nil {
			return nil, diag.Errorf(diag.AsmBadDeclaration, "member %q: %v", m, err)
		}
		c.Fields = append(c.Fields, &Field{Owner: name, Name: parts[1], Type: t, Flags: mf})
	}
	return c, nil
}
