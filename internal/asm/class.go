// Package asm assembles JVM class files from builder calls: declarations,
// statements and expression trees, type-checked as they are built.
package asm

import (
	"errors"
	"strings"

	"classbuilder/internal/classfile"
	"classbuilder/internal/cpool"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
	"classbuilder/internal/trace"
	"classbuilder/internal/typeinfo"
)

// Options configures a class assembler.
type Options struct {
	// Provider answers questions about other classes; nil uses the JDK
	// bootstrap registry. A *typeinfo.Session also receives this class
	// as members are declared.
	Provider typeinfo.Provider

	// Major and Minor set the class-file version; zero Major means 49.0.
	Major uint16
	Minor uint16

	// Debug adds LineNumberTable, LocalVariableTable and SourceFile.
	Debug      bool
	SourceFile string

	// MaxLocals caps local slots per method; zero means the format limit.
	MaxLocals int

	Tracer     trace.Tracer
	ParentSpan uint64
}

// Class is the assembler for one class. It is single-owner mutable state:
// use it from one goroutine and discard it after the first error.
type Class struct {
	name    string
	info    *typeinfo.Class
	lookup  typeinfo.Provider
	definer typeinfo.Definer
	opts    Options
	pool    *cpool.Pool

	thisIdx  uint16
	superIdx uint16
	ifaces   []uint16

	fields      []*Field
	methods     []*Method
	annotations []annotationBlob
	line        int

	broken    error
	finalized bool
	out       []byte
	span      *trace.Span
}

// NewClass starts a class. super may be empty for java/lang/Object's
// direct subclasses.
func NewClass(flags classfile.AccessFlags, name, super string, interfaces []string, opts Options) (*Class, error) {
	name = strings.ReplaceAll(name, ".", "/")
	super = strings.ReplaceAll(super, ".", "/")
	if super == "" {
		super = "java/lang/Object"
	}
	if err := checkName(name, true); err != nil {
		return nil, err
	}
	if flags.IsInterface() {
		flags |= classfile.AccAbstract
		flags &^= classfile.AccSuper
		if super != "java/lang/Object" {
			return nil, diag.Errorf(diag.AsmBadDeclaration, "interface %s cannot extend class %s", name, super)
		}
	} else {
		flags |= classfile.AccSuper
	}
	if flags.IsFinal() && flags.IsAbstract() {
		return nil, diag.Errorf(diag.AsmBadDeclaration, "class %s is both final and abstract", name)
	}
	if opts.Provider == nil {
		opts.Provider = typeinfo.Default()
	}
	if opts.Major == 0 {
		opts.Major, opts.Minor = classfile.MajorJava5, 0
	}
	if opts.MaxLocals <= 0 || opts.MaxLocals > classfile.MaxLocals {
		opts.MaxLocals = classfile.MaxLocals
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	if opts.SourceFile == "" {
		opts.SourceFile = jtype.Class(name).SimpleName() + ".java"
	}

	ifaces := make([]string, len(interfaces))
	for i, in := range interfaces {
		ifaces[i] = strings.ReplaceAll(in, ".", "/")
	}
	c := &Class{
		name: name,
		info: &typeinfo.Class{Name: name, Super: super, Interfaces: ifaces, Flags: flags},
		opts: opts,
		pool: cpool.New(),
	}
	c.lookup = typeinfo.Overlay{Self: c.info, Base: opts.Provider}
	c.definer, _ = opts.Provider.(typeinfo.Definer)
	c.span = trace.Begin(opts.Tracer, trace.ScopeClass, "class:"+name, opts.ParentSpan)

	sup, err := typeinfo.Lookup(c.lookup, super)
	if err != nil {
		return nil, c.fail(err)
	}
	if sup.Flags.IsFinal() || sup.IsInterface() {
		return nil, c.fail(diag.Errorf(diag.AsmBadDeclaration, "cannot extend %s", super))
	}
	for _, in := range ifaces {
		ic, err := typeinfo.Lookup(c.lookup, in)
		if err != nil {
			return nil, c.fail(err)
		}
		if !ic.IsInterface() {
			return nil, c.fail(diag.Errorf(diag.AsmBadDeclaration, "%s is not an interface", in))
		}
	}

	if c.thisIdx, err = c.pool.Class(name); err != nil {
		return nil, c.fail(err)
	}
	if c.superIdx, err = c.pool.Class(super); err != nil {
		return nil, c.fail(err)
	}
	for _, in := range ifaces {
		idx, err := c.pool.Class(in)
		if err != nil {
			return nil, c.fail(err)
		}
		c.ifaces = append(c.ifaces, idx)
	}
	c.publish()
	return c, nil
}

// Name returns the internal class name.
func (c *Class) Name() string { return c.name }

// Type returns the class type.
func (c *Class) Type() jtype.Type { return jtype.Class(c.name) }

// Super returns the internal superclass name.
func (c *Class) Super() string { return c.info.Super }

// Flags returns the class access flags.
func (c *Class) Flags() classfile.AccessFlags { return c.info.Flags }

// Info returns a copy of the metadata declared so far.
func (c *Class) Info() *typeinfo.Class { return c.info.Clone() }

// Pool exposes the constant pool, mainly for tests.
func (c *Class) Pool() *cpool.Pool { return c.pool }

// Err returns the failure that made the assembler unusable, if any.
func (c *Class) Err() error { return c.broken }

func (c *Class) publish() {
	if c.definer != nil {
		c.definer.Define(c.info)
	}
}

// usable guards every builder call.
func (c *Class) usable() error {
	if c.broken != nil {
		return &diag.Error{Code: diag.AsmUnusable, Message: "assembler unusable after earlier failure", Where: c.name, Cause: c.broken}
	}
	if c.finalized {
		return diag.Errorf(diag.AsmFinalized, "class %s already serialized", c.name).At(c.name)
	}
	return nil
}

// fail poisons the assembler with the first error and returns err.
func (c *Class) fail(err error) error {
	if err == nil {
		return nil
	}
	var de *diag.Error
	if errors.As(err, &de) && de.Code == diag.AsmUnusable {
		return err
	}
	if de != nil && de.Where == "" {
		err = de.At(c.name)
	}
	if c.broken == nil {
		c.broken = err
		c.span.End("failed: " + err.Error())
	}
	return err
}

func (c *Class) nextLine() int {
	c.line++
	return c.line
}

// SetLine makes the next statement of any method start at line n.
func (c *Class) SetLine(n int) {
	if n > 0 {
		c.line = n - 1
	}
}

func packageOf(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i]
	}
	return ""
}

// accessible reports whether a member of owner with flags is visible
// from the class under construction.
func (c *Class) accessible(owner string, flags classfile.AccessFlags) bool {
	switch {
	case flags.IsPublic():
		return true
	case flags.IsPrivate():
		return owner == c.name
	case packageOf(owner) == packageOf(c.name):
		return true
	case flags.IsProtected():
		return typeinfo.IsSubclass(c.lookup, c.name, owner)
	}
	return false
}

func checkName(name string, class bool) error {
	if name == "" {
		return diag.Errorf(diag.AsmBadDeclaration, "empty name")
	}
	bad := ".;[/<>"
	if class {
		bad = ".;["
	}
	if strings.ContainsAny(name, bad) {
		return diag.Errorf(diag.AsmBadDeclaration, "illegal name %q", name)
	}
	return nil
}
