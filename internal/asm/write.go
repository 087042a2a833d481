package asm

import (
	"bytes"
	"io"
	"math"
	"strconv"

	"fortio.org/safecast"

	"classbuilder/internal/bytecode"
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/trace"
	"classbuilder/internal/typeinfo"
)

type namedAttr struct {
	name string
	body []byte
}

// stackSlack is added to the estimated operand-stack peak.
const stackSlack = 2

// dangling rejects nodes made since nodes[from] that no parent or
// statement took.
func (m *Method) dangling(from int) error {
	for _, n := range m.nodes[from:] {
		if !n.owned() {
			return diag.Errorf(diag.SynDanglingExpr, "%s node %s is never used", n.kind, render(n))
		}
	}
	return nil
}

// finish closes the method body: implicit return, dangling-node check,
// constructor and static-initializer prefixes, size limit.
func (m *Method) finish() error {
	body := m.top()
	if !body.closed {
		if !m.info.Return.IsVoid() {
			return diag.Errorf(diag.TypMissingReturn, "%s can complete without returning %s", m.info.Name, m.info.Return)
		}
		m.code.Emit(classfile.OpReturn)
	}
	if err := m.dangling(0); err != nil {
		return err
	}
	if n := m.code.OpenPatches(); n != 0 {
		return diag.Errorf(diag.SynUnbalancedEnd, "%d branch sites left open", n)
	}

	prefix := bytecode.New()
	switch {
	case m.info.IsConstructor() && !m.superCalled:
		if err := m.implicitSuper(prefix); err != nil {
			return err
		}
		m.fieldInits(prefix, false)
	case m.info.Name == "<clinit>":
		m.fieldInits(prefix, true)
	}
	if n := prefix.Pos(); n > 0 {
		if err := m.code.Prepend(prefix); err != nil {
			return err
		}
		for i := range m.lines {
			m.lines[i].pc += n
		}
		for i := range m.handlers {
			h := &m.handlers[i]
			h.start, h.end, h.pc = h.start+n, h.end+n, h.pc+n
		}
		for _, l := range m.locals {
			if !l.param {
				l.start += n
			}
		}
	}
	if size := m.code.Pos(); size > classfile.MaxCodeLength {
		return diag.Errorf(diag.SynCodeTooLarge, "%d bytes of code, limit is %d", size, classfile.MaxCodeLength)
	}
	m.finished = true
	m.frames = m.frames[:0]
	m.span.WithExtra("bytes", strconv.Itoa(m.code.Pos())).End("")
	return nil
}

// implicitSuper emits super() for constructors that did not call one.
func (m *Method) implicitSuper(b *bytecode.Buffer) error {
	super := m.c.info.Super
	ctors, err := typeinfo.FindMethods(m.c.lookup, super, "<init>")
	if err != nil {
		return err
	}
	found := false
	for _, ctor := range ctors {
		if len(ctor.Params) == 0 && m.c.accessible(ctor.Owner, ctor.Flags) {
			found = true
		}
	}
	if !found {
		return diag.Errorf(diag.AccNoSuchMethod, "%s has no accessible no-argument constructor; call SuperConstructor", super)
	}
	idx, err := m.c.pool.Methodref(super, "<init>", "()V")
	if err != nil {
		return err
	}
	b.Emit(classfile.OpAload0)
	b.EmitU2(classfile.OpInvokespecial, idx)
	m.need(1)
	return nil
}

func u2(n int, what string) (uint16, error) {
	v, err := safecast.Conv[uint16](n)
	if err != nil {
		return 0, diag.Errorf(diag.SynCodeTooLarge, "%s %d exceeds u2: %v", what, n, err)
	}
	return v, nil
}

// codeAttribute encodes the Code attribute body.
func (m *Method) codeAttribute() ([]byte, error) {
	c := m.c
	code := m.code.Bytes()
	w := classfile.NewWriter(len(code) + 64)
	maxStack, err := u2(m.maxStack+stackSlack, "max_stack")
	if err != nil {
		return nil, err
	}
	maxLocals, err := u2(m.nextSlot, "max_locals")
	if err != nil {
		return nil, err
	}
	w.U2(maxStack)
	w.U2(maxLocals)
	w.Len4(len(code), "code")
	w.Raw(code)
	w.Len2(len(m.handlers), "exception table")
	for _, h := range m.handlers {
		for _, v := range []int{h.start, h.end, h.pc} {
			pc, err := u2(v, "handler offset")
			if err != nil {
				return nil, err
			}
			w.U2(pc)
		}
		w.U2(h.catchType)
	}

	var attrs []namedAttr
	if c.opts.Debug {
		lines, err := m.lineTable(len(code))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, namedAttr{classfile.AttrLineNumberTable, lines})
		vars, err := m.localTable(len(code))
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, namedAttr{classfile.AttrLocalVariableTable, vars})
	}
	w.Len2(len(attrs), "code attributes")
	for _, a := range attrs {
		if err := c.writeAttr(w, a.name, a.body); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), w.Err()
}

func (m *Method) lineTable(size int) ([]byte, error) {
	var keep []lineEntry
	for _, l := range m.lines {
		if l.pc < size {
			keep = append(keep, l)
		}
	}
	w := classfile.NewWriter(2 + 4*len(keep))
	w.Len2(len(keep), "line numbers")
	for _, l := range keep {
		pc, err := u2(l.pc, "line pc")
		if err != nil {
			return nil, err
		}
		line, err := u2(l.line, "line number")
		if err != nil {
			return nil, err
		}
		w.U2(pc)
		w.U2(line)
	}
	return w.Bytes(), w.Err()
}

func (m *Method) localTable(size int) ([]byte, error) {
	var keep []*Local
	for _, l := range m.locals {
		if !l.hidden && l.start < size {
			keep = append(keep, l)
		}
	}
	w := classfile.NewWriter(2 + 10*len(keep))
	w.Len2(len(keep), "local variables")
	for _, l := range keep {
		name, err := m.c.pool.Utf8(l.name)
		if err != nil {
			return nil, err
		}
		desc, err := m.c.pool.Utf8(l.typ.Descriptor())
		if err != nil {
			return nil, err
		}
		for _, v := range []int{l.start, size - l.start} {
			x, err := u2(v, "local range")
			if err != nil {
				return nil, err
			}
			w.U2(x)
		}
		w.U2(name)
		w.U2(desc)
		slot, err := u2(l.slot, "local slot")
		if err != nil {
			return nil, err
		}
		w.U2(slot)
	}
	return w.Bytes(), w.Err()
}

// constantIndex interns the ConstantValue entry of a static final field.
func (c *Class) constantIndex(f *Field) (uint16, error) {
	switch v := f.init.(type) {
	case bool:
		if v {
			return c.pool.Integer(1)
		}
		return c.pool.Integer(0)
	case int32:
		return c.pool.Integer(v)
	case int64:
		return c.pool.Long(v)
	case float32:
		return c.pool.Float(v)
	case float64:
		return c.pool.Double(v)
	case string:
		return c.pool.String(v)
	}
	return 0, diag.Errorf(diag.TypUnsupportedConstant, "no ConstantValue for %T", f.init)
}

// writeAttr interns name and writes one attribute.
func (c *Class) writeAttr(w *classfile.Writer, name string, body []byte) error {
	idx, err := c.pool.Utf8(name)
	if err != nil {
		return err
	}
	w.Attribute(idx, body)
	return nil
}

// annotationAttrs returns the (Runtime)(In)VisibleAnnotations attributes
// for blobs, visible first.
func annotationAttrs(blobs []annotationBlob) map[string][]byte {
	out := make(map[string][]byte, 2)
	for _, visible := range []bool{true, false} {
		var n int
		var body bytes.Buffer
		for _, b := range blobs {
			if b.visible == visible {
				n++
				body.Write(b.data)
			}
		}
		if n == 0 {
			continue
		}
		name := classfile.AttrRuntimeInvisibleAnnotations
		if visible {
			name = classfile.AttrRuntimeVisibleAnnotations
		}
		out[name] = append([]byte{byte(n >> 8), byte(n)}, body.Bytes()...)
	}
	return out
}

func (c *Class) writeAnnotations(w *classfile.Writer, blobs []annotationBlob) error {
	attrs := annotationAttrs(blobs)
	for _, name := range []string{classfile.AttrRuntimeVisibleAnnotations, classfile.AttrRuntimeInvisibleAnnotations} {
		if body, ok := attrs[name]; ok {
			if err := c.writeAttr(w, name, body); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *Class) writeMember(w *classfile.Writer, flags classfile.AccessFlags, name, desc string) error {
	ni, err := c.pool.Utf8(name)
	if err != nil {
		return err
	}
	di, err := c.pool.Utf8(desc)
	if err != nil {
		return err
	}
	w.U2(uint16(flags))
	w.U2(ni)
	w.U2(di)
	return nil
}

func (c *Class) writeField(w *classfile.Writer, f *Field) error {
	if err := c.writeMember(w, f.info.Flags, f.info.Name, f.info.Descriptor()); err != nil {
		return err
	}
	n := len(annotationAttrs(f.annotations))
	if f.constantValue() {
		n++
	}
	w.Len2(n, "field attributes")
	if f.constantValue() {
		idx, err := c.constantIndex(f)
		if err != nil {
			return err
		}
		if err := c.writeAttr(w, classfile.AttrConstantValue, []byte{byte(idx >> 8), byte(idx)}); err != nil {
			return err
		}
	}
	return c.writeAnnotations(w, f.annotations)
}

func (c *Class) writeMethod(w *classfile.Writer, m *Method) error {
	if err := c.writeMember(w, m.info.Flags, m.info.Name, m.info.Descriptor()); err != nil {
		return err
	}
	n := len(annotationAttrs(m.annotations))
	if !m.abstract {
		n++
	}
	if len(m.throws) > 0 {
		n++
	}
	w.Len2(n, "method attributes")
	if !m.abstract {
		body, err := m.codeAttribute()
		if err != nil {
			return err
		}
		if err := c.writeAttr(w, classfile.AttrCode, body); err != nil {
			return err
		}
	}
	if len(m.throws) > 0 {
		ex := classfile.NewWriter(2 + 2*len(m.throws))
		ex.Len2(len(m.throws), "exceptions")
		for _, idx := range m.throws {
			ex.U2(idx)
		}
		if err := c.writeAttr(w, classfile.AttrExceptions, ex.Bytes()); err != nil {
			return err
		}
	}
	return c.writeAnnotations(w, m.annotations)
}

// staticInitNeeded reports non-constant static initializers without a
// user-declared <clinit> to carry them.
func (c *Class) staticInitNeeded() bool {
	for _, m := range c.methods {
		if m.info.Name == "<clinit>" {
			return false
		}
	}
	for _, f := range c.fields {
		if f.hasInit && f.info.IsStatic() && !f.constantValue() {
			return true
		}
	}
	return false
}

// check runs the finalization checks.
func (c *Class) check() error {
	for _, m := range c.methods {
		if !m.finished {
			return diag.Errorf(diag.AsmMethodOpen, "method %s%s was never ended", m.info.Name, m.info.Descriptor())
		}
	}
	if c.info.IsInterface() || c.info.Flags.IsAbstract() {
		return nil
	}
	missing, err := typeinfo.UnimplementedAbstract(c.lookup, c.name)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return diag.Errorf(diag.AsmAbstractNotImplemented, "%s does not implement %s.%s", c.name, missing[0].Owner, missing[0].Signature())
	}
	return nil
}

// Bytes finalizes the class and returns its class-file encoding. Later
// calls return the same bytes; any further mutation fails.
func (c *Class) Bytes() ([]byte, error) {
	if c.finalized && c.broken == nil {
		return c.out, nil
	}
	if err := c.usable(); err != nil {
		return nil, err
	}
	if err := c.check(); err != nil {
		return nil, c.fail(err)
	}
	if c.staticInitNeeded() {
		m, err := c.StaticInit()
		if err != nil {
			return nil, err
		}
		if err := m.End(); err != nil {
			return nil, err
		}
	}
	span := trace.Begin(c.opts.Tracer, trace.ScopeClass, "serialize", c.span.ID())
	out, err := c.serialize()
	if err != nil {
		span.End("failed")
		return nil, c.fail(err)
	}
	span.WithExtra("pool", strconv.Itoa(c.pool.Count())).End("")
	c.out, c.finalized = out, true
	c.span.WithExtra("bytes", strconv.Itoa(len(out))).End("")
	return out, nil
}

func (c *Class) serialize() ([]byte, error) {
	body := classfile.NewWriter(1024)
	body.U2(uint16(c.info.Flags))
	body.U2(c.thisIdx)
	body.U2(c.superIdx)
	body.Len2(len(c.ifaces), "interfaces")
	for _, idx := range c.ifaces {
		body.U2(idx)
	}
	body.Len2(len(c.fields), "fields")
	for _, f := range c.fields {
		if err := c.writeField(body, f); err != nil {
			return nil, err
		}
	}
	body.Len2(len(c.methods), "methods")
	for _, m := range c.methods {
		if err := c.writeMethod(body, m); err != nil {
			return nil, err
		}
	}
	n := len(annotationAttrs(c.annotations))
	if c.opts.Debug {
		n++
	}
	body.Len2(n, "class attributes")
	if c.opts.Debug {
		src, err := c.pool.Utf8(c.opts.SourceFile)
		if err != nil {
			return nil, err
		}
		if err := c.writeAttr(body, classfile.AttrSourceFile, []byte{byte(src >> 8), byte(src)}); err != nil {
			return nil, err
		}
	}
	if err := c.writeAnnotations(body, c.annotations); err != nil {
		return nil, err
	}
	if err := body.Err(); err != nil {
		return nil, diag.Errorf(diag.AsmIO, "%v", err)
	}

	out := classfile.NewWriter(body.Len() + 16*c.pool.Len())
	out.U4(classfile.Magic)
	out.U2(c.opts.Minor)
	out.U2(c.opts.Major)
	c.pool.WriteTo(out)
	out.Raw(body.Bytes())
	if err := out.Err(); err != nil {
		return nil, diag.Errorf(diag.AsmIO, "%v", err)
	}
	return out.Bytes(), nil
}

// WriteTo finalizes the class and writes it to w.
func (c *Class) WriteTo(w io.Writer) (int64, error) {
	out, err := c.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(out)
	if err != nil {
		return int64(n), diag.Errorf(diag.AsmIO, "write %s: %v", c.name, err)
	}
	return int64(n), nil
}

// Code returns the finished instruction bytes of a method, mainly for tests.
func (m *Method) Code() []byte { return m.code.Bytes() }

// MaxStack returns the max_stack value the Code attribute carries.
func (m *Method) MaxStack() int { return min(m.maxStack+stackSlack, math.MaxUint16) }
