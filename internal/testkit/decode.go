// Package testkit decodes generated class files and checks structural
// invariants the assembler promises. It is used by tests only.
package testkit

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"

	"classbuilder/internal/classfile"
)

// Constant is one decoded pool entry. A and B hold the index operands of
// reference entries.
type Constant struct {
	Tag    classfile.ConstantTag
	Utf8   string
	Int    int32
	Long   int64
	Float  float32
	Double float64
	A, B   uint16
}

// Attribute is a raw attribute.
type Attribute struct {
	Name string
	Data []byte
}

// Member is a field or method.
type Member struct {
	Flags      classfile.AccessFlags
	Name       string
	Descriptor string
	Attributes []Attribute
}

// Attr returns the named attribute body, or nil.
func (m *Member) Attr(name string) []byte {
	return findAttr(m.Attributes, name)
}

func findAttr(attrs []Attribute, name string) []byte {
	for _, a := range attrs {
		if a.Name == name {
			return a.Data
		}
	}
	return nil
}

// ClassFile is a decoded class.
type ClassFile struct {
	Minor, Major uint16
	Pool         []Constant // index 0 and the upper halves of wide entries are zero
	Flags        classfile.AccessFlags
	This, Super  string
	Interfaces   []string
	Fields       []Member
	Methods      []Member
	Attributes   []Attribute
}

// Attr returns the named class attribute body, or nil.
func (cf *ClassFile) Attr(name string) []byte { return findAttr(cf.Attributes, name) }

// Method finds a method by name and descriptor.
func (cf *ClassFile) Method(name, desc string) *Member {
	for i := range cf.Methods {
		if cf.Methods[i].Name == name && cf.Methods[i].Descriptor == desc {
			return &cf.Methods[i]
		}
	}
	return nil
}

// Field finds a field by name.
func (cf *ClassFile) Field(name string) *Member {
	for i := range cf.Fields {
		if cf.Fields[i].Name == name {
			return &cf.Fields[i]
		}
	}
	return nil
}

// Utf8 returns the string at a Utf8 index.
func (cf *ClassFile) Utf8(idx uint16) (string, error) {
	c, err := cf.entry(idx, classfile.TagUtf8)
	if err != nil {
		return "", err
	}
	return c.Utf8, nil
}

// ClassName resolves a Class entry to its internal name.
func (cf *ClassFile) ClassName(idx uint16) (string, error) {
	c, err := cf.entry(idx, classfile.TagClass)
	if err != nil {
		return "", err
	}
	return cf.Utf8(c.A)
}

// MemberRef resolves a field or method reference.
func (cf *ClassFile) MemberRef(idx uint16) (owner, name, desc string, err error) {
	if int(idx) >= len(cf.Pool) || idx == 0 {
		return "", "", "", fmt.Errorf("pool index %d out of range", idx)
	}
	c := cf.Pool[idx]
	switch c.Tag {
	case classfile.TagFieldref, classfile.TagMethodref, classfile.TagInterfaceMethodref:
	default:
		return "", "", "", fmt.Errorf("pool index %d is %s, not a member ref", idx, c.Tag)
	}
	if owner, err = cf.ClassName(c.A); err != nil {
		return "", "", "", err
	}
	nt, err := cf.entry(c.B, classfile.TagNameAndType)
	if err != nil {
		return "", "", "", err
	}
	if name, err = cf.Utf8(nt.A); err != nil {
		return "", "", "", err
	}
	desc, err = cf.Utf8(nt.B)
	return owner, name, desc, err
}

func (cf *ClassFile) entry(idx uint16, tag classfile.ConstantTag) (Constant, error) {
	if idx == 0 || int(idx) >= len(cf.Pool) {
		return Constant{}, fmt.Errorf("pool index %d out of range", idx)
	}
	c := cf.Pool[idx]
	if c.Tag != tag {
		return Constant{}, fmt.Errorf("pool index %d is %s, want %s", idx, c.Tag, tag)
	}
	return c, nil
}

type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("truncated at offset %d (need %d bytes)", r.off, n)
		return false
	}
	return true
}

func (r *reader) u1() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u2() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.BigEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) u4() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.BigEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *reader) bytes(n int) []byte {
	if !r.need(n) {
		return nil
	}
	v := r.buf[r.off : r.off+n]
	r.off += n
	return v
}

// Decode parses a class file.
func Decode(data []byte) (*ClassFile, error) {
	r := &reader{buf: data}
	if magic := r.u4(); r.err == nil && magic != classfile.Magic {
		return nil, fmt.Errorf("bad magic %#x", magic)
	}
	cf := &ClassFile{Minor: r.u2(), Major: r.u2()}
	count := int(r.u2())
	cf.Pool = make([]Constant, count)
	for i := 1; i < count && r.err == nil; i++ {
		c := Constant{Tag: classfile.ConstantTag(r.u1())}
		switch c.Tag {
		case classfile.TagUtf8:
			n := int(r.u2())
			c.Utf8 = decodeModifiedUTF8(r.bytes(n))
		case classfile.TagInteger:
			c.Int = int32(r.u4())
		case classfile.TagFloat:
			c.Float = math.Float32frombits(r.u4())
		case classfile.TagLong:
			c.Long = int64(uint64(r.u4())<<32 | uint64(r.u4()))
		case classfile.TagDouble:
			c.Double = math.Float64frombits(uint64(r.u4())<<32 | uint64(r.u4()))
		case classfile.TagClass, classfile.TagString:
			c.A = r.u2()
		case classfile.TagFieldref, classfile.TagMethodref, classfile.TagInterfaceMethodref, classfile.TagNameAndType:
			c.A, c.B = r.u2(), r.u2()
		default:
			return nil, fmt.Errorf("pool entry %d: unknown tag %d", i, c.Tag)
		}
		cf.Pool[i] = c
		if c.Tag.Wide() {
			i++
		}
	}
	cf.Flags = classfile.AccessFlags(r.u2())
	thisIdx, superIdx := r.u2(), r.u2()
	if r.err != nil {
		return nil, r.err
	}
	var err error
	if cf.This, err = cf.ClassName(thisIdx); err != nil {
		return nil, fmt.Errorf("this_class: %w", err)
	}
	if superIdx != 0 {
		if cf.Super, err = cf.ClassName(superIdx); err != nil {
			return nil, fmt.Errorf("super_class: %w", err)
		}
	}
	for range int(r.u2()) {
		name, err := cf.ClassName(r.u2())
		if err != nil {
			return nil, fmt.Errorf("interface: %w", err)
		}
		cf.Interfaces = append(cf.Interfaces, name)
	}
	if cf.Fields, err = cf.members(r); err != nil {
		return nil, fmt.Errorf("fields: %w", err)
	}
	if cf.Methods, err = cf.members(r); err != nil {
		return nil, fmt.Errorf("methods: %w", err)
	}
	if cf.Attributes, err = cf.attributes(r); err != nil {
		return nil, fmt.Errorf("class attributes: %w", err)
	}
	if r.err != nil {
		return nil, r.err
	}
	if r.off != len(data) {
		return nil, fmt.Errorf("%d trailing bytes", len(data)-r.off)
	}
	return cf, nil
}

func (cf *ClassFile) members(r *reader) ([]Member, error) {
	n := int(r.u2())
	out := make([]Member, 0, n)
	for range n {
		m := Member{Flags: classfile.AccessFlags(r.u2())}
		var err error
		if m.Name, err = cf.Utf8(r.u2()); err != nil {
			return nil, err
		}
		if m.Descriptor, err = cf.Utf8(r.u2()); err != nil {
			return nil, err
		}
		if m.Attributes, err = cf.attributes(r); err != nil {
			return nil, fmt.Errorf("%s: %w", m.Name, err)
		}
		out = append(out, m)
	}
	return out, r.err
}

func (cf *ClassFile) attributes(r *reader) ([]Attribute, error) {
	n := int(r.u2())
	var out []Attribute
	for range n {
		name, err := cf.Utf8(r.u2())
		if err != nil {
			return nil, err
		}
		size := int(r.u4())
		out = append(out, Attribute{Name: name, Data: r.bytes(size)})
	}
	return out, r.err
}

// Handler is one exception-table row.
type Handler struct {
	Start, End, PC int
	CatchType      uint16
}

// Code is a decoded Code attribute.
type Code struct {
	MaxStack, MaxLocals int
	Bytes               []byte
	Handlers            []Handler
	Attributes          []Attribute
}

// Attr returns the named nested attribute body, or nil.
func (c *Code) Attr(name string) []byte { return findAttr(c.Attributes, name) }

// DecodeCode parses the Code attribute of m.
func (cf *ClassFile) DecodeCode(m *Member) (*Code, error) {
	data := m.Attr(classfile.AttrCode)
	if data == nil {
		return nil, fmt.Errorf("%s%s has no Code", m.Name, m.Descriptor)
	}
	r := &reader{buf: data}
	c := &Code{MaxStack: int(r.u2()), MaxLocals: int(r.u2())}
	c.Bytes = r.bytes(int(r.u4()))
	for range int(r.u2()) {
		c.Handlers = append(c.Handlers, Handler{Start: int(r.u2()), End: int(r.u2()), PC: int(r.u2()), CatchType: r.u2()})
	}
	var err error
	if c.Attributes, err = cf.attributes(r); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

// LineEntry is one LineNumberTable row.
type LineEntry struct{ PC, Line int }

// Lines decodes the LineNumberTable of c.
func (c *Code) Lines() []LineEntry {
	data := c.Attr(classfile.AttrLineNumberTable)
	if data == nil {
		return nil
	}
	r := &reader{buf: data}
	var out []LineEntry
	for range int(r.u2()) {
		out = append(out, LineEntry{PC: int(r.u2()), Line: int(r.u2())})
	}
	return out
}

// LocalEntry is one LocalVariableTable row.
type LocalEntry struct {
	Start, Length int
	Name, Desc    string
	Slot          int
}

// Locals decodes the LocalVariableTable of c.
func (cf *ClassFile) Locals(c *Code) ([]LocalEntry, error) {
	data := c.Attr(classfile.AttrLocalVariableTable)
	if data == nil {
		return nil, nil
	}
	r := &reader{buf: data}
	var out []LocalEntry
	for range int(r.u2()) {
		e := LocalEntry{Start: int(r.u2()), Length: int(r.u2())}
		var err error
		if e.Name, err = cf.Utf8(r.u2()); err != nil {
			return nil, err
		}
		if e.Desc, err = cf.Utf8(r.u2()); err != nil {
			return nil, err
		}
		e.Slot = int(r.u2())
		out = append(out, e)
	}
	return out, r.err
}

// decodeModifiedUTF8 reverses classfile.ModifiedUTF8 for the forms it
// produces: one to three byte sequences over UTF-16 units.
func decodeModifiedUTF8(b []byte) string {
	var units []uint16
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xe0 == 0xc0 && i+1 < len(b):
			units = append(units, uint16(c&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case i+2 < len(b):
			units = append(units, uint16(c&0x0f)<<12|uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			i++
		}
	}
	return string(utf16.Decode(units))
}
