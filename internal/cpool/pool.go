// Package cpool builds a class-file constant pool. Every entry is interned:
// asking twice for the same constant returns the same index.
package cpool

import (
	"math"

	"fortio.org/safecast"

	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
)

type key struct {
	tag classfile.ConstantTag
	s   string
	v   uint64
	a   uint16
	b   uint16
}

type entry struct {
	key
	index uint16
}

// Pool is not safe for concurrent use; each class assembler owns one.
type Pool struct {
	entries []entry
	lookup  map[key]uint16
	next    int // next free index
}

func New() *Pool {
	return &Pool{lookup: make(map[key]uint16, 64), next: 1}
}

// Count returns constant_pool_count: one more than the highest index used.
func (p *Pool) Count() int { return p.next }

// Len returns the number of distinct entries.
func (p *Pool) Len() int { return len(p.entries) }

func (p *Pool) intern(k key) (uint16, error) {
	if idx, ok := p.lookup[k]; ok {
		return idx, nil
	}
	width := 1
	if k.tag.Wide() {
		width = 2
	}
	if p.next+width-1 > classfile.MaxPoolEntries-1 {
		return 0, diag.Errorf(diag.SynPoolOverflow, "constant pool exceeds %d entries", classfile.MaxPoolEntries-1)
	}
	idx, err := safecast.Conv[uint16](p.next)
	if err != nil {
		return 0, diag.Errorf(diag.SynPoolOverflow, "constant pool index: %v", err)
	}
	p.entries = append(p.entries, entry{key: k, index: idx})
	p.lookup[k] = idx
	p.next += width
	return idx, nil
}

// Utf8 interns a modified-UTF-8 string entry.
func (p *Pool) Utf8(s string) (uint16, error) {
	if n := len(classfile.ModifiedUTF8(s)); n > classfile.MaxUtf8Length {
		return 0, diag.Errorf(diag.SynPoolOverflow, "utf8 constant of %d bytes exceeds %d", n, classfile.MaxUtf8Length)
	}
	return p.intern(key{tag: classfile.TagUtf8, s: s})
}

// Class interns a Class entry for an internal name or array descriptor.
func (p *Pool) Class(internalName string) (uint16, error) {
	name, err := p.Utf8(internalName)
	if err != nil {
		return 0, err
	}
	return p.intern(key{tag: classfile.TagClass, a: name})
}

// String interns a String literal entry.
func (p *Pool) String(s string) (uint16, error) {
	u, err := p.Utf8(s)
	if err != nil {
		return 0, err
	}
	return p.intern(key{tag: classfile.TagString, a: u})
}

func (p *Pool) Integer(v int32) (uint16, error) {
	return p.intern(key{tag: classfile.TagInteger, v: uint64(uint32(v))})
}

// Float interns by bit pattern, so -0.0 and 0.0 stay distinct.
func (p *Pool) Float(v float32) (uint16, error) {
	return p.intern(key{tag: classfile.TagFloat, v: uint64(math.Float32bits(v))})
}

func (p *Pool) Long(v int64) (uint16, error) {
	return p.intern(key{tag: classfile.TagLong, v: uint64(v)})
}

func (p *Pool) Double(v float64) (uint16, error) {
	return p.intern(key{tag: classfile.TagDouble, v: math.Float64bits(v)})
}

// NameAndType interns a NameAndType entry.
func (p *Pool) NameAndType(name, descriptor string) (uint16, error) {
	n, err := p.Utf8(name)
	if err != nil {
		return 0, err
	}
	d, err := p.Utf8(descriptor)
	if err != nil {
		return 0, err
	}
	return p.intern(key{tag: classfile.TagNameAndType, a: n, b: d})
}

func (p *Pool) member(tag classfile.ConstantTag, owner, name, descriptor string) (uint16, error) {
	c, err := p.Class(owner)
	if err != nil {
		return 0, err
	}
	nt, err := p.NameAndType(name, descriptor)
	if err != nil {
		return 0, err
	}
	return p.intern(key{tag: tag, a: c, b: nt})
}

func (p *Pool) Fieldref(owner, name, descriptor string) (uint16, error) {
	return p.member(classfile.TagFieldref, owner, name, descriptor)
}

func (p *Pool) Methodref(owner, name, descriptor string) (uint16, error) {
	return p.member(classfile.TagMethodref, owner, name, descriptor)
}

func (p *Pool) InterfaceMethodref(owner, name, descriptor string) (uint16, error) {
	return p.member(classfile.TagInterfaceMethodref, owner, name, descriptor)
}

// Tag returns the tag stored at index, or 0 when index is unused.
func (p *Pool) Tag(index uint16) classfile.ConstantTag {
	for _, e := range p.entries {
		if e.index == index {
			return e.tag
		}
	}
	return 0
}

// WriteTo appends constant_pool_count and the entries in index order.
func (p *Pool) WriteTo(w *classfile.Writer) {
	w.Len2(p.next, "constant pool")
	for _, e := range p.entries {
		w.U1(uint8(e.tag))
		switch e.tag {
		case classfile.TagUtf8:
			b := classfile.ModifiedUTF8(e.s)
			w.Len2(len(b), "utf8")
			w.Raw(b)
		case classfile.TagInteger, classfile.TagFloat:
			w.U4(uint32(e.v))
		case classfile.TagLong, classfile.TagDouble:
			w.U8(e.v)
		case classfile.TagClass, classfile.TagString:
			w.U2(e.a)
		default:
			w.U2(e.a)
			w.U2(e.b)
		}
	}
}
