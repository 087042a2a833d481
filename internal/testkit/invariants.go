package testkit

import (
	"encoding/binary"
	"fmt"

	"fortio.org/safecast"

	"classbuilder/internal/classfile"
)

// Insn is one decoded instruction.
type Insn struct {
	PC     int
	Op     classfile.Opcode
	Wide   bool
	Target int // branch target, or -1
	Index  int // first operand as an unsigned value, or -1
}

// Instructions splits code into instructions. It understands every form
// the assembler emits, including the wide prefix.
func Instructions(code []byte) ([]Insn, error) {
	var out []Insn
	for pc := 0; pc < len(code); {
		op := classfile.Opcode(code[pc])
		in := Insn{PC: pc, Op: op, Target: -1, Index: -1}
		size := op.Length()
		if op == classfile.OpWide {
			if pc+1 >= len(code) {
				return nil, fmt.Errorf("pc %d: wide at end of code", pc)
			}
			in.Op, in.Wide = classfile.Opcode(code[pc+1]), true
			size = 4
			if in.Op == classfile.OpIinc {
				size = 6
			}
			if pc+4 <= len(code) {
				in.Index = int(binary.BigEndian.Uint16(code[pc+2:]))
			}
		}
		if size == 0 {
			return nil, fmt.Errorf("pc %d: unsupported opcode %#x", pc, byte(op))
		}
		if pc+size > len(code) {
			return nil, fmt.Errorf("pc %d: %#x truncated", pc, byte(op))
		}
		switch {
		case in.Wide:
		case op.IsBranch():
			off := int16(binary.BigEndian.Uint16(code[pc+1:]))
			in.Target = pc + int(off)
		case size == 2:
			in.Index = int(code[pc+1])
		case size >= 3:
			in.Index = int(binary.BigEndian.Uint16(code[pc+1:]))
		}
		out = append(out, in)
		pc += size
	}
	return out, nil
}

// Ops returns the opcode sequence of code.
func Ops(code []byte) ([]classfile.Opcode, error) {
	ins, err := Instructions(code)
	if err != nil {
		return nil, err
	}
	ops := make([]classfile.Opcode, len(ins))
	for i, in := range ins {
		ops[i] = in.Op
	}
	return ops, nil
}

// CheckCode verifies that every branch and handler lands on an
// instruction boundary inside the code and that control cannot run off
// the end.
func CheckCode(c *Code) error {
	ins, err := Instructions(c.Bytes)
	if err != nil {
		return err
	}
	if len(ins) == 0 {
		return fmt.Errorf("empty code")
	}
	starts := make(map[int]bool, len(ins))
	for _, in := range ins {
		starts[in.PC] = true
	}
	for _, in := range ins {
		if in.Target >= 0 || in.Op.IsBranch() {
			if !starts[in.Target] {
				return fmt.Errorf("pc %d: branch to %d is not an instruction start", in.PC, in.Target)
			}
		}
	}
	if last := ins[len(ins)-1]; !last.Op.IsTerminal() {
		return fmt.Errorf("pc %d: code falls off the end after %#x", last.PC, byte(last.Op))
	}
	for i, h := range c.Handlers {
		if h.Start >= h.End {
			return fmt.Errorf("handler %d: empty range [%d,%d)", i, h.Start, h.End)
		}
		if !starts[h.Start] || !starts[h.PC] || (h.End != len(c.Bytes) && !starts[h.End]) {
			return fmt.Errorf("handler %d: [%d,%d)->%d not on instruction boundaries", i, h.Start, h.End, h.PC)
		}
	}
	return nil
}

// CheckPool verifies that every pool reference points at an entry of the
// right kind and that no two entries are equal.
func CheckPool(cf *ClassFile) error {
	seen := make(map[Constant]int, len(cf.Pool))
	for i := 1; i < len(cf.Pool); i++ {
		c := cf.Pool[i]
		if c.Tag == 0 {
			if i > 1 && cf.Pool[i-1].Tag.Wide() {
				continue
			}
			return fmt.Errorf("pool entry %d is empty", i)
		}
		idx, err := safecast.Conv[uint16](i)
		if err != nil {
			return fmt.Errorf("pool index %d: %w", i, err)
		}
		switch c.Tag {
		case classfile.TagClass, classfile.TagString:
			if _, err := cf.Utf8(c.A); err != nil {
				return fmt.Errorf("entry %d (%s): %w", i, c.Tag, err)
			}
		case classfile.TagNameAndType:
			if _, err := cf.Utf8(c.A); err != nil {
				return fmt.Errorf("entry %d: name: %w", i, err)
			}
			if _, err := cf.Utf8(c.B); err != nil {
				return fmt.Errorf("entry %d: descriptor: %w", i, err)
			}
		case classfile.TagFieldref, classfile.TagMethodref, classfile.TagInterfaceMethodref:
			if _, _, _, err := cf.MemberRef(idx); err != nil {
				return fmt.Errorf("entry %d: %w", i, err)
			}
		}
		if prev, dup := seen[c]; dup {
			return fmt.Errorf("entries %d and %d are both %s %+v", prev, i, c.Tag, c)
		}
		seen[c] = i
	}
	return nil
}

// CountRefs counts pool entries of tag referring to owner.name:desc.
func CountRefs(cf *ClassFile, tag classfile.ConstantTag, owner, name, desc string) int {
	n := 0
	for i := 1; i < len(cf.Pool); i++ {
		if cf.Pool[i].Tag != tag {
			continue
		}
		idx, err := safecast.Conv[uint16](i)
		if err != nil {
			return n
		}
		o, nm, d, err := cf.MemberRef(idx)
		if err == nil && o == owner && nm == name && d == desc {
			n++
		}
	}
	return n
}

// CheckClass decodes data and runs every structural check on it.
func CheckClass(data []byte) (*ClassFile, error) {
	cf, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := CheckPool(cf); err != nil {
		return nil, err
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		if m.Attr(classfile.AttrCode) == nil {
			continue
		}
		code, err := cf.DecodeCode(m)
		if err != nil {
			return nil, fmt.Errorf("%s%s: %w", m.Name, m.Descriptor, err)
		}
		if err := CheckCode(code); err != nil {
			return nil, fmt.Errorf("%s%s: %w", m.Name, m.Descriptor, err)
		}
	}
	return cf, nil
}
