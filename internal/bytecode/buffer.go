// Package bytecode holds the append-only instruction buffer of one method
// body and its jump backpatch stack.
package bytecode

import (
	"encoding/binary"
	"slices"

	"fortio.org/safecast"

	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// Site is the address of a branch opcode whose 16-bit operand has not been
// written yet.
type Site int

// Buffer accumulates instruction bytes. Open patch sites form a LIFO stack
// because block structure nests.
type Buffer struct {
	code    []byte
	patches []Site
}

func New() *Buffer {
	return &Buffer{code: make([]byte, 0, 64)}
}

// Pos returns the offset the next instruction will occupy.
func (b *Buffer) Pos() int { return len(b.code) }

// Bytes returns the code emitted so far.
func (b *Buffer) Bytes() []byte { return b.code }

// OpenPatches returns the number of sites still waiting for a target.
func (b *Buffer) OpenPatches() int { return len(b.patches) }

func (b *Buffer) Emit(op classfile.Opcode) {
	b.code = append(b.code, byte(op))
}

// EmitU1 emits op followed by a one-byte operand.
func (b *Buffer) EmitU1(op classfile.Opcode, v uint8) {
	b.code = append(b.code, byte(op), v)
}

// EmitU2 emits op followed by a big-endian two-byte operand.
func (b *Buffer) EmitU2(op classfile.Opcode, v uint16) {
	b.code = append(b.code, byte(op), byte(v>>8), byte(v))
}

// EmitInterface emits invokeinterface with its count and zero bytes.
func (b *Buffer) EmitInterface(index uint16, argSlots int) error {
	n, err := safecast.Conv[uint8](argSlots + 1)
	if err != nil {
		return diag.Errorf(diag.TypArgumentMismatch, "invokeinterface argument slots %d: %v", argSlots, err)
	}
	b.EmitU2(classfile.OpInvokeinterface, index)
	b.code = append(b.code, n, 0)
	return nil
}

var (
	loadOps  = [...]classfile.Opcode{classfile.OpIload, classfile.OpLload, classfile.OpFload, classfile.OpDload, classfile.OpAload}
	load0    = [...]classfile.Opcode{classfile.OpIload0, classfile.OpLload0, classfile.OpFload0, classfile.OpDload0, classfile.OpAload0}
	storeOps = [...]classfile.Opcode{classfile.OpIstore, classfile.OpLstore, classfile.OpFstore, classfile.OpDstore, classfile.OpAstore}
	store0   = [...]classfile.Opcode{classfile.OpIstore0, classfile.OpLstore0, classfile.OpFstore0, classfile.OpDstore0, classfile.OpAstore0}
)

// family maps a value kind onto the i/l/f/d/a opcode families.
func family(k jtype.Kind) int {
	switch k {
	case jtype.KindLong:
		return 1
	case jtype.KindFloat:
		return 2
	case jtype.KindDouble:
		return 3
	case jtype.KindReference:
		return 4
	}
	return 0
}

// Load emits the load of slot for a value of type t, using xload_<n> for
// slots 0-3 and the wide prefix above 255.
func (b *Buffer) Load(t jtype.Type, slot int) error {
	f := family(t.Kind())
	return b.local(loadOps[f], load0[f], slot)
}

// Store is Load's counterpart.
func (b *Buffer) Store(t jtype.Type, slot int) error {
	f := family(t.Kind())
	return b.local(storeOps[f], store0[f], slot)
}

func (b *Buffer) local(op, op0 classfile.Opcode, slot int) error {
	switch {
	case slot < 0:
		return diag.Errorf(diag.SynTooManyLocals, "negative local slot %d", slot)
	case slot <= 3:
		b.Emit(op0 + classfile.Opcode(slot))
	case slot <= 255:
		b.EmitU1(op, uint8(slot))
	default:
		idx, err := safecast.Conv[uint16](slot)
		if err != nil {
			return diag.Errorf(diag.SynTooManyLocals, "local slot %d: %v", slot, err)
		}
		b.Emit(classfile.OpWide)
		b.EmitU2(op, idx)
	}
	return nil
}

// Iinc adds delta to an int local, widening when slot or delta need it.
func (b *Buffer) Iinc(slot, delta int) error {
	if slot >= 0 && slot <= 255 && delta >= -128 && delta <= 127 {
		b.code = append(b.code, byte(classfile.OpIinc), uint8(slot), byte(int8(delta)))
		return nil
	}
	idx, err := safecast.Conv[uint16](slot)
	if err != nil {
		return diag.Errorf(diag.SynTooManyLocals, "local slot %d: %v", slot, err)
	}
	d, err := safecast.Conv[int16](delta)
	if err != nil {
		return diag.Errorf(diag.TypOperandMismatch, "iinc delta %d: %v", delta, err)
	}
	b.Emit(classfile.OpWide)
	b.EmitU2(classfile.OpIinc, idx)
	b.code = binary.BigEndian.AppendUint16(b.code, uint16(d))
	return nil
}

// Ldc loads a pool constant, folding to the one-byte ldc form when the
// index fits. Category-2 constants always use ldc2_w.
func (b *Buffer) Ldc(index uint16, category2 bool) {
	switch {
	case category2:
		b.EmitU2(classfile.OpLdc2W, index)
	case index <= 255:
		b.EmitU1(classfile.OpLdc, uint8(index))
	default:
		b.EmitU2(classfile.OpLdcW, index)
	}
}

// PushPatch emits a forward branch and pushes its site onto the patch stack.
func (b *Buffer) PushPatch(op classfile.Opcode) {
	b.patches = append(b.patches, b.branch(op))
}

func (b *Buffer) branch(op classfile.Opcode) Site {
	s := Site(len(b.code))
	b.code = append(b.code, byte(op), 0, 0)
	return s
}

// PopPatch resolves the most recent open site to the current position.
func (b *Buffer) PopPatch() error {
	s, err := b.TakePatch()
	if err != nil {
		return err
	}
	return b.Resolve(s, b.Pos())
}

// SwapPatch exchanges the two most recent open sites.
func (b *Buffer) SwapPatch() error {
	n := len(b.patches)
	if n < 2 {
		return diag.Errorf(diag.SynPatchUnderflow, "swap needs two open sites, have %d", n)
	}
	b.patches[n-1], b.patches[n-2] = b.patches[n-2], b.patches[n-1]
	return nil
}

// TakePatch pops the most recent open site without resolving it, so the
// caller can hold it in a break or continue list.
func (b *Buffer) TakePatch() (Site, error) {
	n := len(b.patches)
	if n == 0 {
		return 0, diag.Errorf(diag.SynPatchUnderflow, "no open patch site")
	}
	s := b.patches[n-1]
	b.patches = b.patches[:n-1]
	return s, nil
}

// Jump emits a forward branch whose site the caller keeps.
func (b *Buffer) Jump(op classfile.Opcode) Site {
	return b.branch(op)
}

// Resolve writes the distance from s to target into the site operand.
func (b *Buffer) Resolve(s Site, target int) error {
	off, err := safecast.Conv[int16](target - int(s))
	if err != nil {
		return diag.Errorf(diag.SynBranchTooFar, "branch at %d to %d: %v", s, target, err)
	}
	binary.BigEndian.PutUint16(b.code[s+1:], uint16(off))
	return nil
}

// ResolveAll resolves every site in list to target.
func (b *Buffer) ResolveAll(list []Site, target int) error {
	for _, s := range list {
		if err := b.Resolve(s, target); err != nil {
			return err
		}
	}
	return nil
}

// BranchTo emits a branch to an already known (usually backward) target.
func (b *Buffer) BranchTo(op classfile.Opcode, target int) error {
	return b.Resolve(b.branch(op), target)
}

// Prepend splices prefix ahead of the current content. Resolved branches
// are relative and stay valid; open sites would not, so both buffers must
// have none.
func (b *Buffer) Prepend(prefix *Buffer) error {
	if len(b.patches) > 0 || len(prefix.patches) > 0 {
		return diag.Errorf(diag.SynPatchUnderflow, "prepend with %d open patch sites", len(b.patches)+len(prefix.patches))
	}
	b.code = slices.Concat(prefix.code, b.code)
	return nil
}
