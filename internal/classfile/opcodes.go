package classfile

// Opcode is a single JVM instruction byte.
type Opcode uint8

const (
	OpNop             Opcode = 0x00
	OpAconstNull      Opcode = 0x01
	OpIconstM1        Opcode = 0x02
	OpIconst0         Opcode = 0x03
	OpLconst0         Opcode = 0x09
	OpFconst0         Opcode = 0x0b
	OpDconst0         Opcode = 0x0e
	OpBipush          Opcode = 0x10
	OpSipush          Opcode = 0x11
	OpLdc             Opcode = 0x12
	OpLdcW            Opcode = 0x13
	OpLdc2W           Opcode = 0x14
	OpIload           Opcode = 0x15
	OpLload           Opcode = 0x16
	OpFload           Opcode = 0x17
	OpDload           Opcode = 0x18
	OpAload           Opcode = 0x19
	OpIload0          Opcode = 0x1a
	OpLload0          Opcode = 0x1e
	OpFload0          Opcode = 0x22
	OpDload0          Opcode = 0x26
	OpAload0          Opcode = 0x2a
	OpIaload          Opcode = 0x2e
	OpLaload          Opcode = 0x2f
	OpFaload          Opcode = 0x30
	OpDaload          Opcode = 0x31
	OpAaload          Opcode = 0x32
	OpBaload          Opcode = 0x33
	OpCaload          Opcode = 0x34
	OpSaload          Opcode = 0x35
	OpIstore          Opcode = 0x36
	OpLstore          Opcode = 0x37
	OpFstore          Opcode = 0x38
	OpDstore          Opcode = 0x39
	OpAstore          Opcode = 0x3a
	OpIstore0         Opcode = 0x3b
	OpLstore0         Opcode = 0x3f
	OpFstore0         Opcode = 0x43
	OpDstore0         Opcode = 0x47
	OpAstore0         Opcode = 0x4b
	OpIastore         Opcode = 0x4f
	OpLastore         Opcode = 0x50
	OpFastore         Opcode = 0x51
	OpDastore         Opcode = 0x52
	OpAastore         Opcode = 0x53
	OpBastore         Opcode = 0x54
	OpCastore         Opcode = 0x55
	OpSastore         Opcode = 0x56
	OpPop             Opcode = 0x57
	OpPop2            Opcode = 0x58
	OpDup             Opcode = 0x59
	OpDupX1           Opcode = 0x5a
	OpDupX2           Opcode = 0x5b
	OpDup2            Opcode = 0x5c
	OpSwap            Opcode = 0x5f
	OpIadd            Opcode = 0x60
	OpLadd            Opcode = 0x61
	OpFadd            Opcode = 0x62
	OpDadd            Opcode = 0x63
	OpIsub            Opcode = 0x64
	OpImul            Opcode = 0x68
	OpIdiv            Opcode = 0x6c
	OpIrem            Opcode = 0x70
	OpIneg            Opcode = 0x74
	OpLneg            Opcode = 0x75
	OpFneg            Opcode = 0x76
	OpDneg            Opcode = 0x77
	OpIshl            Opcode = 0x78
	OpLshl            Opcode = 0x79
	OpIshr            Opcode = 0x7a
	OpLshr            Opcode = 0x7b
	OpIushr           Opcode = 0x7c
	OpLushr           Opcode = 0x7d
	OpIand            Opcode = 0x7e
	OpLand            Opcode = 0x7f
	OpIor             Opcode = 0x80
	OpLor             Opcode = 0x81
	OpIxor            Opcode = 0x82
	OpLxor            Opcode = 0x83
	OpIinc            Opcode = 0x84
	OpI2l             Opcode = 0x85
	OpI2f             Opcode = 0x86
	OpI2d             Opcode = 0x87
	OpL2i             Opcode = 0x88
	OpL2f             Opcode = 0x89
	OpL2d             Opcode = 0x8a
	OpF2i             Opcode = 0x8b
	OpF2l             Opcode = 0x8c
	OpF2d             Opcode = 0x8d
	OpD2i             Opcode = 0x8e
	OpD2l             Opcode = 0x8f
	OpD2f             Opcode = 0x90
	OpI2b             Opcode = 0x91
	OpI2c             Opcode = 0x92
	OpI2s             Opcode = 0x93
	OpLcmp            Opcode = 0x94
	OpFcmpl           Opcode = 0x95
	OpFcmpg           Opcode = 0x96
	OpDcmpl           Opcode = 0x97
	OpDcmpg           Opcode = 0x98
	OpIfeq            Opcode = 0x99
	OpIfne            Opcode = 0x9a
	OpIflt            Opcode = 0x9b
	OpIfge            Opcode = 0x9c
	OpIfgt            Opcode = 0x9d
	OpIfle            Opcode = 0x9e
	OpIfIcmpeq        Opcode = 0x9f
	OpIfIcmpne        Opcode = 0xa0
	OpIfIcmplt        Opcode = 0xa1
	OpIfIcmpge        Opcode = 0xa2
	OpIfIcmpgt        Opcode = 0xa3
	OpIfIcmple        Opcode = 0xa4
	OpIfAcmpeq        Opcode = 0xa5
	OpIfAcmpne        Opcode = 0xa6
	OpGoto            Opcode = 0xa7
	OpIreturn         Opcode = 0xac
	OpLreturn         Opcode = 0xad
	OpFreturn         Opcode = 0xae
	OpDreturn         Opcode = 0xaf
	OpAreturn         Opcode = 0xb0
	OpReturn          Opcode = 0xb1
	OpGetstatic       Opcode = 0xb2
	OpPutstatic       Opcode = 0xb3
	OpGetfield        Opcode = 0xb4
	OpPutfield        Opcode = 0xb5
	OpInvokevirtual   Opcode = 0xb6
	OpInvokespecial   Opcode = 0xb7
	OpInvokestatic    Opcode = 0xb8
	OpInvokeinterface Opcode = 0xb9
	OpNew             Opcode = 0xbb
	OpNewarray        Opcode = 0xbc
	OpAnewarray       Opcode = 0xbd
	OpArraylength     Opcode = 0xbe
	OpAthrow          Opcode = 0xbf
	OpCheckcast       Opcode = 0xc0
	OpInstanceof      Opcode = 0xc1
	OpWide            Opcode = 0xc4
	OpIfnull          Opcode = 0xc6
	OpIfnonnull       Opcode = 0xc7
)

// Array type codes for newarray.
const (
	ArrayTBoolean uint8 = 4
	ArrayTChar    uint8 = 5
	ArrayTFloat   uint8 = 6
	ArrayTDouble  uint8 = 7
	ArrayTByte    uint8 = 8
	ArrayTShort   uint8 = 9
	ArrayTInt     uint8 = 10
	ArrayTLong    uint8 = 11
)

// IsBranch reports instructions carrying a signed 16-bit branch offset.
func (op Opcode) IsBranch() bool {
	return (op >= OpIfeq && op <= OpGoto) || op == OpIfnull || op == OpIfnonnull
}

// IsTerminal reports instructions after which control never falls through.
func (op Opcode) IsTerminal() bool {
	return (op >= OpIreturn && op <= OpReturn) || op == OpAthrow || op == OpGoto
}

// Negate returns the branch with the opposite condition.
// Pairs are laid out so that flipping the low bit of the offset from
// ifeq negates the test.
func (op Opcode) Negate() Opcode {
	switch {
	case op >= OpIfeq && op <= OpIfAcmpne:
		return OpIfeq + ((op - OpIfeq) ^ 1)
	case op == OpIfnull:
		return OpIfnonnull
	case op == OpIfnonnull:
		return OpIfnull
	}
	return op
}

// Length returns the encoded size of op for fixed-size instructions,
// or 0 for wide/variable forms the assembler never emits.
func (op Opcode) Length() int {
	switch op {
	case OpBipush, OpLdc, OpIload, OpLload, OpFload, OpDload, OpAload,
		OpIstore, OpLstore, OpFstore, OpDstore, OpAstore, OpNewarray:
		return 2
	case OpSipush, OpLdcW, OpLdc2W, OpIinc, OpGetstatic, OpPutstatic, OpGetfield,
		OpPutfield, OpInvokevirtual, OpInvokespecial, OpInvokestatic, OpNew,
		OpAnewarray, OpCheckcast, OpInstanceof:
		return 3
	case OpInvokeinterface:
		return 5
	case OpWide:
		return 0
	}
	if op.IsBranch() {
		return 3
	}
	return 1
}
