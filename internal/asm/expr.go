package asm

import (
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// ExprKind tags the variant of an expression node.
type ExprKind uint8

const (
	ExprConst ExprKind = iota + 1
	ExprThis
	ExprLocal
	ExprStaticGet
	ExprFieldGet
	ExprArrayGet
	ExprArrayLength
	ExprInvoke
	ExprNew
	ExprNewArray
	ExprConvert
	ExprCheckCast
	ExprUnary
	ExprNot
	ExprBinary
	ExprCompare
	ExprNullTest
	ExprInstanceOf
	ExprLogic
	ExprConcat
)

func (k ExprKind) String() string {
	switch k {
	case ExprConst:
		return "const"
	case ExprThis:
		return "this"
	case ExprLocal:
		return "local"
	case ExprStaticGet:
		return "static"
	case ExprFieldGet:
		return "field"
	case ExprArrayGet:
		return "index"
	case ExprArrayLength:
		return "length"
	case ExprInvoke:
		return "invoke"
	case ExprNew:
		return "new"
	case ExprNewArray:
		return "newarray"
	case ExprConvert:
		return "convert"
	case ExprCheckCast:
		return "checkcast"
	case ExprUnary:
		return "unary"
	case ExprNot:
		return "not"
	case ExprBinary:
		return "binary"
	case ExprCompare:
		return "compare"
	case ExprNullTest:
		return "nulltest"
	case ExprInstanceOf:
		return "instanceof"
	case ExprLogic:
		return "logic"
	case ExprConcat:
		return "concat"
	}
	return "unknown"
}

// Cmp is a comparison operator. The order matches ifeq..ifle so the
// opcode is a fixed offset and negation flips the low bit.
type Cmp uint8

const (
	CmpEq Cmp = iota
	CmpNe
	CmpLt
	CmpGe
	CmpGt
	CmpLe
)

func (c Cmp) Negate() Cmp { return c ^ 1 }

func (c Cmp) String() string {
	return [...]string{"==", "!=", "<", ">=", ">", "<="}[c]
}

// Expr is one node of an expression tree. Building nodes never emits
// code; a node's bytes appear when the statement owning its root runs.
//
// A node is owned exactly once: either it becomes the operand of another
// node or statement (subsumed) or it is itself run as a statement
// (consumed). Suppressed nodes were inserted implicitly (conversions,
// boxing) and are skipped by the pseudo-source rendering.
type Expr struct {
	m      *Method
	kind   ExprKind
	typ    jtype.Type
	args   []*Expr
	parent *Expr

	op    classfile.Opcode
	ops   []classfile.Opcode // conversion chain
	cmp   Cmp
	and   bool // ExprLogic: && when true, || otherwise
	value any  // ExprConst payload
	local *Local
	ref   uint16   // pool index of the field, method, class or constant
	aux   []uint16 // extra pool indices (constructor, StringBuilder refs)
	slots int      // argument slots of an interface call
	sym   string   // operator or member spelling for rendering
	owner jtype.Type

	subsumed   bool
	consumed   bool
	suppressed bool
}

// Kind returns the node variant.
func (e *Expr) Kind() ExprKind { return e.kind }

// Type returns the result type; Void for calls without a value.
func (e *Expr) Type() jtype.Type { return e.typ }

// Subsumed reports that the node is another node's operand.
func (e *Expr) Subsumed() bool { return e.subsumed }

// Consumed reports that the node ran as a statement root.
func (e *Expr) Consumed() bool { return e.consumed }

// Suppressed reports an implicitly inserted node.
func (e *Expr) Suppressed() bool { return e.suppressed }

// Parent returns the node this one is an operand of, if any.
func (e *Expr) Parent() *Expr { return e.parent }

// Root follows parents to the top of the tree.
func (e *Expr) Root() *Expr {
	for e.parent != nil {
		e = e.parent
	}
	return e
}

func (e *Expr) owned() bool { return e.subsumed || e.consumed }

// isCondition reports nodes compiled as branches.
func (e *Expr) isCondition() bool {
	switch e.kind {
	case ExprCompare, ExprNullTest, ExprNot, ExprLogic:
		return true
	}
	return false
}

// claim checks that operands may be attached to a new owner. It mutates
// nothing, so a failed check leaves the operands as they were.
func (m *Method) claim(kids ...*Expr) error {
	for i, k := range kids {
		if k == nil {
			if err := m.c.usable(); err != nil {
				return err
			}
			return diag.Errorf(diag.TypOperandMismatch, "missing operand %d", i)
		}
		if k.m != m {
			return diag.Errorf(diag.SynForeignNode, "%s node belongs to %s", k.kind, k.m.where)
		}
		if k.owned() {
			return diag.Errorf(diag.SynNodeReused, "%s node already used", k.kind)
		}
		for _, o := range kids[:i] {
			if o == k {
				return diag.Errorf(diag.SynNodeReused, "%s node passed twice", k.kind)
			}
		}
	}
	return nil
}

// node creates a node owning args.
func (m *Method) node(kind ExprKind, t jtype.Type, args ...*Expr) *Expr {
	e := &Expr{m: m, kind: kind, typ: t, args: args}
	for _, a := range args {
		a.subsumed = true
		a.parent = e
	}
	m.nodes = append(m.nodes, e)
	return e
}

// implicit creates a suppressed node wrapping a single operand.
func (m *Method) implicit(kind ExprKind, t jtype.Type, arg *Expr) *Expr {
	e := m.node(kind, t, arg)
	e.suppressed = true
	return e
}

// own attaches a statement operand.
func own(e *Expr) {
	e.subsumed = true
}

// readsOf visits every local read in the tree.
func (e *Expr) readsOf(visit func(*Local) bool) bool {
	if e.kind == ExprLocal && !visit(e.local) {
		return false
	}
	for _, a := range e.args {
		if !a.readsOf(visit) {
			return false
		}
	}
	return true
}
