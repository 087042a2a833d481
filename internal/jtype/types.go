package jtype

import (
	"strings"
)

// Kind classifies a type for promotion and opcode selection.
type Kind uint8

const (
	// KindVoid marks "no value" (void return, statement nodes).
	KindVoid Kind = iota
	KindBoolean
	KindByte
	KindShort
	KindChar
	KindInt
	KindLong
	KindFloat
	KindDouble
	// KindReference covers classes, interfaces, arrays and null.
	KindReference
)

// String returns the source-level spelling of the kind.
func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBoolean:
		return "boolean"
	case KindByte:
		return "byte"
	case KindShort:
		return "short"
	case KindChar:
		return "char"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindReference:
		return "reference"
	}
	return "unknown"
}

// Level returns the numeric width level used by the promotion ladder.
// short and char share a level: neither widens to the other.
func (k Kind) Level() int {
	switch k {
	case KindBoolean:
		return 1
	case KindByte:
		return 2
	case KindShort, KindChar:
		return 3
	case KindInt:
		return 4
	case KindLong:
		return 5
	case KindFloat:
		return 6
	case KindDouble:
		return 7
	case KindReference:
		return 8
	}
	return 0
}

// IsNumeric reports byte..double.
func (k Kind) IsNumeric() bool {
	return k >= KindByte && k <= KindDouble
}

// IsIntegral reports byte, short, char, int and long.
func (k Kind) IsIntegral() bool {
	return k >= KindByte && k <= KindLong
}

// IsIntLike reports kinds carried as an int on the operand stack.
func (k Kind) IsIntLike() bool {
	return k >= KindBoolean && k <= KindInt
}

// IsPrimitive reports any non-void, non-reference kind.
func (k Kind) IsPrimitive() bool {
	return k >= KindBoolean && k <= KindDouble
}

func (k Kind) letter() byte {
	switch k {
	case KindVoid:
		return 'V'
	case KindBoolean:
		return 'Z'
	case KindByte:
		return 'B'
	case KindShort:
		return 'S'
	case KindChar:
		return 'C'
	case KindInt:
		return 'I'
	case KindLong:
		return 'J'
	case KindFloat:
		return 'F'
	case KindDouble:
		return 'D'
	}
	return 0
}

const (
	selfMarker = "\x00this"
	nullMarker = "\x00null"
)

// Type is an opaque, comparable type handle.
//
// For class types base is KindReference and class holds the internal
// name (java/lang/String). Arrays carry dims > 0 over their element base.
type Type struct {
	base  Kind
	class string
	dims  uint8
}

var (
	Void    = Type{base: KindVoid}
	Boolean = Type{base: KindBoolean}
	Byte    = Type{base: KindByte}
	Short   = Type{base: KindShort}
	Char    = Type{base: KindChar}
	Int     = Type{base: KindInt}
	Long    = Type{base: KindLong}
	Float   = Type{base: KindFloat}
	Double  = Type{base: KindDouble}

	// Null is the type of the null literal; assignable to every reference.
	Null = Type{base: KindReference, class: nullMarker}

	// This denotes the class under construction, resolved lazily.
	This = Type{base: KindReference, class: selfMarker}
	// ThisArray denotes a one-dimensional array of the class under construction.
	ThisArray = Type{base: KindReference, class: selfMarker, dims: 1}

	Object    = Class("java/lang/Object")
	String    = Class("java/lang/String")
	Throwable = Class("java/lang/Throwable")
)

// Class returns a class or interface type. Dotted names are accepted.
func Class(name string) Type {
	return Type{base: KindReference, class: strings.ReplaceAll(name, ".", "/")}
}

// Primitive returns the primitive type for k.
func Primitive(k Kind) Type {
	return Type{base: k}
}

// ArrayOf returns an array type with one more dimension than elem.
func ArrayOf(elem Type) Type {
	elem.dims++
	return elem
}

// Kind returns the stack-level kind of the type.
func (t Type) Kind() Kind {
	if t.dims > 0 {
		return KindReference
	}
	return t.base
}

// IsVoid reports the void type.
func (t Type) IsVoid() bool { return t.Kind() == KindVoid }

// IsReference reports classes, arrays and null.
func (t Type) IsReference() bool { return t.Kind() == KindReference }

// IsPrimitive reports boolean through double.
func (t Type) IsPrimitive() bool { return t.Kind().IsPrimitive() }

// IsArray reports array types.
func (t Type) IsArray() bool { return t.dims > 0 }

// IsNull reports the null literal type.
func (t Type) IsNull() bool { return t.class == nullMarker && t.dims == 0 }

// IsThis reports whether t mentions the class-under-construction sentinel.
func (t Type) IsThis() bool { return t.class == selfMarker }

// Dims returns the number of array dimensions.
func (t Type) Dims() int { return int(t.dims) }

// Elem returns the element type of an array; t itself otherwise.
func (t Type) Elem() Type {
	if t.dims == 0 {
		return t
	}
	t.dims--
	return t
}

// InternalName returns the class name for class types (java/lang/String)
// and the descriptor for arrays ([I), as used by Class constant entries.
func (t Type) InternalName() string {
	if t.dims > 0 {
		return t.Descriptor()
	}
	return t.class
}

// Resolve replaces the This sentinel with the named class.
func (t Type) Resolve(thisName string) Type {
	if t.class == selfMarker {
		t.class = thisName
	}
	return t
}

// Category2 reports long and double, which take two slots and two stack words.
func (t Type) Category2() bool {
	k := t.Kind()
	return k == KindLong || k == KindDouble
}

// Slots returns the number of local/stack words a value occupies.
func (t Type) Slots() int {
	switch {
	case t.IsVoid():
		return 0
	case t.Category2():
		return 2
	}
	return 1
}

// Descriptor returns the field descriptor (I, Ljava/lang/String;, [[J).
func (t Type) Descriptor() string {
	var sb strings.Builder
	for i := uint8(0); i < t.dims; i++ {
		sb.WriteByte('[')
	}
	if t.base == KindReference {
		sb.WriteByte('L')
		sb.WriteString(t.class)
		sb.WriteByte(';')
	} else {
		sb.WriteByte(t.base.letter())
	}
	return sb.String()
}

// String returns a source-like spelling (int[], java.lang.String).
func (t Type) String() string {
	var name string
	switch {
	case t.class == nullMarker:
		return "null"
	case t.class == selfMarker:
		name = "this"
	case t.base == KindReference:
		name = strings.ReplaceAll(t.class, "/", ".")
	default:
		name = t.base.String()
	}
	return name + strings.Repeat("[]", int(t.dims))
}

// SimpleName returns the unqualified class name.
func (t Type) SimpleName() string {
	s := t.Elem().String()
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s + strings.Repeat("[]", int(t.dims))
}

// MethodDescriptor encodes (params)ret.
func MethodDescriptor(ret Type, params ...Type) string {
	var sb strings.Builder
	sb.WriteByte('(')
	for _, p := range params {
		sb.WriteString(p.Descriptor())
	}
	sb.WriteByte(')')
	sb.WriteString(ret.Descriptor())
	return sb.String()
}

// Promote applies binary numeric promotion. ok is false when the pair
// cannot be promoted (boolean mixed with numerics, references).
func Promote(a, b Type) (Type, bool) {
	ka, kb := a.Kind(), b.Kind()
	if ka == KindBoolean || kb == KindBoolean {
		if ka == kb {
			return Boolean, true
		}
		return Void, false
	}
	if !ka.IsNumeric() || !kb.IsNumeric() {
		return Void, false
	}
	k := ka
	if kb.Level() > k.Level() {
		k = kb
	}
	if k.Level() < KindInt.Level() {
		k = KindInt
	}
	return Primitive(k), true
}

// PromoteUnary widens byte, short and char to int.
func PromoteUnary(t Type) Type {
	if k := t.Kind(); k == KindByte || k == KindShort || k == KindChar {
		return Int
	}
	return t
}
