package classfile

import "strings"

const (
	Magic = 0xCAFEBABE

	// MajorJava5 needs no StackMapTable; the type-inferencing verifier
	// accepts straight-line code with forward and backward branches.
	MajorJava5 uint16 = 49
	MajorJava6 uint16 = 50

	// MaxPoolEntries is the largest constant_pool_count minus one.
	MaxPoolEntries = 65535
	// MaxLocals bounds max_locals (u2).
	MaxLocals = 65535
	// MaxCodeLength bounds code_length.
	MaxCodeLength = 65535
	// MaxUtf8Length bounds the encoded byte length of a Utf8 entry.
	MaxUtf8Length = 65535
)

type AccessFlags uint16

const (
	AccPublic       AccessFlags = 0x0001
	AccPrivate      AccessFlags = 0x0002
	AccProtected    AccessFlags = 0x0004
	AccStatic       AccessFlags = 0x0008
	AccFinal        AccessFlags = 0x0010
	AccSuper        AccessFlags = 0x0020
	AccSynchronized AccessFlags = 0x0020
	AccVolatile     AccessFlags = 0x0040
	AccBridge       AccessFlags = 0x0040
	AccTransient    AccessFlags = 0x0080
	AccVarargs      AccessFlags = 0x0080
	AccNative       AccessFlags = 0x0100
	AccInterface    AccessFlags = 0x0200
	AccAbstract     AccessFlags = 0x0400
	AccStrict       AccessFlags = 0x0800
	AccSynthetic    AccessFlags = 0x1000
	AccAnnotation   AccessFlags = 0x2000
	AccEnum         AccessFlags = 0x4000
)

func (f AccessFlags) IsPublic() bool    { return f&AccPublic != 0 }
func (f AccessFlags) IsPrivate() bool   { return f&AccPrivate != 0 }
func (f AccessFlags) IsProtected() bool { return f&AccProtected != 0 }
func (f AccessFlags) IsStatic() bool    { return f&AccStatic != 0 }
func (f AccessFlags) IsFinal() bool     { return f&AccFinal != 0 }
func (f AccessFlags) IsNative() bool    { return f&AccNative != 0 }
func (f AccessFlags) IsInterface() bool { return f&AccInterface != 0 }
func (f AccessFlags) IsAbstract() bool  { return f&AccAbstract != 0 }

// Modifiers renders member flags in source order (public static final).
func (f AccessFlags) Modifiers(method bool) string {
	var out []string
	add := func(cond bool, s string) {
		if cond {
			out = append(out, s)
		}
	}
	add(f.IsPublic(), "public")
	add(f.IsProtected(), "protected")
	add(f.IsPrivate(), "private")
	add(f.IsAbstract() && !f.IsInterface(), "abstract")
	add(f.IsStatic(), "static")
	add(f.IsFinal(), "final")
	if method {
		add(f&AccSynchronized != 0, "synchronized")
		add(f.IsNative(), "native")
	} else {
		add(f&AccVolatile != 0, "volatile")
		add(f&AccTransient != 0, "transient")
	}
	return strings.Join(out, " ")
}

type ConstantTag uint8

const (
	TagUtf8               ConstantTag = 1
	TagInteger            ConstantTag = 3
	TagFloat              ConstantTag = 4
	TagLong               ConstantTag = 5
	TagDouble             ConstantTag = 6
	TagClass              ConstantTag = 7
	TagString             ConstantTag = 8
	TagFieldref           ConstantTag = 9
	TagMethodref          ConstantTag = 10
	TagInterfaceMethodref ConstantTag = 11
	TagNameAndType        ConstantTag = 12
)

func (t ConstantTag) String() string {
	switch t {
	case TagUtf8:
		return "Utf8"
	case TagInteger:
		return "Integer"
	case TagFloat:
		return "Float"
	case TagLong:
		return "Long"
	case TagDouble:
		return "Double"
	case TagClass:
		return "Class"
	case TagString:
		return "String"
	case TagFieldref:
		return "Fieldref"
	case TagMethodref:
		return "Methodref"
	case TagInterfaceMethodref:
		return "InterfaceMethodref"
	case TagNameAndType:
		return "NameAndType"
	}
	return "Unknown"
}

// Wide reports tags that occupy two pool slots.
func (t ConstantTag) Wide() bool {
	return t == TagLong || t == TagDouble
}

// Attribute names.
const (
	AttrCode                        = "Code"
	AttrConstantValue               = "ConstantValue"
	AttrExceptions                  = "Exceptions"
	AttrLineNumberTable             = "LineNumberTable"
	AttrLocalVariableTable          = "LocalVariableTable"
	AttrSourceFile                  = "SourceFile"
	AttrRuntimeVisibleAnnotations   = "RuntimeVisibleAnnotations"
	AttrRuntimeInvisibleAnnotations = "RuntimeInvisibleAnnotations"
)
