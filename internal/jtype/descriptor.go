package jtype

import (
	"fmt"
	"strings"
)

var boxNames = map[Kind]string{
	KindBoolean: "java/lang/Boolean",
	KindByte:    "java/lang/Byte",
	KindShort:   "java/lang/Short",
	KindChar:    "java/lang/Character",
	KindInt:     "java/lang/Integer",
	KindLong:    "java/lang/Long",
	KindFloat:   "java/lang/Float",
	KindDouble:  "java/lang/Double",
}

var unboxKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(boxNames))
	for k, name := range boxNames {
		m[name] = k
	}
	return m
}()

// Box returns the wrapper class of a primitive type.
func Box(t Type) (Type, bool) {
	if t.dims > 0 {
		return Type{}, false
	}
	name, ok := boxNames[t.base]
	if !ok {
		return Type{}, false
	}
	return Class(name), true
}

// Unbox returns the primitive matching a wrapper class.
func Unbox(t Type) (Type, bool) {
	if t.dims > 0 || t.base != KindReference {
		return Type{}, false
	}
	k, ok := unboxKinds[t.class]
	if !ok {
		return Type{}, false
	}
	return Primitive(k), true
}

// ParseDescriptor decodes a single field descriptor.
func ParseDescriptor(desc string) (Type, error) {
	t, rest, err := parseOne(desc)
	if err != nil {
		return Type{}, err
	}
	if rest != "" {
		return Type{}, fmt.Errorf("descriptor %q: trailing %q", desc, rest)
	}
	return t, nil
}

// ParseMethodDescriptor decodes (params)ret.
func ParseMethodDescriptor(desc string) (ret Type, params []Type, err error) {
	if !strings.HasPrefix(desc, "(") {
		return Type{}, nil, fmt.Errorf("method descriptor %q: missing '('", desc)
	}
	rest := desc[1:]
	for {
		if rest == "" {
			return Type{}, nil, fmt.Errorf("method descriptor %q: missing ')'", desc)
		}
		if rest[0] == ')' {
			rest = rest[1:]
			break
		}
		var p Type
		p, rest, err = parseOne(rest)
		if err != nil {
			return Type{}, nil, err
		}
		if p.IsVoid() {
			return Type{}, nil, fmt.Errorf("method descriptor %q: void parameter", desc)
		}
		params = append(params, p)
	}
	if rest == "V" {
		return Void, params, nil
	}
	ret, err = ParseDescriptor(rest)
	if err != nil {
		return Type{}, nil, err
	}
	return ret, params, nil
}

func parseOne(s string) (Type, string, error) {
	var dims uint8
	for len(s) > 0 && s[0] == '[' {
		if dims == 255 {
			return Type{}, "", fmt.Errorf("descriptor: too many array dimensions")
		}
		dims++
		s = s[1:]
	}
	if s == "" {
		return Type{}, "", fmt.Errorf("descriptor: unexpected end")
	}
	var t Type
	switch s[0] {
	case 'Z':
		t = Boolean
	case 'B':
		t = Byte
	case 'S':
		t = Short
	case 'C':
		t = Char
	case 'I':
		t = Int
	case 'J':
		t = Long
	case 'F':
		t = Float
	case 'D':
		t = Double
	case 'V':
		if dims > 0 {
			return Type{}, "", fmt.Errorf("descriptor: array of void")
		}
		return Void, s[1:], nil
	case 'L':
		end := strings.IndexByte(s, ';')
		if end < 2 {
			return Type{}, "", fmt.Errorf("descriptor: bad class reference %q", s)
		}
		t = Class(s[1:end])
		t.dims = dims
		return t, s[end+1:], nil
	default:
		return Type{}, "", fmt.Errorf("descriptor: unknown type letter %q", s[0])
	}
	t.dims = dims
	return t, s[1:], nil
}

// Parse accepts source-like spellings used by recipes: int, long[],
// java.lang.String, String (java.lang shorthand) or raw descriptors.
func Parse(name string) (Type, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Type{}, fmt.Errorf("empty type name")
	}
	var dims uint8
	for strings.HasSuffix(name, "[]") {
		dims++
		name = strings.TrimSpace(strings.TrimSuffix(name, "[]"))
	}
	var t Type
	switch name {
	case "void":
		if dims > 0 {
			return Type{}, fmt.Errorf("array of void")
		}
		return Void, nil
	case "boolean":
		t = Boolean
	case "byte":
		t = Byte
	case "short":
		t = Short
	case "char":
		t = Char
	case "int":
		t = Int
	case "long":
		t = Long
	case "float":
		t = Float
	case "double":
		t = Double
	default:
		if strings.HasPrefix(name, "L") && strings.HasSuffix(name, ";") || strings.HasPrefix(name, "[") {
			parsed, err := ParseDescriptor(name)
			if err != nil {
				return Type{}, err
			}
			t = parsed
			break
		}
		if !strings.ContainsAny(name, "./") {
			name = "java/lang/" + name
		}
		t = Class(name)
	}
	if int(t.dims)+int(dims) > 255 {
		return Type{}, fmt.Errorf("too many array dimensions")
	}
	t.dims += dims
	return t, nil
}
