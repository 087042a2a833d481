package asm

import (
	"strconv"
	"strings"

	"classbuilder/internal/classfile"
	"classbuilder/internal/jtype"
)

// render spells e as Java-like source. Suppressed nodes show their
// operand; binary forms are fully parenthesized. The output is for
// reading only and is not meant to compile.
func render(e *Expr) string {
	if e == nil {
		return ""
	}
	if e.suppressed && len(e.args) > 0 {
		return render(e.args[0])
	}
	switch e.kind {
	case ExprConst:
		return renderConst(e.typ, e.value)
	case ExprThis:
		if e.sym == "super" {
			return "super"
		}
		return "this"
	case ExprLocal:
		return e.local.name
	case ExprStaticGet:
		if t, ok := e.value.(jtype.Type); ok {
			return t.String() + ".class"
		}
		return e.owner.SimpleName() + "." + e.sym
	case ExprFieldGet:
		return render(e.args[0]) + "." + e.sym
	case ExprArrayGet:
		return render(e.args[0]) + "[" + render(e.args[1]) + "]"
	case ExprArrayLength:
		return render(e.args[0]) + ".length"
	case ExprInvoke:
		if e.op == classfile.OpInvokestatic {
			return e.owner.SimpleName() + "." + e.sym + "(" + renderList(e.args) + ")"
		}
		return render(e.args[0]) + "." + e.sym + "(" + renderList(e.args[1:]) + ")"
	case ExprNew:
		return "new " + e.typ.SimpleName() + "(" + renderList(e.args) + ")"
	case ExprNewArray:
		return "new " + e.typ.Elem().SimpleName() + "[" + render(e.args[0]) + "]"
	case ExprConvert, ExprCheckCast:
		return "((" + e.typ.SimpleName() + ") " + render(e.args[0]) + ")"
	case ExprUnary:
		return e.sym + render(e.args[0])
	case ExprNot:
		return "!" + render(e.args[0])
	case ExprBinary, ExprCompare, ExprLogic, ExprConcat:
		return "(" + render(e.args[0]) + " " + e.sym + " " + render(e.args[1]) + ")"
	case ExprNullTest:
		return "(" + render(e.args[0]) + " " + e.cmp.String() + " null)"
	case ExprInstanceOf:
		return "(" + render(e.args[0]) + " instanceof " + e.owner.SimpleName() + ")"
	}
	return "<" + e.kind.String() + ">"
}

func renderList(args []*Expr) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = render(a)
	}
	return strings.Join(parts, ", ")
}

func renderConst(t jtype.Type, v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case string:
		return strconv.Quote(x)
	case int32:
		if t.Kind() == jtype.KindChar {
			return strconv.QuoteRune(rune(x))
		}
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10) + "L"
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32) + "f"
	case float64:
		s := strconv.FormatFloat(x, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnN") {
			s += ".0"
		}
		return s
	case jtype.Type:
		return x.SimpleName() + ".class"
	}
	return "?"
}

func joinTypes(ts []jtype.Type) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.SimpleName()
	}
	return strings.Join(parts, ", ")
}

// Render returns a pseudo-source view of the class as built so far.
func (c *Class) Render() string {
	var sb strings.Builder
	kind := "class"
	flags := c.info.Flags
	if flags.IsInterface() {
		kind = "interface"
	}
	if mods := flags.Modifiers(false); mods != "" {
		sb.WriteString(mods + " ")
	}
	sb.WriteString(kind + " " + c.Type().SimpleName())
	if c.info.Super != "java/lang/Object" && !flags.IsInterface() {
		sb.WriteString(" extends " + jtype.Class(c.info.Super).SimpleName())
	}
	if len(c.info.Interfaces) > 0 {
		names := make([]jtype.Type, len(c.info.Interfaces))
		for i, in := range c.info.Interfaces {
			names[i] = jtype.Class(in)
		}
		sb.WriteString(" implements " + joinTypes(names))
	}
	sb.WriteString(" {\n")

	for _, f := range c.fields {
		sb.WriteString("    ")
		if mods := f.info.Flags.Modifiers(false); mods != "" {
			sb.WriteString(mods + " ")
		}
		sb.WriteString(f.info.Type.SimpleName() + " " + f.info.Name)
		if f.hasInit {
			sb.WriteString(" = " + renderConst(f.info.Type, f.init))
		}
		sb.WriteString(";\n")
	}
	for _, m := range c.methods {
		sb.WriteString("\n")
		m.renderTo(&sb)
	}
	sb.WriteString("}\n")
	return sb.String()
}

func (m *Method) renderTo(sb *strings.Builder) {
	info := m.info
	sb.WriteString("    ")
	if info.Name == "<clinit>" {
		sb.WriteString("static {\n")
	} else {
		flags := info.Flags
		if m.c.info.IsInterface() {
			flags &^= classfile.AccPublic | classfile.AccAbstract
		}
		if mods := flags.Modifiers(true); mods != "" {
			sb.WriteString(mods + " ")
		}
		if info.IsConstructor() {
			sb.WriteString(m.c.Type().SimpleName())
		} else {
			sb.WriteString(info.Return.SimpleName() + " " + info.Name)
		}
		params := make([]string, len(m.params))
		for i, p := range m.params {
			params[i] = p.typ.SimpleName() + " " + p.name
		}
		sb.WriteString("(" + strings.Join(params, ", ") + ")")
		if len(m.throwNames) > 0 {
			sb.WriteString(" throws " + joinTypes(m.throwNames))
		}
		if m.abstract {
			sb.WriteString(";\n")
			return
		}
		sb.WriteString(" {\n")
	}
	for _, l := range m.rendered {
		sb.WriteString(strings.Repeat("    ", l.depth+1) + l.text + "\n")
	}
	if !m.finished {
		sb.WriteString("        // open\n")
	}
	sb.WriteString("    }\n")
}

// Render returns the pseudo-source lines of the method body so far.
func (m *Method) Render() string {
	var sb strings.Builder
	m.renderTo(&sb)
	return sb.String()
}
