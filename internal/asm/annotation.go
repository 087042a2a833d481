package asm

import (
	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
	"classbuilder/internal/jtype"
)

// Annotation is one annotation instance. Visible selects the
// RuntimeVisibleAnnotations attribute, otherwise the invisible one.
type Annotation struct {
	Type     jtype.Type
	Visible  bool
	Elements []Element
}

// Element is a name/value pair. Value is a Go constant (see Method.Const),
// a jtype.Type class literal, an EnumValue, a nested Annotation or a
// []any array of those.
type Element struct {
	Name  string
	Value any
}

// EnumValue names an enum constant.
type EnumValue struct {
	Type jtype.Type
	Name string
}

type annotationBlob struct {
	visible bool
	data    []byte
}

// encodeAnnotation writes the annotation structure, interning every name
// it references.
func (c *Class) encodeAnnotation(w *classfile.Writer, a Annotation) error {
	t := a.Type.Resolve(c.name)
	if !t.IsReference() || t.IsArray() || t.IsNull() {
		return diag.Errorf(diag.AsmBadDeclaration, "annotation type %s", t)
	}
	ti, err := c.pool.Utf8(t.Descriptor())
	if err != nil {
		return err
	}
	w.U2(ti)
	w.Len2(len(a.Elements), "annotation elements")
	for _, el := range a.Elements {
		if err := checkName(el.Name, false); err != nil {
			return err
		}
		ni, err := c.pool.Utf8(el.Name)
		if err != nil {
			return err
		}
		w.U2(ni)
		if err := c.encodeElement(w, el.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c *Class) encodeElement(w *classfile.Writer, v any) error {
	constant := func(tag byte, idx uint16, err error) error {
		if err != nil {
			return err
		}
		w.U1(tag)
		w.U2(idx)
		return nil
	}
	switch x := v.(type) {
	case bool:
		var n int32
		if x {
			n = 1
		}
		idx, err := c.pool.Integer(n)
		return constant('Z', idx, err)
	case int8:
		idx, err := c.pool.Integer(int32(x))
		return constant('B', idx, err)
	case int16:
		idx, err := c.pool.Integer(int32(x))
		return constant('S', idx, err)
	case uint16:
		idx, err := c.pool.Integer(int32(x))
		return constant('C', idx, err)
	case int32:
		idx, err := c.pool.Integer(x)
		return constant('I', idx, err)
	case int:
		n, err := constantFor(jtype.Int, x)
		if err != nil {
			return err
		}
		idx, err := c.pool.Integer(n.(int32))
		return constant('I', idx, err)
	case int64:
		idx, err := c.pool.Long(x)
		return constant('J', idx, err)
	case float32:
		idx, err := c.pool.Float(x)
		return constant('F', idx, err)
	case float64:
		idx, err := c.pool.Double(x)
		return constant('D', idx, err)
	case string:
		idx, err := c.pool.Utf8(x)
		return constant('s', idx, err)
	case jtype.Type:
		idx, err := c.pool.Utf8(x.Resolve(c.name).Descriptor())
		return constant('c', idx, err)
	case EnumValue:
		ti, err := c.pool.Utf8(x.Type.Resolve(c.name).Descriptor())
		if err != nil {
			return err
		}
		ni, err := c.pool.Utf8(x.Name)
		if err != nil {
			return err
		}
		w.U1('e')
		w.U2(ti)
		w.U2(ni)
		return nil
	case Annotation:
		w.U1('@')
		return c.encodeAnnotation(w, x)
	case []string:
		w.U1('[')
		w.Len2(len(x), "array element")
		for _, s := range x {
			if err := c.encodeElement(w, s); err != nil {
				return err
			}
		}
		return nil
	case []any:
		w.U1('[')
		w.Len2(len(x), "array element")
		for _, el := range x {
			if err := c.encodeElement(w, el); err != nil {
				return err
			}
		}
		return nil
	}
	return diag.Errorf(diag.TypUnsupportedConstant, "unsupported annotation value %T", v)
}

func (c *Class) annotation(a Annotation) (annotationBlob, error) {
	if err := c.usable(); err != nil {
		return annotationBlob{}, err
	}
	w := classfile.NewWriter(32)
	if err := c.encodeAnnotation(w, a); err != nil {
		return annotationBlob{}, c.fail(err)
	}
	if err := w.Err(); err != nil {
		return annotationBlob{}, c.fail(diag.Errorf(diag.AsmBadDeclaration, "annotation %s: %v", a.Type, err))
	}
	return annotationBlob{visible: a.Visible, data: w.Bytes()}, nil
}

// Annotate attaches annotations to the class.
func (c *Class) Annotate(as ...Annotation) error {
	for _, a := range as {
		b, err := c.annotation(a)
		if err != nil {
			return err
		}
		c.annotations = append(c.annotations, b)
	}
	return nil
}

// Annotate attaches annotations to the field.
func (f *Field) Annotate(as ...Annotation) error {
	for _, a := range as {
		b, err := f.c.annotation(a)
		if err != nil {
			return err
		}
		f.annotations = append(f.annotations, b)
	}
	return nil
}

// Annotate attaches annotations to the method.
func (m *Method) Annotate(as ...Annotation) error {
	for _, a := range as {
		b, err := m.c.annotation(a)
		if err != nil {
			return err
		}
		m.annotations = append(m.annotations, b)
	}
	return nil
}
