package cpool

import (
	"math"
	"testing"

	"classbuilder/internal/classfile"
	"classbuilder/internal/diag"
)

func TestInterningIsIdempotent(t *testing.T) {
	p := New()
	a, _ := p.Methodref("java/io/PrintStream", "println", "(I)V")
	n := p.Len()
	b, _ := p.Methodref("java/io/PrintStream", "println", "(I)V")
	if a != b {
		t.Fatalf("methodref indices %d != %d", a, b)
	}
	if p.Len() != n {
		t.Fatalf("second intern added entries: %d -> %d", n, p.Len())
	}
	// Utf8 "java/io/PrintStream", Class, "println", "(I)V", NameAndType, Methodref
	if n != 6 {
		t.Fatalf("entries = %d, want 6", n)
	}
	if p.Tag(a) != classfile.TagMethodref {
		t.Fatalf("tag = %s", p.Tag(a))
	}
}

func TestSharedComponents(t *testing.T) {
	p := New()
	s1, _ := p.String("java/lang/Object")
	c1, _ := p.Class("java/lang/Object")
	if s1 == c1 {
		t.Fatalf("String and Class must be distinct entries")
	}
	// both reference the single Utf8
	if p.Len() != 3 {
		t.Fatalf("entries = %d, want 3", p.Len())
	}
}

func TestWideEntriesTakeTwoSlots(t *testing.T) {
	p := New()
	l, _ := p.Long(42)
	i, _ := p.Integer(42)
	d, _ := p.Double(1.5)
	f, _ := p.Float(1.5)
	if l != 1 || i != 3 || d != 4 || f != 6 {
		t.Fatalf("indices long=%d int=%d double=%d float=%d", l, i, d, f)
	}
	if p.Count() != 7 {
		t.Fatalf("count = %d, want 7", p.Count())
	}
}

func TestFloatBitPatterns(t *testing.T) {
	p := New()
	pos, _ := p.Float(0)
	neg, _ := p.Float(float32(math.Copysign(0, -1)))
	if pos == neg {
		t.Fatalf("0.0 and -0.0 share index %d", pos)
	}
}

func TestPoolOverflow(t *testing.T) {
	p := New()
	var err error
	for i := int32(0); err == nil; i++ {
		_, err = p.Integer(i)
	}
	if !diag.Is(err, diag.SynPoolOverflow) {
		t.Fatalf("err = %v", err)
	}
	if p.Count() != classfile.MaxPoolEntries {
		t.Fatalf("count = %d", p.Count())
	}
}

func TestWriteTo(t *testing.T) {
	p := New()
	if _, err := p.String("hi"); err != nil {
		t.Fatal(err)
	}
	w := classfile.NewWriter(16)
	p.WriteTo(w)
	want := []byte{0, 3, 1, 0, 2, 'h', 'i', 8, 0, 1}
	got := w.Bytes()
	if string(got) != string(want) {
		t.Fatalf("got % x, want % x", got, want)
	}
}
