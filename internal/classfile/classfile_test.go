package classfile

import (
	"bytes"
	"testing"
)

func TestNegateBranches(t *testing.T) {
	pairs := [][2]Opcode{
		{OpIfeq, OpIfne},
		{OpIflt, OpIfge},
		{OpIfgt, OpIfle},
		{OpIfIcmpeq, OpIfIcmpne},
		{OpIfIcmplt, OpIfIcmpge},
		{OpIfIcmpgt, OpIfIcmple},
		{OpIfAcmpeq, OpIfAcmpne},
		{OpIfnull, OpIfnonnull},
	}
	for _, p := range pairs {
		if got := p[0].Negate(); got != p[1] {
			t.Errorf("Negate(%#x) = %#x, want %#x", p[0], got, p[1])
		}
		if got := p[1].Negate(); got != p[0] {
			t.Errorf("Negate(%#x) = %#x, want %#x", p[1], got, p[0])
		}
	}
}

func TestModifiedUTF8(t *testing.T) {
	cases := []struct {
		in   string
		want []byte
	}{
		{"abc", []byte("abc")},
		{"\x00", []byte{0xC0, 0x80}},
		{"é", []byte{0xC3, 0xA9}},
		{"€", []byte{0xE2, 0x82, 0xAC}},
		{"😀", []byte{0xED, 0xA0, 0xBD, 0xED, 0xB8, 0x80}},
	}
	for _, tc := range cases {
		if got := ModifiedUTF8(tc.in); !bytes.Equal(got, tc.want) {
			t.Errorf("ModifiedUTF8(%q) = % x, want % x", tc.in, got, tc.want)
		}
	}
}

func TestWriterBigEndian(t *testing.T) {
	w := NewWriter(16)
	w.U1(0x01)
	w.U2(0x0203)
	w.U4(Magic)
	w.U8(0x0102030405060708)
	want := []byte{0x01, 0x02, 0x03, 0xCA, 0xFE, 0xBA, 0xBE, 1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(w.Bytes(), want) {
		t.Fatalf("got % x", w.Bytes())
	}
	w.Len2(70000, "fields")
	if w.Err() == nil {
		t.Fatalf("expected overflow error")
	}
}

func TestModifiers(t *testing.T) {
	got := (AccPublic | AccStatic | AccFinal).Modifiers(false)
	if got != "public static final" {
		t.Fatalf("Modifiers = %q", got)
	}
}
