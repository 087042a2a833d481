package classfile

import (
	"fmt"
	"unicode/utf16"

	"fortio.org/safecast"
)

// Writer appends big-endian class-file items to a growable buffer.
// The first length overflow sticks; later writes are dropped and Err
// reports it.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

func (w *Writer) U1(v uint8) {
	w.buf = append(w.buf, v)
}

func (w *Writer) U2(v uint16) {
	w.buf = append(w.buf, byte(v>>8), byte(v))
}

func (w *Writer) U4(v uint32) {
	w.buf = append(w.buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func (w *Writer) U8(v uint64) {
	w.U4(uint32(v >> 32))
	w.U4(uint32(v))
}

// Raw appends bytes verbatim.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Len2 writes n as a u2 count, recording an overflow error.
func (w *Writer) Len2(n int, what string) {
	v, err := safecast.Conv[uint16](n)
	if err != nil {
		w.fail(fmt.Errorf("%s count %d exceeds u2: %w", what, n, err))
		return
	}
	w.U2(v)
}

// Len4 writes n as a u4 length.
func (w *Writer) Len4(n int, what string) {
	v, err := safecast.Conv[uint32](n)
	if err != nil {
		w.fail(fmt.Errorf("%s length %d exceeds u4: %w", what, n, err))
		return
	}
	w.U4(v)
}

// Attribute writes name index, u4 length and body.
func (w *Writer) Attribute(nameIndex uint16, body []byte) {
	w.U2(nameIndex)
	w.Len4(len(body), "attribute")
	w.Raw(body)
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// Err returns the first overflow recorded.
func (w *Writer) Err() error { return w.err }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte { return w.buf }

// ModifiedUTF8 encodes s the way Utf8 pool entries require: NUL as two
// bytes and supplementary characters as encoded surrogate pairs.
func ModifiedUTF8(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r != 0 && r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, byte(0xC0|(r>>6)), byte(0x80|(r&0x3F)))
		case r < 0x10000:
			out = appendThree(out, r)
		default:
			hi, lo := utf16.EncodeRune(r)
			out = appendThree(out, hi)
			out = appendThree(out, lo)
		}
	}
	return out
}

func appendThree(out []byte, r rune) []byte {
	return append(out, byte(0xE0|(r>>12)), byte(0x80|((r>>6)&0x3F)), byte(0x80|(r&0x3F)))
}
