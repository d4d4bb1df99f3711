// Package borsh encodes records and call arguments in Borsh layout:
// little-endian fixed-width integers, u32 length prefixes for byte
// vectors and strings, one byte for booleans.
package borsh

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when a read runs past the end of the data.
var ErrShortBuffer = errors.New("borsh: short buffer")

// maxVecLen bounds a decoded vector length so a corrupt prefix cannot force a huge allocation.
const maxVecLen = 1 << 20

// Writer appends Borsh-encoded values to a buffer.
type Writer struct {
	buf []byte
}

// NewWriter creates a writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// U8 appends a byte.
func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

// I8 appends a signed byte.
func (w *Writer) I8(v int8) {
	w.buf = append(w.buf, byte(v))
}

// Bool appends 1 or 0.
func (w *Writer) Bool(v bool) {
	if v {
		w.U8(1)
		return
	}

	w.U8(0)
}

// U32 appends a little-endian uint32.
func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// U64 appends a little-endian uint64.
func (w *Writer) U64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Fixed32 appends 32 raw bytes ([u8; 32]).
func (w *Writer) Fixed32(v [32]byte) {
	w.buf = append(w.buf, v[:]...)
}

// Vec appends a u32 length prefix then the bytes (Vec<u8>).
func (w *Writer) Vec(v []byte) {
	w.U32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// String appends a string as Vec<u8>.
func (w *Writer) String(v string) {
	w.U32(uint32(len(v)))
	w.buf = append(w.buf, v...)
}

// Finish returns the encoded bytes.
func (w *Writer) Finish() []byte {
	return w.buf
}

// Reader decodes Borsh values. The first failure sticks; check Err once at the end.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader creates a reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// take returns the next n bytes, or nil after recording ErrShortBuffer.
func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}

	if n < 0 || len(r.data)-r.off < n {
		r.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, len(r.data)-r.off)
		return nil
	}

	b := r.data[r.off : r.off+n]
	r.off += n

	return b
}

// U8 reads a byte.
func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}

	return b[0]
}

// I8 reads a signed byte.
func (r *Reader) I8() int8 {
	return int8(r.U8())
}

// Bool reads a byte as a boolean. Any value other than 0 or 1 is an error.
func (r *Reader) Bool() bool {
	v := r.U8()
	if v > 1 && r.err == nil {
		r.err = fmt.Errorf("borsh: invalid bool byte %d", v)
	}

	return v == 1
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint32(b)
}

// U64 reads a little-endian uint64.
func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}

	return binary.LittleEndian.Uint64(b)
}

// Fixed32 reads 32 raw bytes.
func (r *Reader) Fixed32() [32]byte {
	var v [32]byte

	if b := r.take(32); b != nil {
		copy(v[:], b)
	}

	return v
}

// Vec reads a length-prefixed byte vector. The result is a copy.
func (r *Reader) Vec() []byte {
	n := r.U32()
	if r.err != nil {
		return nil
	}

	if n > maxVecLen {
		r.err = fmt.Errorf("borsh: vector length %d exceeds %d", n, maxVecLen)
		return nil
	}

	b := r.take(int(n))
	if b == nil {
		return nil
	}

	out := make([]byte, len(b))
	copy(out, b)

	return out
}

// String reads a length-prefixed string.
func (r *Reader) String() string {
	return string(r.Vec())
}

// Err returns the first decode error.
func (r *Reader) Err() error {
	return r.err
}

// Done returns the first decode error, or an error if unread bytes remain.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}

	if r.off != len(r.data) {
		return fmt.Errorf("borsh: %d trailing bytes", len(r.data)-r.off)
	}

	return nil
}
