package borsh

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriterLayout(t *testing.T) {
	w := NewWriter(16)
	w.U64(950)
	w.String("Qm")
	w.Bool(true)

	want := []byte{
		0xB6, 0x03, 0, 0, 0, 0, 0, 0, // 950 LE
		2, 0, 0, 0, 'Q', 'm', // len-prefixed string
		1,
	}

	if got := w.Finish(); !bytes.Equal(got, want) {
		t.Errorf("encoding = %x, want %x", got, want)
	}
}

func TestReaderMixed(t *testing.T) {
	owner := [32]byte{0xAB}

	w := NewWriter(64)
	w.Fixed32(owner)
	w.I8(-1)
	w.U32(7)
	w.Vec([]byte{1, 2, 3})

	r := NewReader(w.Finish())

	if got := r.Fixed32(); got != owner {
		t.Errorf("Fixed32 = %x, want %x", got, owner)
	}

	if got := r.I8(); got != -1 {
		t.Errorf("I8 = %d, want -1", got)
	}

	if got := r.U32(); got != 7 {
		t.Errorf("U32 = %d, want 7", got)
	}

	if got := r.Vec(); !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("Vec = %v, want [1 2 3]", got)
	}

	if err := r.Done(); err != nil {
		t.Errorf("Done: %v", err)
	}
}

func TestReaderShortBuffer(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})

	_ = r.U64()
	_ = r.U8() // sticky error, no panic

	if !errors.Is(r.Err(), ErrShortBuffer) {
		t.Errorf("expected ErrShortBuffer, got %v", r.Err())
	}
}

func TestReaderTrailingBytes(t *testing.T) {
	r := NewReader([]byte{1, 0})
	_ = r.U8()

	if err := r.Done(); err == nil {
		t.Error("expected trailing bytes error")
	}
}

func TestReaderInvalidBool(t *testing.T) {
	r := NewReader([]byte{2})
	_ = r.Bool()

	if r.Err() == nil {
		t.Error("expected error for bool byte 2")
	}
}

func TestReaderOversizedVec(t *testing.T) {
	w := NewWriter(8)
	w.U32(maxVecLen + 1)

	r := NewReader(w.Finish())
	if r.Vec() != nil || r.Err() == nil {
		t.Error("expected oversized vector to fail")
	}
}
