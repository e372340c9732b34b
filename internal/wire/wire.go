// Package wire provides the fixed, self-describing binary primitives used
// to encode token payloads and framed IPC messages. Nothing in this
// package defers to a generic object serializer: every value that crosses
// a trust boundary (broker <-> client, or into a signed token payload) is
// encoded field-by-field by an explicit writer and decoded by an explicit
// reader that rejects anything it doesn't recognize.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MaxFieldBytes bounds any single length-prefixed field, independent of
// the overall frame cap enforced by the IPC layer. It exists so a
// corrupted or hostile length prefix can't force an oversized allocation
// before the outer frame-size check even runs.
const MaxFieldBytes = 64 << 20 // 64 MiB

// Writer accumulates an encoded payload.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// PutByte appends a single tag or flag byte.
func (w *Writer) PutByte(b byte) { w.buf.WriteByte(b) }

// PutString appends a uint32 big-endian length prefix followed by s.
func (w *Writer) PutString(s string) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s)))
	w.buf.Write(lenBuf[:])
	w.buf.WriteString(s)
}

// PutBytes appends a uint32 big-endian length prefix followed by b.
func (w *Writer) PutBytes(b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	w.buf.Write(lenBuf[:])
	w.buf.Write(b)
}

// PutBool appends a single 0/1 byte.
func (w *Writer) PutBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

// PutStringSlice appends a uint32 element count followed by each element
// as a length-prefixed string.
func (w *Writer) PutStringSlice(ss []string) {
	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(ss)))
	w.buf.Write(countBuf[:])
	for _, s := range ss {
		w.PutString(s)
	}
}

// Reader decodes a payload written by Writer, rejecting malformed or
// truncated input rather than reading past the bounds of the buffer.
type Reader struct {
	r *bytes.Reader
}

func NewReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

func (r *Reader) Remaining() int { return r.r.Len() }

func (r *Reader) GetByte() (byte, error) {
	return r.r.ReadByte()
}

func (r *Reader) GetBool() (bool, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *Reader) GetString() (string, error) {
	b, err := r.GetBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) GetBytes() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(r.r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: reading length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFieldBytes {
		return nil, fmt.Errorf("wire: field length %d exceeds maximum %d", n, MaxFieldBytes)
	}
	if int(n) > r.r.Len() {
		return nil, fmt.Errorf("wire: field length %d exceeds remaining buffer %d", n, r.r.Len())
	}
	out := make([]byte, n)
	if _, err := readFull(r.r, out); err != nil {
		return nil, fmt.Errorf("wire: reading field body: %w", err)
	}
	return out, nil
}

func (r *Reader) GetStringSlice() ([]string, error) {
	var countBuf [4]byte
	if _, err := readFull(r.r, countBuf[:]); err != nil {
		return nil, fmt.Errorf("wire: reading slice count: %w", err)
	}
	n := binary.BigEndian.Uint32(countBuf[:])
	if n > MaxFieldBytes {
		return nil, fmt.Errorf("wire: slice count %d exceeds maximum", n)
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.GetString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, fmt.Errorf("wire: short read")
		}
	}
	return n, nil
}
