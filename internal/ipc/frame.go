// Package ipc implements the length-framed message exchange between the
// client and the broker: a 4-byte big-endian length prefix followed by a
// self-describing binary Message, with an explicit per-field decoder
// that rejects anything it does not recognize. This replaces the
// original daemon's pickle-based _SocketMessage, which the rewrite
// treats as unsafe (arbitrary code execution on the broker) per the
// split-privilege design this protocol exists to enforce.
package ipc

import (
	"encoding/binary"
	"io"

	"fstokend/internal/kind"
)

const lengthHeaderSize = 4

// ReadFrame reads one length-prefixed message from r, enforcing maxBytes
// as an upper bound on the declared length before allocating a buffer for
// it. A short read on either the header or the body surfaces as
// IoTruncated, matching the spec's framing invariant.
func ReadFrame(r io.Reader, maxBytes uint32) ([]byte, error) {
	var lenBuf [lengthHeaderSize]byte
	if err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > maxBytes {
		return nil, kind.New(kind.Io, "frame exceeds maximum size")
	}

	body := make([]byte, n)
	if err := readFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame writes payload to w as a length-prefixed frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [lengthHeaderSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return kind.Wrap(kind.Io, "writing frame length", err)
	}
	if _, err := w.Write(payload); err != nil {
		return kind.Wrap(kind.Io, "writing frame body", err)
	}
	return nil
}

// readFull reads exactly len(buf) bytes from r, converting io.EOF (on the
// very first byte) or io.ErrUnexpectedEOF (partway through) into
// IoTruncated so callers see the protocol-level error kind rather than a
// raw io error.
func readFull(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if n == 0 && err == io.EOF {
			return kind.Wrap(kind.IoTruncated, "connection closed", err)
		}
		return kind.Wrap(kind.IoTruncated, "short read", err)
	}
	return nil
}
