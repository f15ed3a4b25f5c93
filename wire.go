// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"encoding/binary"
	"unicode/utf8"
)

// Reader reads the RFC 4251 §5 primitives (uint32, byte, and
// length-prefixed opaque strings) out of a byte slice with an internal
// cursor. A short read does not advance the cursor and reports ok=false
// rather than an error; each caller decides what a short read means (the
// message codec, for example, turns a missing message number into a
// [BadResponseError]).
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for reading. buf is not copied; the caller must not
// mutate it while the Reader is in use.
func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining reports how many unread bytes remain.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Bytes returns the unread tail of the buffer without advancing the cursor.
func (r *Reader) Bytes() []byte { return r.buf[r.pos:] }

// ReadU8 reads one byte.
func (r *Reader) ReadU8() (byte, bool) {
	if r.Remaining() < 1 {
		return 0, false
	}
	b := r.buf[r.pos]
	r.pos++
	return b, true
}

// ReadU32BE reads a big-endian uint32.
func (r *Reader) ReadU32BE() (uint32, bool) {
	if r.Remaining() < 4 {
		return 0, false
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, true
}

// ReadString reads a length-prefixed opaque byte string: a big-endian
// uint32 length n, then n bytes. If fewer than 4+n bytes remain, it
// reports ok=false and does not advance the cursor.
func (r *Reader) ReadString() ([]byte, bool) {
	if r.Remaining() < 4 {
		return nil, false
	}
	n := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	if uint64(r.Remaining()) < 4+uint64(n) {
		return nil, false
	}
	start := r.pos + 4
	end := start + int(n)
	r.pos = end
	return r.buf[start:end], true
}

// ReadStringUTF8 reads a length-prefixed string and validates it as UTF-8.
// A short read reports ok=false; invalid UTF-8 reports a non-nil error.
func (r *Reader) ReadStringUTF8() (s string, ok bool, err error) {
	mark := r.pos
	b, ok := r.ReadString()
	if !ok {
		return "", false, nil
	}
	if !utf8.Valid(b) {
		r.pos = mark
		return "", true, &BadResponseError{Reason: "comment is not valid UTF-8"}
	}
	return string(b), true, nil
}

// Writer accumulates RFC 4251 §5 primitives into a growable buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// WriteU8 appends one byte.
func (w *Writer) WriteU8(b byte) { w.buf = append(w.buf, b) }

// WriteU32BE appends a big-endian uint32.
func (w *Writer) WriteU32BE(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// WriteString appends a length-prefixed opaque byte string.
func (w *Writer) WriteString(s []byte) {
	w.WriteU32BE(uint32(len(s)))
	w.buf = append(w.buf, s...)
}
