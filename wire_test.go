// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestStringRoundTrip(t *testing.T) {
	for _, s := range [][]byte{
		[]byte(""),
		[]byte("publickey"),
		bytesOf(1000, 0xAB),
	} {
		w := NewWriter()
		w.WriteString(s)
		r := NewReader(w.Bytes())
		got, ok := r.ReadString()
		if !ok {
			t.Fatalf("ReadString(%q): not ok", s)
		}
		if diff := cmp.Diff(got, s); diff != "" {
			t.Errorf("round trip (-got, +want):\n%s", diff)
		}
		if r.Remaining() != 0 {
			t.Errorf("Remaining = %d, want 0", r.Remaining())
		}
	}
}

func bytesOf(n int, b byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = b
	}
	return out
}

func TestReadStringShortRead(t *testing.T) {
	// Length prefix claims 9 bytes but only 4 are present.
	buf := []byte{0, 0, 0, 9, 'a', 'b', 'c', 'd'}
	r := NewReader(buf)
	if _, ok := r.ReadString(); ok {
		t.Fatal("ReadString: expected not-ok on short buffer")
	}
	if r.Remaining() != len(buf) {
		t.Error("ReadString: cursor advanced on a short read")
	}
}

func TestReadStringUTF8Invalid(t *testing.T) {
	w := NewWriter()
	w.WriteString([]byte{0xff, 0xfe, 0xfd})
	r := NewReader(w.Bytes())
	_, ok, err := r.ReadStringUTF8()
	if !ok {
		t.Fatal("ReadStringUTF8: expected ok=true (bytes were present)")
	}
	if err == nil {
		t.Fatal("ReadStringUTF8: expected error for invalid UTF-8")
	}
	var badResp *BadResponseError
	if !asBadResponse(err, &badResp) {
		t.Errorf("error type = %T, want *BadResponseError", err)
	}
}

func asBadResponse(err error, target **BadResponseError) bool {
	if e, ok := err.(*BadResponseError); ok {
		*target = e
		return true
	}
	return false
}

func TestU32RoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU32BE(0xdeadbeef)
	r := NewReader(w.Bytes())
	got, ok := r.ReadU32BE()
	if !ok || got != 0xdeadbeef {
		t.Errorf("ReadU32BE() = (%x, %v), want (deadbeef, true)", got, ok)
	}
}
