// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"bytes"
	"encoding/pem"
)

// Identity is an ordered list of opaque SSH-string fields extracted from an
// OpenSSH PEM private key container. By convention (not enforced by this
// type) Fields[0] is the ASCII key-type label and Fields[len(Fields)-1] is
// the comment; everything in between is key-type-dependent private key
// material this package never interprets.
type Identity struct {
	Fields [][]byte
}

// KeyType returns the ASCII key-type label, the first field of the
// identity. It panics if the identity has no fields, which cannot happen
// for an Identity produced by [ParseIdentity].
func (id Identity) KeyType() string { return string(id.Fields[0]) }

// Comment returns the trailing comment field.
func (id Identity) Comment() string { return string(id.Fields[len(id.Fields)-1]) }

const openSSHMagic = "openssh-key-v1\x00"

// ParseIdentity parses an OpenSSH "BEGIN/END OPENSSH PRIVATE KEY" PEM block
// and returns the ordered opaque fields an agent's ADD_IDENTITY message
// needs. It reports ok=false, rather than an error, for anything that
// keeps pemText from being a supported unencrypted identity: the caller
// decides how (or whether) to report that to a human. Only the
// cipher=none/kdf=none variant is supported; passphrase-protected keys are
// out of scope.
func ParseIdentity(pemText string) (id Identity, ok bool) {
	blk, _ := pem.Decode([]byte(pemText))
	if blk == nil || blk.Type != "OPENSSH PRIVATE KEY" {
		return Identity{}, false
	}
	return parseOpenSSHKeyV1(blk.Bytes)
}

func parseOpenSSHKeyV1(data []byte) (Identity, bool) {
	r := NewReader(data)

	magic := make([]byte, len(openSSHMagic))
	for i := range magic {
		b, ok := r.ReadU8()
		if !ok {
			return Identity{}, false
		}
		magic[i] = b
	}
	if string(magic) != openSSHMagic {
		return Identity{}, false
	}

	cipher, ok := r.ReadString()
	if !ok || string(cipher) != "none" {
		return Identity{}, false
	}
	kdf, ok := r.ReadString()
	if !ok || string(kdf) != "none" {
		return Identity{}, false
	}
	kdfOptions, ok := r.ReadString()
	if !ok || len(kdfOptions) != 0 {
		return Identity{}, false
	}
	count, ok := r.ReadU32BE()
	if !ok || count != 1 {
		return Identity{}, false
	}

	// Public key section: not needed downstream, but must be consumed to
	// reach the private key section.
	if _, ok := r.ReadString(); !ok {
		return Identity{}, false
	}

	privSection, ok := r.ReadString()
	if !ok {
		return Identity{}, false
	}
	return parsePrivateSection(privSection)
}

// parsePrivateSection reads the 8-byte check preamble and then repeatedly
// reads SSH-strings until a read would overrun the section, per spec.md
// §4.2 step 5.
func parsePrivateSection(section []byte) (Identity, bool) {
	if len(section) < 8 {
		return Identity{}, false
	}
	pr := NewReader(section[8:])

	var fields [][]byte
	for pr.Remaining() > 0 {
		mark := pr.pos
		s, ok := pr.ReadString()
		if !ok {
			// Whatever is left (padding bytes 0x01..N) is not a full
			// string; stop collecting here.
			pr.pos = mark
			break
		}
		fields = append(fields, bytes.Clone(s))
	}
	if len(fields) == 0 {
		return Identity{}, false
	}
	return Identity{Fields: fields}, true
}
