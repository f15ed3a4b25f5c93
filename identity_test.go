// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/pem"
	"testing"

	"golang.org/x/crypto/ssh"
)

// generateOpenSSHPEM builds an unencrypted OpenSSH-format private key PEM
// block for priv with the given comment, the same format ParseIdentity
// consumes. Using x/crypto/ssh to build the fixture means the test suite
// carries no binary testdata that needs to stay in sync with the parser it
// exercises.
func generateOpenSSHPEM(t *testing.T, priv any, comment string) string {
	t.Helper()
	blk, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		t.Fatalf("MarshalPrivateKey: %v", err)
	}
	return string(pem.EncodeToMemory(blk))
}

func TestParseIdentityECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	const comment = "test@keyecdsa256"
	pemText := generateOpenSSHPEM(t, key, comment)

	id, ok := ParseIdentity(pemText)
	if !ok {
		t.Fatal("ParseIdentity: not ok")
	}
	if len(id.Fields) < 2 {
		t.Fatalf("Fields = %d, want at least 2", len(id.Fields))
	}
	if got := id.KeyType(); got != "ecdsa-sha2-nistp256" {
		t.Errorf("KeyType = %q, want ecdsa-sha2-nistp256", got)
	}
	if got := id.Comment(); got != comment {
		t.Errorf("Comment = %q, want %q", got, comment)
	}
}

func TestParseIdentityRejectsGarbage(t *testing.T) {
	if _, ok := ParseIdentity("not a pem block at all"); ok {
		t.Error("ParseIdentity: expected not-ok for non-PEM input")
	}
	notOpenSSH := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: []byte("garbage")})
	if _, ok := ParseIdentity(string(notOpenSSH)); ok {
		t.Error("ParseIdentity: expected not-ok for non-OpenSSH PEM type")
	}
}

func TestParseIdentityFieldsAreOpaque(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	pemText := generateOpenSSHPEM(t, key, "opaque-test")
	id, ok := ParseIdentity(pemText)
	if !ok {
		t.Fatal("ParseIdentity: not ok")
	}
	// Only the first and last fields are meaningful to this package; the
	// rest are carried through byte-for-byte without interpretation, so
	// re-encoding them must reproduce exactly what was parsed.
	req := AddIdentity{Identity: id}
	w := NewWriter()
	req.encode(w)

	r := NewReader(w.Bytes())
	r.ReadU8() // message number
	for _, want := range id.Fields {
		got, ok := r.ReadString()
		if !ok {
			t.Fatalf("re-reading encoded ADD_IDENTITY: short read")
		}
		if string(got) != string(want) {
			t.Errorf("field mismatch: got %q want %q", got, want)
		}
	}
}
