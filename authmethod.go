// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/crypto/ssh"
)

// clientSigner adapts one agent-held identity to [ssh.Signer] by turning
// each Sign call into a SIGN_REQUEST transaction. It carries no key
// material of its own.
type clientSigner struct {
	client *Client
	ctx    context.Context
	pub    ssh.PublicKey
	blob   []byte
}

func (s *clientSigner) PublicKey() ssh.PublicKey { return s.pub }

func (s *clientSigner) Sign(_ io.Reader, data []byte) (*ssh.Signature, error) {
	blob, err := s.client.Sign(s.ctx, s.blob, data, 0)
	if err != nil {
		return nil, err
	}
	var sig ssh.Signature
	if err := ssh.Unmarshal(blob, &sig); err != nil {
		return nil, fmt.Errorf("sshagent: decode signature: %w", err)
	}
	return &sig, nil
}

// Signers lists c's identities and wraps each as an [ssh.Signer]. Identities
// whose key blob this version of golang.org/x/crypto/ssh cannot parse are
// skipped rather than failing the whole list.
func Signers(ctx context.Context, c *Client) ([]ssh.Signer, error) {
	ids, err := c.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ssh.Signer, 0, len(ids))
	for _, id := range ids {
		pk, err := ssh.ParsePublicKey(id.KeyBlob)
		if err != nil {
			continue
		}
		out = append(out, &clientSigner{client: c, ctx: ctx, pub: pk, blob: id.KeyBlob})
	}
	return out, nil
}

// AuthMethod returns the entire interaction boundary this package
// specifies between an agent client and an outer SSH user-authentication
// delegate: an [ssh.AuthMethod] that lists identities and signs challenges
// through c on demand. Chaining that against a real SSH server — offering
// each identity in turn, handling server rejection — is
// golang.org/x/crypto/ssh's job, not this package's.
func AuthMethod(ctx context.Context, c *Client) ssh.AuthMethod {
	return ssh.PublicKeysCallback(func() ([]ssh.Signer, error) {
		return Signers(ctx, c)
	})
}
