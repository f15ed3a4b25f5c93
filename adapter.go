// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// Adapter exposes a [Client] as a [golang.org/x/crypto/ssh/agent.Agent], so
// it composes with that ecosystem's tooling — agent.ForwardToRemote,
// ssh.PublicKeysCallback, agent.NewClient-style consumers — without the
// caller ever touching this package's wire codec directly.
//
// Adapter forwards List, Sign, and Signers to the client's transactions.
// Remove, RemoveAll, Lock, and Unlock have no corresponding request in
// spec.md's message set and return an error; Add also returns an error
// (see [Adapter.Add]).
type Adapter struct {
	Client *Client

	// Ctx is used for every call made through the agent.Agent interface,
	// which has no context parameter of its own. A nil Ctx uses
	// context.Background().
	Ctx context.Context
}

// NewAdapter wraps c.
func NewAdapter(c *Client) *Adapter { return &Adapter{Client: c} }

func (a *Adapter) ctx() context.Context {
	if a.Ctx != nil {
		return a.Ctx
	}
	return context.Background()
}

// List implements part of the [agent.Agent] interface.
func (a *Adapter) List() ([]*agent.Key, error) {
	ids, err := a.Client.ListIdentities(a.ctx())
	if err != nil {
		return nil, err
	}
	out := make([]*agent.Key, 0, len(ids))
	for _, id := range ids {
		pk, err := ssh.ParsePublicKey(id.KeyBlob)
		if err != nil {
			// A key blob this version of x/crypto/ssh can't parse is
			// skipped rather than failing the whole list.
			continue
		}
		out = append(out, &agent.Key{Format: pk.Type(), Blob: id.KeyBlob, Comment: id.Comment})
	}
	return out, nil
}

// Sign implements part of the [agent.Agent] interface.
func (a *Adapter) Sign(key ssh.PublicKey, data []byte) (*ssh.Signature, error) {
	blob, err := a.Client.Sign(a.ctx(), key.Marshal(), data, 0)
	if err != nil {
		return nil, err
	}
	var sig ssh.Signature
	if err := ssh.Unmarshal(blob, &sig); err != nil {
		return nil, fmt.Errorf("sshagent: decode signature: %w", err)
	}
	return &sig, nil
}

// Add implements part of the [agent.Agent] interface. Adding keys through
// this interface is not supported: agent.AddedKey carries a typed
// crypto.PrivateKey, and reconstructing this package's opaque
// identity-field encoding from it would mean interpreting key-type-specific
// fields, which spec.md's non-goals explicitly exclude. Use
// [Client.AddIdentity] with an [Identity] from [ParseIdentity] instead.
func (a *Adapter) Add(key agent.AddedKey) error {
	return errors.New("sshagent: adding keys via agent.AddedKey is not supported; use Client.AddIdentity")
}

// Remove implements part of the [agent.Agent] interface.
func (a *Adapter) Remove(key ssh.PublicKey) error {
	return errors.New("sshagent: Remove is not supported by this adapter")
}

// RemoveAll implements part of the [agent.Agent] interface.
func (a *Adapter) RemoveAll() error {
	return errors.New("sshagent: RemoveAll is not supported by this adapter")
}

// Lock implements part of the [agent.Agent] interface.
func (a *Adapter) Lock(passphrase []byte) error {
	return errors.New("sshagent: Lock is not supported by this adapter")
}

// Unlock implements part of the [agent.Agent] interface.
func (a *Adapter) Unlock(passphrase []byte) error {
	return errors.New("sshagent: Unlock is not supported by this adapter")
}

// Signers implements part of the [agent.Agent] interface by wrapping each
// listed identity in a [ssh.Signer] that calls back into [Client.Sign].
func (a *Adapter) Signers() ([]ssh.Signer, error) {
	return Signers(a.ctx(), a.Client)
}

var _ agent.Agent = (*Adapter)(nil)
