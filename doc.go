// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

// Package sshagent implements a client for the SSH agent protocol
// (draft-miller-ssh-agent-17) over the wire conventions of RFC 4251 §5.
//
// A [Client] speaks to a locally running SSH agent over a stream transport,
// typically a UNIX domain socket named by the SSH_AUTH_SOCK environment
// variable. It exposes three transactions: listing identities, adding an
// identity parsed from an OpenSSH PEM private key, and requesting a
// signature over caller-supplied bytes. At most one transaction may be in
// flight on a given connection at a time; [Client] enforces that constraint
// by failing any transaction submitted while another is outstanding with
// [OperationInProgressError] rather than queueing it.
//
// [Facade] sits above [Client] and gives a process a single shared
// connection: the first caller to ask for one triggers a dial, and
// concurrent callers (including ones that arrive mid-dial) all observe the
// same [Client] or the same dial failure.
//
// This package does not implement the agent side of the protocol, does not
// decrypt passphrase-protected private keys, and does not interpret
// key-type-specific private key fields; those are carried opaquely so the
// agent, not this client, remains the thing that understands key material.
package sshagent
