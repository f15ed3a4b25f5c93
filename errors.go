// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import "fmt"

// AgentNotAvailableError reports that the transport to the agent is not
// ready, or has stopped being ready. It is surfaced to every waiter on a
// connection and every transaction in flight at the time the transport was
// lost.
type AgentNotAvailableError struct {
	Reason string
}

func (e *AgentNotAvailableError) Error() string {
	return fmt.Sprintf("agent not available: %s", e.Reason)
}

// OperationInProgressError reports that a transaction was submitted while
// another was already outstanding on the same connection. Only the
// rejected transaction observes this error; the in-flight one is
// unaffected.
type OperationInProgressError struct{}

func (e *OperationInProgressError) Error() string {
	return "agent: another operation is already in progress on this connection"
}

// TrailingBytesError reports that a response frame carried more bytes than
// its message shape consumes. This spec treats it as a hard decode error.
type TrailingBytesError struct {
	MessageNumber byte
	Extra         int
}

func (e *TrailingBytesError) Error() string {
	return fmt.Sprintf("agent: %d trailing byte(s) after message %d", e.Extra, e.MessageNumber)
}

// BadResponseError reports that a response frame was structurally
// malformed: a short read where a value was required, or undecodable
// UTF-8 in a comment field.
type BadResponseError struct {
	Reason string
}

func (e *BadResponseError) Error() string {
	return fmt.Sprintf("agent: malformed response: %s", e.Reason)
}
