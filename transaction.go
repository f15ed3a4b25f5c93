// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// CompletionSlot is a one-shot single-producer/single-consumer handoff. It
// transitions exactly once from pending to either fulfilled-with-T or
// failed-with-error; later resolves are silently ignored, since a caller
// that abandoned its slot (e.g. after a timeout) must not observe a panic
// when the real answer eventually arrives.
type CompletionSlot[T any] struct {
	ch   chan slotResult[T]
	once sync.Once
}

type slotResult[T any] struct {
	val T
	err error
}

func newCompletionSlot[T any]() *CompletionSlot[T] {
	return &CompletionSlot[T]{ch: make(chan slotResult[T], 1)}
}

// resolve fulfills the slot. Only the first call has any effect.
func (s *CompletionSlot[T]) resolve(val T, err error) {
	s.once.Do(func() { s.ch <- slotResult[T]{val: val, err: err} })
}

// Wait blocks until the slot is resolved or ctx ends. The core never
// cancels a submitted transaction on its own: if ctx ends first, the
// transaction stays in flight on its connection until the agent's real
// response arrives, which then resolves the abandoned slot and is dropped.
func (s *CompletionSlot[T]) Wait(ctx context.Context) (T, error) {
	select {
	case r := <-s.ch:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Transaction pairs one outbound [Request] with the slot its [Response]
// (or terminal error) will be delivered to.
type Transaction struct {
	// ID is a correlation identifier for callers; this package never puts
	// it on the wire, in its log lines, or in metric labels.
	ID      uuid.UUID
	Request Request

	slot *CompletionSlot[Response]
}

// NewTransaction builds a transaction wrapping req, ready to [Client.Submit].
func NewTransaction(req Request) *Transaction {
	return &Transaction{ID: uuid.New(), Request: req, slot: newCompletionSlot[Response]()}
}

// Wait blocks for the transaction's outcome. See [CompletionSlot.Wait].
func (t *Transaction) Wait(ctx context.Context) (Response, error) {
	return t.slot.Wait(ctx)
}

// channelState is the single-in-flight transaction state machine from
// spec.md §4.5(a): at most one transaction is ever pending per connection.
// Its transitions are pure: each returns the channelAction the caller
// should perform, computed only after the state itself has settled, so
// that performing the action (which may re-enter Submit from a callback)
// never observes half-applied state.
type channelState struct {
	pending *Transaction
}

// channelAction is the side effect resulting from a channelState
// transition: at most one of send or resolve is non-nil.
type channelAction struct {
	send    *Transaction // caller must encode and write this request
	resolve *Transaction // caller must resolve this transaction's slot
	resp    Response
	err     error
}

// run resolves the slot of a resolve action. It does nothing for a send
// action (the caller encodes and writes that request) or when neither
// field is set (the Idle+response-received and Idle+transport-inactive
// cases, both protocol/lifecycle non-events).
func (a channelAction) run() {
	if a.resolve != nil {
		a.resolve.slot.resolve(a.resp, a.err)
	}
}

// submit admits t if the channel is Idle, else rejects it with
// [OperationInProgressError] while leaving the outstanding transaction
// untouched.
func (s *channelState) submit(t *Transaction) channelAction {
	if s.pending != nil {
		return channelAction{resolve: t, err: &OperationInProgressError{}}
	}
	s.pending = t
	return channelAction{send: t}
}

// receive matches resp to the pending transaction, if any, and returns to
// Idle. A response arriving while Idle is a peer protocol violation,
// absorbed silently (spec.md §7).
func (s *channelState) receive(resp Response) channelAction {
	return s.complete(resp, nil)
}

// receiveErr matches a decode error to the pending transaction the same
// way receive matches a successful decode.
func (s *channelState) receiveErr(err error) channelAction {
	return s.complete(nil, err)
}

// transportInactive fails the pending transaction, if any, with
// [AgentNotAvailableError]; a no-op if the channel is already Idle.
func (s *channelState) transportInactive() channelAction {
	return s.complete(nil, &AgentNotAvailableError{Reason: "channel inactive"})
}

func (s *channelState) complete(resp Response, err error) channelAction {
	if s.pending == nil {
		return channelAction{}
	}
	t := s.pending
	s.pending = nil
	return channelAction{resolve: t, resp: resp, err: err}
}
