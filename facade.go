// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"context"
	"sync"

	"github.com/creachadair/taskgroup"
)

// Done returns a channel that is closed once the Client's connection has
// stopped being usable (transport lost, or [Client.Close] called). It lets
// a [Facade] notice a dead connection without polling.
func (c *Client) Done() <-chan struct{} { return c.doneCh }

type facadePhase int

const (
	phaseNotConnected facadePhase = iota
	phaseConnecting
	phaseConnected
	phaseFailed
)

// Facade gives a process one shared [Client] for every caller. The first
// caller to ask for a connection triggers a dial; concurrent callers that
// arrive before it completes are all resolved together, from the same
// success or the same failure (spec.md §4.5b). Reconnection is not
// automatic: once a dial fails, or a connected Client's transport is lost,
// the Facade is permanently Failed and a new Facade must be constructed.
type Facade struct {
	dial    func(ctx context.Context) (*Client, error)
	metrics *Metrics
	tg      taskgroup.Group

	mu      sync.Mutex
	phase   facadePhase
	waiters []*CompletionSlot[*Client]
	conn    *Client
	err     error

	cacheMu  sync.Mutex
	cached   []AgentIdentity
	hasCache bool
}

// NewFacade builds a Facade that uses dial to establish its one shared
// connection, on demand.
func NewFacade(dial func(ctx context.Context) (*Client, error)) *Facade {
	return NewFacadeMetrics(dial, nil)
}

// NewFacadeMetrics is [NewFacade] with explicit metrics (nil disables them).
func NewFacadeMetrics(dial func(ctx context.Context) (*Client, error), metrics *Metrics) *Facade {
	return &Facade{dial: dial, metrics: metrics}
}

// Connection returns the Facade's shared [Client], dialing it if this is
// the first request, or waiting for an in-progress dial to finish, or
// returning immediately if the Facade is already Connected or Failed.
func (f *Facade) Connection(ctx context.Context) (*Client, error) {
	f.mu.Lock()
	switch f.phase {
	case phaseConnected:
		conn := f.conn
		f.mu.Unlock()
		return conn, nil

	case phaseFailed:
		err := f.err
		f.mu.Unlock()
		return nil, err

	case phaseConnecting:
		slot := newCompletionSlot[*Client]()
		f.waiters = append(f.waiters, slot)
		f.mu.Unlock()
		return slot.Wait(ctx)

	default: // phaseNotConnected
		slot := newCompletionSlot[*Client]()
		f.waiters = []*CompletionSlot[*Client]{slot}
		f.phase = phaseConnecting
		f.mu.Unlock()
		f.tg.Go(func() error { f.runDial(ctx); return nil })
		return slot.Wait(ctx)
	}
}

// runDial performs the dial and resolves every waiter queued while it was
// in flight. The mutex is held only across the state transition itself;
// slot resolution happens after it is released, per spec.md §5.
func (f *Facade) runDial(ctx context.Context) {
	conn, err := f.dial(ctx)

	f.mu.Lock()
	waiters := f.waiters
	f.waiters = nil
	if err != nil {
		f.phase = phaseFailed
		f.err = err
	} else {
		f.phase = phaseConnected
		f.conn = conn
	}
	f.mu.Unlock()

	for _, w := range waiters {
		w.resolve(conn, err)
	}
	if err == nil {
		f.tg.Go(func() error { f.watchConnection(conn); return nil })
	}
}

// watchConnection transitions the Facade to Failed once conn's transport
// is lost, and invalidates the identity cache — its only invalidation
// trigger, per spec.md §9.
func (f *Facade) watchConnection(conn *Client) {
	<-conn.Done()
	f.mu.Lock()
	if f.conn == conn && f.phase == phaseConnected {
		f.phase = phaseFailed
		f.err = &AgentNotAvailableError{Reason: "connection lost"}
	}
	f.mu.Unlock()
	f.invalidateCache()
}

// ListIdentities serves the Facade's cached identity list if one is
// present, and otherwise dials (if needed), lists, and caches the result.
// This is the optional "Identities-cached" refinement from spec.md §4.5b.
func (f *Facade) ListIdentities(ctx context.Context) ([]AgentIdentity, error) {
	if ids, ok := f.cachedIdentities(); ok {
		return ids, nil
	}
	conn, err := f.Connection(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := conn.ListIdentities(ctx)
	if err != nil {
		return nil, err
	}
	f.cacheMu.Lock()
	f.cached = ids
	f.hasCache = true
	f.cacheMu.Unlock()
	f.metrics.setIdentitiesCached(len(ids))
	return ids, nil
}

func (f *Facade) cachedIdentities() ([]AgentIdentity, bool) {
	f.cacheMu.Lock()
	defer f.cacheMu.Unlock()
	if !f.hasCache {
		return nil, false
	}
	return f.cached, true
}

func (f *Facade) invalidateCache() {
	f.cacheMu.Lock()
	f.cached = nil
	f.hasCache = false
	f.cacheMu.Unlock()
	f.metrics.setIdentitiesCached(0)
}
