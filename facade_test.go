// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFacadeConcurrentCallersShareDial(t *testing.T) {
	var dialCount int32
	dialed := make(chan struct{})
	proceed := make(chan struct{})
	f := NewFacade(func(ctx context.Context) (*Client, error) {
		atomic.AddInt32(&dialCount, 1)
		close(dialed)
		<-proceed
		cliConn, agentConn := net.Pipe()
		go agentConn.Close() // nothing writes to this Client in this test
		return NewClient(cliConn, ClientConfig{}), nil
	})

	results := make(chan *Client, 3)
	for i := 0; i < 3; i++ {
		go func() {
			conn, err := f.Connection(context.Background())
			if err != nil {
				t.Error(err)
			}
			results <- conn
		}()
	}
	<-dialed
	close(proceed)

	conns := make([]*Client, 3)
	for i := range conns {
		conns[i] = <-results
	}
	for _, c := range conns[1:] {
		if c != conns[0] {
			t.Error("concurrent callers got different connections; want the same shared Client")
		}
	}
	if got := atomic.LoadInt32(&dialCount); got != 1 {
		t.Errorf("dial called %d times, want 1", got)
	}
}

func TestFacadeDialFailurePermanent(t *testing.T) {
	wantErr := errors.New("boom")
	f := NewFacade(func(ctx context.Context) (*Client, error) { return nil, wantErr })

	_, err := f.Connection(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}

	// A Failed Facade never retries; later callers see the same failure.
	_, err2 := f.Connection(context.Background())
	if !errors.Is(err2, wantErr) {
		t.Errorf("second call err = %v, want %v", err2, wantErr)
	}
}

func TestFacadeIdentityCache(t *testing.T) {
	cliConn, agentConn := net.Pipe()
	fa := newFakeAgent(agentConn)
	f := NewFacade(func(ctx context.Context) (*Client, error) {
		return NewClient(cliConn, ClientConfig{}), nil
	})

	go func() {
		<-fa.reqCh
		w := NewWriter()
		w.WriteU8(msgIdentitiesAnswer)
		w.WriteU32BE(1)
		w.WriteString([]byte("k"))
		w.WriteString([]byte("c"))
		fa.respond(w.Bytes())
	}()

	ids, err := f.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("len(ids) = %d, want 1", len(ids))
	}

	ids2, err := f.ListIdentities(context.Background())
	if err != nil {
		t.Fatalf("second ListIdentities: %v", err)
	}
	if diff := cmp.Diff(ids, ids2); diff != "" {
		t.Errorf("cached identities (-first, +second):\n%s", diff)
	}

	select {
	case _, ok := <-fa.reqCh:
		if ok {
			t.Error("second ListIdentities hit the wire; want served from cache")
		}
	default:
	}
}

func TestFacadeCacheInvalidatedOnTransportLoss(t *testing.T) {
	cliConn, agentConn := net.Pipe()
	fa := newFakeAgent(agentConn)
	f := NewFacade(func(ctx context.Context) (*Client, error) {
		return NewClient(cliConn, ClientConfig{}), nil
	})

	go func() {
		<-fa.reqCh
		w := NewWriter()
		w.WriteU8(msgIdentitiesAnswer)
		w.WriteU32BE(0)
		fa.respond(w.Bytes())
	}()
	if _, err := f.ListIdentities(context.Background()); err != nil {
		t.Fatalf("ListIdentities: %v", err)
	}

	conn, err := f.Connection(context.Background())
	if err != nil {
		t.Fatalf("Connection: %v", err)
	}
	conn.Close()
	agentConn.Close()

	deadline := time.Now().Add(time.Second)
	for {
		f.cacheMu.Lock()
		has := f.hasCache
		f.cacheMu.Unlock()
		if !has {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("cache was never invalidated after transport loss")
		}
		time.Sleep(time.Millisecond)
	}

	_, err = f.Connection(context.Background())
	var notAvail *AgentNotAvailableError
	if !errors.As(err, &notAvail) {
		t.Errorf("err = %v, want *AgentNotAvailableError", err)
	}
}
