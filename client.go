// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/creachadair/taskgroup"
)

// ClientConfig carries the optional settings for a [Client].
type ClientConfig struct {
	// Codec controls frame-size limits. The zero value uses
	// [DefaultMaxFrameSize].
	Codec FrameCodec

	// Metrics, if set, receives Prometheus instrumentation. A nil value
	// (the default) disables metrics entirely.
	Metrics *Metrics

	// Logf, if set, is used to report protocol-level events (decode
	// errors, dropped stray responses). If nil, logs are discarded.
	Logf func(string, ...any)
}

// Dial connects to an agent over the named network and address (typically
// "unix" and a path from $SSH_AUTH_SOCK) and returns a ready [Client].
func Dial(ctx context.Context, network, addr string) (*Client, error) {
	return DialConfig(ctx, network, addr, ClientConfig{})
}

// DialConfig is [Dial] with explicit [ClientConfig].
func DialConfig(ctx context.Context, network, addr string, cfg ClientConfig) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial agent: %w", err)
	}
	return NewClient(conn, cfg), nil
}

// NewClient wraps an already-connected transport as a [Client]. The Client
// owns conn from this point on: it reads from and writes to it from its own
// goroutines, and conn is closed by [Client.Close].
func NewClient(conn io.ReadWriteCloser, cfg ClientConfig) *Client {
	c := &Client{
		conn:     conn,
		codec:    cfg.Codec,
		metrics:  cfg.Metrics,
		logf:     cfg.Logf,
		submitCh: make(chan *Transaction),
		doneCh:   make(chan struct{}),
	}
	frameCh := make(chan frameResult)
	c.tg.Go(func() error { c.readLoop(frameCh); return nil })
	c.tg.Go(func() error { c.mainLoop(frameCh); return nil })
	return c
}

// Client is a connection to one SSH agent. At most one transaction is ever
// in flight on a Client at a time (spec.md §4.5a); a transaction submitted
// while another is outstanding is immediately resolved with
// [OperationInProgressError] rather than queued.
type Client struct {
	conn  io.ReadWriteCloser
	codec FrameCodec

	metrics *Metrics
	logf    func(string, ...any)

	submitCh  chan *Transaction
	doneCh    chan struct{} // closed once the connection's run loop has exited
	closeOnce sync.Once
	tg        taskgroup.Group
}

type frameResult struct {
	resp Response
	err  error
}

// Submit sends req as the connection's sole in-flight transaction, or
// immediately fails with [OperationInProgressError] if another is already
// outstanding. It blocks until the transaction resolves or ctx ends.
func (c *Client) Submit(ctx context.Context, req Request) (Response, error) {
	t := NewTransaction(req)
	select {
	case c.submitCh <- t:
	case <-c.doneCh:
		return nil, &AgentNotAvailableError{Reason: "connection closed"}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return t.Wait(ctx)
}

// ListIdentities requests and decodes the agent's identity list.
func (c *Client) ListIdentities(ctx context.Context) ([]AgentIdentity, error) {
	resp, err := c.Submit(ctx, RequestIdentities{})
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case IdentitiesAnswer:
		return r.Identities, nil
	case Failure:
		return nil, &AgentNotAvailableError{Reason: "agent refused REQUEST_IDENTITIES"}
	default:
		return nil, unexpectedResponse("REQUEST_IDENTITIES", resp)
	}
}

// AddIdentity asks the agent to add id, as parsed by [ParseIdentity].
func (c *Client) AddIdentity(ctx context.Context, id Identity) error {
	resp, err := c.Submit(ctx, AddIdentity{Identity: id})
	if err != nil {
		return err
	}
	switch resp.(type) {
	case Success:
		return nil
	case Failure:
		return errors.New("agent: ADD_IDENTITY failed")
	default:
		return unexpectedResponse("ADD_IDENTITY", resp)
	}
}

// Sign requests a signature over data using the private key matching
// keyBlob (an SSH wire-format public key, as returned in an
// [AgentIdentity]). The returned bytes are an opaque SSH-formatted
// signature blob; this package does not interpret or verify it.
func (c *Client) Sign(ctx context.Context, keyBlob, data []byte, flags uint32) ([]byte, error) {
	resp, err := c.Submit(ctx, SignRequest{KeyBlob: keyBlob, Data: data, Flags: flags})
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case SignResponse:
		return r.Signature, nil
	case Failure:
		return nil, errors.New("agent: SIGN_REQUEST failed")
	default:
		return nil, unexpectedResponse("SIGN_REQUEST", resp)
	}
}

func unexpectedResponse(op string, resp Response) error {
	if n, ok := resp.(NotYetSupported); ok {
		return fmt.Errorf("agent: %s: %w", op, n)
	}
	return fmt.Errorf("agent: %s: unexpected response %T", op, resp)
}

// Close closes the underlying transport and waits for the Client's
// goroutines to exit. Any transaction still in flight resolves with
// [AgentNotAvailableError].
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() { err = c.conn.Close() })
	c.tg.Wait()
	return err
}

// mainLoop is the only goroutine that ever touches channelState, so no
// lock is needed for it (spec.md §5): submissions and inbound frames are
// both funneled through channels into this one select loop.
func (c *Client) mainLoop(frameCh <-chan frameResult) {
	defer close(c.doneCh)
	var state channelState
	submitted := make(map[*Transaction]time.Time)

	for {
		select {
		case t := <-c.submitCh:
			submitted[t] = time.Now()
			c.metrics.observeSubmit(t.Request)
			act := state.submit(t)
			if act.resolve != nil {
				c.finishTransaction(act.resolve, submitted, act.resp, act.err)
			}
			if act.send != nil {
				c.writeRequest(&state, act.send, submitted)
			}

		case fr, ok := <-frameCh:
			if !ok {
				act := state.transportInactive()
				if act.resolve != nil {
					c.finishTransaction(act.resolve, submitted, act.resp, act.err)
				}
				return
			}
			var act channelAction
			if fr.err != nil {
				act = state.receiveErr(fr.err)
			} else {
				act = state.receive(fr.resp)
			}
			if act.resolve != nil {
				c.finishTransaction(act.resolve, submitted, act.resp, act.err)
			} else if fr.err != nil {
				c.logPrintf("sshagent: response while idle, decode error: %v", fr.err)
			} else {
				c.logPrintf("sshagent: response %T received while idle; dropped", fr.resp)
			}
		}
	}
}

func (c *Client) writeRequest(state *channelState, t *Transaction, submitted map[*Transaction]time.Time) {
	payload := EncodeRequest(t.Request)
	frame := c.codec.Encode(payload)
	n, err := c.conn.Write(frame)
	if err != nil {
		act := state.complete(nil, fmt.Errorf("agent: write request: %w", err))
		if act.resolve != nil {
			c.finishTransaction(act.resolve, submitted, act.resp, act.err)
		}
		return
	}
	c.metrics.observeSent(n)
}

func (c *Client) finishTransaction(t *Transaction, submitted map[*Transaction]time.Time, resp Response, err error) {
	t.slot.resolve(resp, err)
	if start, ok := submitted[t]; ok {
		c.metrics.observeResolve(time.Since(start).Seconds(), err)
		delete(submitted, t)
	}
}

// readLoop owns the socket read side: it accumulates bytes, peels off
// frames with c.codec, decodes each into a [Response], and forwards the
// result to mainLoop. It closes frameCh when the transport ends, which is
// mainLoop's only signal that the connection is no longer usable.
func (c *Client) readLoop(frameCh chan<- frameResult) {
	defer close(frameCh)
	var buf []byte
	tmp := make([]byte, 32*1024)
	for {
		n, err := c.conn.Read(tmp)
		if n > 0 {
			c.metrics.observeReceived(n)
			buf = append(buf, tmp[:n]...)
			for {
				payload, rest, ok, decErr := c.codec.Decode(buf)
				if decErr != nil {
					frameCh <- frameResult{err: decErr}
					return
				}
				if !ok {
					break
				}
				buf = rest
				resp, respErr := DecodeResponse(payload)
				if respErr != nil {
					frameCh <- frameResult{err: respErr}
					continue
				}
				frameCh <- frameResult{resp: resp}
			}
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) logPrintf(format string, args ...any) {
	if c.logf != nil {
		c.logf(format, args...)
	}
}
