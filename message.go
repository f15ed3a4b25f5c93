// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import "fmt"

// Message numbers recognized on the wire (spec.md §6). Any other number
// decodes to [NotYetSupported] rather than being rejected.
const (
	msgFailure           = 5
	msgSuccess           = 6
	msgRequestIdentities = 11
	msgIdentitiesAnswer  = 12
	msgSignRequest       = 13
	msgSignResponse      = 14
	msgAddIdentity       = 17
)

// Request is the sum type of messages a client may send to an agent:
// [RequestIdentities], [SignRequest], or [AddIdentity].
type Request interface {
	isRequest()
	encode(w *Writer)
}

// RequestIdentities asks the agent to list the identities it holds.
type RequestIdentities struct{}

func (RequestIdentities) isRequest() {}
func (RequestIdentities) encode(w *Writer) {
	w.WriteU8(msgRequestIdentities)
}

// SignRequest asks the agent to sign data using the private key matching
// KeyBlob (an SSH wire-format public key, as returned in an
// [AgentIdentity]).
type SignRequest struct {
	KeyBlob []byte
	Data    []byte
	Flags   uint32
}

func (SignRequest) isRequest() {}
func (r SignRequest) encode(w *Writer) {
	w.WriteU8(msgSignRequest)
	w.WriteString(r.KeyBlob)
	w.WriteString(r.Data)
	w.WriteU32BE(r.Flags)
}

// AddIdentity asks the agent to add an identity parsed by [ParseIdentity].
type AddIdentity struct {
	Identity Identity
}

func (AddIdentity) isRequest() {}
func (r AddIdentity) encode(w *Writer) {
	w.WriteU8(msgAddIdentity)
	for _, f := range r.Identity.Fields {
		w.WriteString(f)
	}
}

// EncodeRequest renders r as the message-number-prefixed payload the frame
// codec expects (the frame length prefix is not added here).
func EncodeRequest(r Request) []byte {
	w := NewWriter()
	r.encode(w)
	return w.Bytes()
}

// Response is the sum type of messages an agent may send back:
// [Success], [Failure], [IdentitiesAnswer], [SignResponse], or
// [NotYetSupported].
type Response interface {
	isResponse()
}

// Success is the agent's unconditional OK response (message 6).
type Success struct{}

func (Success) isResponse() {}

// Failure is the agent's unconditional error response (message 5). The
// protocol carries no reason string; Failure alone is the entire report.
type Failure struct{}

func (Failure) isResponse() {}

// AgentIdentity is one identity the agent offered in an
// [IdentitiesAnswer]: a wire-format public key and a human-readable
// comment.
type AgentIdentity struct {
	KeyBlob []byte
	Comment string
}

// IdentitiesAnswer lists the identities the agent currently holds, in the
// agent's own order.
type IdentitiesAnswer struct {
	Identities []AgentIdentity
}

func (IdentitiesAnswer) isResponse() {}

// SignResponse carries the signature the agent produced. The blob is an
// SSH-formatted signature (type string + signature-body string), carried
// through opaquely; this package does not verify or interpret it.
type SignResponse struct {
	Signature []byte
}

func (SignResponse) isResponse() {}

// NotYetSupported is returned for any message number this package does not
// decode a body for, recognized or not. No further bytes are consumed.
type NotYetSupported struct {
	MessageNumber byte
}

func (NotYetSupported) isResponse() {}

func (n NotYetSupported) Error() string {
	return fmt.Sprintf("agent: message %d not yet supported", n.MessageNumber)
}

// DecodeResponse decodes the payload of one frame (the frame length prefix
// must already be stripped by the frame codec) into a [Response]. Trailing
// bytes after a message's expected shape is consumed are a hard error
// ([TrailingBytesError]); see spec.md §9's resolution of that open
// question.
func DecodeResponse(payload []byte) (Response, error) {
	r := NewReader(payload)
	n, ok := r.ReadU8()
	if !ok {
		return nil, &BadResponseError{Reason: "empty response frame"}
	}

	switch n {
	case msgSuccess:
		if err := expectNoTrailer(r, n); err != nil {
			return nil, err
		}
		return Success{}, nil

	case msgFailure:
		if err := expectNoTrailer(r, n); err != nil {
			return nil, err
		}
		return Failure{}, nil

	case msgIdentitiesAnswer:
		return decodeIdentitiesAnswer(r, n)

	case msgSignResponse:
		sig, ok := r.ReadString()
		if !ok {
			// An absent signature string is not malformed: spec.md §4.4
			// mandates FAILURE here, distinct from a present-but-empty
			// signature, which decodes to SignResponse{} below.
			return Failure{}, nil
		}
		if err := expectNoTrailer(r, n); err != nil {
			return nil, err
		}
		return SignResponse{Signature: sig}, nil

	default:
		// Unknown or unparsed message: pass through regardless of
		// trailing content, per spec.md §4.4.
		return NotYetSupported{MessageNumber: n}, nil
	}
}

func decodeIdentitiesAnswer(r *Reader, msgNum byte) (Response, error) {
	k, ok := r.ReadU32BE()
	if !ok {
		return nil, &BadResponseError{Reason: "identities answer missing count"}
	}
	ids := make([]AgentIdentity, 0, k)
	for i := uint32(0); i < k; i++ {
		blob, ok := r.ReadString()
		if !ok {
			// Short read mid-list: truncate rather than raise, per
			// spec.md §4.4.
			return IdentitiesAnswer{Identities: ids}, nil
		}
		comment, ok, err := r.ReadStringUTF8()
		if err != nil {
			return nil, err
		}
		if !ok {
			return IdentitiesAnswer{Identities: ids}, nil
		}
		ids = append(ids, AgentIdentity{KeyBlob: blob, Comment: comment})
	}
	if err := expectNoTrailer(r, msgNum); err != nil {
		return nil, err
	}
	return IdentitiesAnswer{Identities: ids}, nil
}

func expectNoTrailer(r *Reader, msgNum byte) error {
	if extra := r.Remaining(); extra > 0 {
		return &TrailingBytesError{MessageNumber: msgNum, Extra: extra}
	}
	return nil
}
