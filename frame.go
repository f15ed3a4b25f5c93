// Copyright (c) Tailscale Inc & AUTHORS
// SPDX-License-Identifier: BSD-3-Clause

package sshagent

import (
	"encoding/binary"
	"fmt"
)

// DefaultMaxFrameSize is the recommended cap on a single frame's payload
// size (spec.md §4.3): 256 KiB.
const DefaultMaxFrameSize = 256 * 1024

// FrameCodec splits an accumulated stream of socket bytes into frames and
// adds framing to outbound payloads. It is stateless: all the state it
// needs (the byte accumulator) lives with the caller.
type FrameCodec struct {
	// MaxFrameSize caps the payload length accepted by Decode. Zero means
	// DefaultMaxFrameSize.
	MaxFrameSize uint32
}

func (c FrameCodec) maxFrameSize() uint32 {
	if c.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return c.MaxFrameSize
}

// Encode prepends a 4-byte big-endian length to payload, which must already
// begin with the message-number byte.
func (c FrameCodec) Encode(payload []byte) []byte {
	out := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(out, uint32(len(payload)))
	copy(out[4:], payload)
	return out
}

// Decode looks for one complete frame at the start of buf. If buf does not
// yet hold a complete frame, it reports ok=false and the caller should wait
// for more bytes; this is not an error. If buf declares a frame larger than
// MaxFrameSize, Decode returns a non-nil error instead: that is a transport
// worth closing, not a partial read.
//
// On success it returns the frame's payload and the bytes in buf following
// the frame (which may contain the start of, or all of, subsequent frames).
func (c FrameCodec) Decode(buf []byte) (payload, rest []byte, ok bool, err error) {
	if len(buf) < 4 {
		return nil, buf, false, nil
	}
	n := binary.BigEndian.Uint32(buf[:4])
	if n > c.maxFrameSize() {
		return nil, buf, false, fmt.Errorf("agent: frame length %d exceeds max %d", n, c.maxFrameSize())
	}
	total := 4 + uint64(n)
	if uint64(len(buf)) < total {
		return nil, buf, false, nil
	}
	return buf[4:total], buf[total:], true, nil
}
