/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package opkind holds the per-in-flight-request state object shared by
// every backend: one variant per operation kind, erased behind a single
// completion contract.
//
// An Operation is owned exclusively by whichever backend is driving it,
// from the moment a socket call creates it until the instant its callback
// returns; no other owner exists at any point, so cyclic references never
// arise and a sync.Pool of Operations is safe to hand back to immediately
// after dispatch.
package opkind

import (
	"github.com/google/uuid"

	"github.com/sabouaram/dgramrt/buffer"
	"github.com/sabouaram/dgramrt/endpoint"
)

// Kind discriminates the shape of an Operation.
type Kind uint8

const (
	// KindSendTo carries a const buffer.View and a destination endpoint.
	KindSendTo Kind = iota
	// KindReceiveFrom carries a *buffer.Mutable and yields the sender endpoint.
	KindReceiveFrom
	// KindHandshakeRead is a DTLS-internal receive driving the engine's
	// want-input-and-retry loop; it never reaches an application callback.
	KindHandshakeRead
	// KindHandshakeWrite is a DTLS-internal send driving the engine's
	// want-output-and-retry loop; it never reaches an application callback.
	KindHandshakeWrite
)

func (k Kind) String() string {
	switch k {
	case KindSendTo:
		return "send-to"
	case KindReceiveFrom:
		return "receive-from"
	case KindHandshakeRead:
		return "handshake-read"
	case KindHandshakeWrite:
		return "handshake-write"
	default:
		return "unknown"
	}
}

// SendCallback is invoked exactly once when a KindSendTo operation
// completes: err is nil on success, n is the number of bytes the kernel
// accepted (always the full view on success — UDP sends are atomic).
type SendCallback func(err error, n int)

// ReceiveCallback is invoked exactly once when a KindReceiveFrom operation
// completes: peer is always the endpoint the datagram actually arrived
// from, regardless of whether the socket is connected.
type ReceiveCallback func(err error, n int, peer endpoint.Endpoint)

// Operation is the single record type backing every operation kind. Only
// the fields relevant to Kind are populated; the others are zero.
type Operation struct {
	// TraceID correlates log lines and metrics for one operation across
	// its submit/complete lifecycle.
	TraceID uuid.UUID

	Kind Kind

	// Send-side fields (KindSendTo, KindHandshakeWrite).
	Out    buffer.View
	Dest   endpoint.Endpoint
	onSend SendCallback

	// Receive-side fields (KindReceiveFrom, KindHandshakeRead).
	In        *buffer.Mutable
	Peer      endpoint.Endpoint
	onReceive ReceiveCallback
}

// NewSendTo builds a KindSendTo operation. cb may be nil, in which case
// CompleteSend does nothing.
func NewSendTo(view buffer.View, dest endpoint.Endpoint, cb SendCallback) *Operation {
	return &Operation{
		TraceID: uuid.New(),
		Kind:    KindSendTo,
		Out:     view,
		Dest:    dest,
		onSend:  cb,
	}
}

// NewReceiveFrom builds a receive operation.
func NewReceiveFrom(mut *buffer.Mutable, cb ReceiveCallback) *Operation {
	return &Operation{
		TraceID:   uuid.New(),
		Kind:      KindReceiveFrom,
		In:        mut,
		onReceive: cb,
	}
}

// CompleteSend invokes the send callback exactly once. Calling it twice on
// the same Operation is a caller bug; CompleteSend does not defend against
// it, matching the "owned until callback returns" contract.
func (o *Operation) CompleteSend(err error, n int) {
	if o.onSend != nil {
		o.onSend(err, n)
	}
}

// CompleteReceive invokes the receive callback exactly once.
func (o *Operation) CompleteReceive(err error, n int, peer endpoint.Endpoint) {
	if o.onReceive != nil {
		o.onReceive(err, n, peer)
	}
}
