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

// Package sockerr closes the runtime's error taxonomy over liberr.
//
// Every backend (IOCP, io_uring, kqueue) and the DTLS session layer map their
// raw kernel/engine failures onto the small set of Kind values below before
// handing anything to a completion callback. The numeric CodeError space is
// reused so that Kind values remain liberr.Error: traceable, chainable with
// errors.Is/errors.As, and printable with the same code/message machinery
// the rest of the module already uses.
package sockerr

import (
	liberr "github.com/sabouaram/dgramrt/errors"
)

// Kind is the closed set of error kinds a caller of this module ever observes.
type Kind liberr.CodeError

const (
	base liberr.CodeError = liberr.MinPkgSocket

	// KindClosed is returned for any operation issued against (or completing
	// after) a socket in the closed state.
	KindClosed Kind = Kind(base + iota)

	// KindWouldBlock is internal to the readiness backend; it must never
	// reach a completion callback.
	KindWouldBlock

	// KindMessageTruncated marks a receive whose datagram exceeded the
	// caller's buffer capacity; bytes is clamped to the buffer size.
	KindMessageTruncated

	// KindConnectionRefused maps ICMP port-unreachable / ECONNREFUSED.
	KindConnectionRefused

	// KindAddressInUse maps EADDRINUSE from bind.
	KindAddressInUse

	// KindAddressNotAvailable maps EADDRNOTAVAIL from bind/connect.
	KindAddressNotAvailable

	// KindPermissionDenied maps EACCES/EPERM.
	KindPermissionDenied

	// KindInvalidEndpoint marks a malformed or family-mismatched endpoint.
	KindInvalidEndpoint

	// KindCancelled is delivered to every operation in flight on a socket
	// when that socket is closed.
	KindCancelled

	// KindInvalidState marks a session-layer or socket-layer state
	// violation (e.g. two concurrent application reads).
	KindInvalidState

	// KindHandshakeFailed collapses any DTLS handshake-time failure: bad
	// record, cookie mismatch, certificate verification failure.
	KindHandshakeFailed

	// KindPeerClosed marks a DTLS peer-initiated close-notify, or a
	// connected UDP socket learning its peer is gone.
	KindPeerClosed

	// KindTimedOut marks a receive-timeout expiry or a shutdown that gave
	// up waiting for the peer's close-notify.
	KindTimedOut

	// KindInvalidOption marks an unrecognised socket option name.
	KindInvalidOption

	// KindSystem is the catch-all: an unmapped errno is preserved as the
	// parent error and the raw numeric value stays inspectable by
	// errors.As into the platform errno type on the parent.
	KindSystem
)

var names = map[Kind]string{
	KindClosed:              "closed",
	KindWouldBlock:          "would-block",
	KindMessageTruncated:    "message-truncated",
	KindConnectionRefused:   "connection-refused",
	KindAddressInUse:        "address-in-use",
	KindAddressNotAvailable: "address-not-available",
	KindPermissionDenied:    "permission-denied",
	KindInvalidEndpoint:     "invalid-endpoint",
	KindCancelled:           "cancelled",
	KindInvalidState:        "invalid-state",
	KindHandshakeFailed:     "handshake-failed",
	KindPeerClosed:          "peer-closed",
	KindTimedOut:            "timed-out",
	KindInvalidOption:       "invalid-option",
	KindSystem:              "system",
}

func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "unknown"
}

func init() {
	liberr.RegisterIdFctMessage(base, func(code liberr.CodeError) string {
		if s, ok := names[Kind(code)]; ok {
			return s
		}
		return liberr.UnknownMessage
	})
}

// New builds a liberr.Error tagged with kind, optionally wrapping the raw
// system/engine error that triggered it.
func New(kind Kind, parent ...error) liberr.Error {
	return liberr.New(liberr.CodeError(kind).Uint16(), kind.String(), parent...)
}

// Is reports whether err carries the given Kind, anywhere in its parent
// chain.
func Is(err error, kind Kind) bool {
	return liberr.Has(err, liberr.CodeError(kind))
}

// KindOf extracts the Kind of err, or KindSystem if err is not one of ours.
func KindOf(err error) (Kind, bool) {
	e := liberr.Get(err)
	if e == nil {
		return KindSystem, false
	}
	return Kind(e.GetCode()), true
}
