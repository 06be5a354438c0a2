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

// Package dtls layers a DTLS 1.2 session state machine over one connected
// async UDP socket.
//
// The record engine itself is a collaborator, consumed behind the Engine
// contract: every engine call reports a Want telling the session what the
// engine needs next, and the session services that need with exactly one
// datagram receive or send before re-invoking the same call. The cookie
// exchange in cookie.go runs below the engine, on the server's single
// unconnected listen socket, so no per-peer state exists until a peer has
// proven it can receive at its claimed address.
package dtls

// Role selects the handshake direction of an Engine.
type Role uint8

const (
	RoleClient Role = iota
	RoleServer
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// Want is an engine call's report of what its driver must do next.
type Want uint8

const (
	// WantNothing: the call finished; consult Result.Err and Result.N.
	WantNothing Want = iota
	// WantInputAndRetry: feed one or more ciphertext datagrams via
	// FeedInput, then re-invoke the same call.
	WantInputAndRetry
	// WantOutputAndRetry: drain one datagram via DrainOutput, send it,
	// then re-invoke the same call.
	WantOutputAndRetry
	// WantOutput: as WantOutputAndRetry, but the call is complete once the
	// drained datagram is sent.
	WantOutput
)

func (w Want) String() string {
	switch w {
	case WantNothing:
		return "want-nothing"
	case WantInputAndRetry:
		return "want-input-and-retry"
	case WantOutputAndRetry:
		return "want-output-and-retry"
	case WantOutput:
		return "want-output"
	default:
		return "unknown"
	}
}

// Result is the outcome of one engine call.
type Result struct {
	Want Want
	// N is the plaintext byte count moved by a completed Read or Write.
	N int
	// Err is meaningful only with WantNothing.
	Err error
}

// Engine is the record-engine contract the session drives. Engines are
// not reentrant; the session touches one only from the loop goroutine.
type Engine interface {
	// Handshake advances the handshake for the given role.
	Handshake(role Role) Result

	// Read decrypts application data into p.
	Read(p []byte) Result

	// Write encrypts p into ciphertext records.
	Write(p []byte) Result

	// Shutdown produces at most one close-notify.
	Shutdown() Result

	// FeedInput hands one received ciphertext datagram to the engine.
	FeedInput(p []byte)

	// DrainOutput removes and returns one produced ciphertext datagram,
	// or nil when none is pending.
	DrainOutput() []byte

	// Close releases engine resources; no call is valid afterwards.
	Close() error
}
