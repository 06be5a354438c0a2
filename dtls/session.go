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

package dtls

import (
	"sync"

	"github.com/sabouaram/dgramrt/buffer"
	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/logger"
	"github.com/sabouaram/dgramrt/metrics"
	"github.com/sabouaram/dgramrt/socket"
	"github.com/sabouaram/dgramrt/sockerr"
)

// maxDatagram bounds one ciphertext datagram the session receives for the
// engine; DTLS fragments its handshake flights to fit the path MTU, so one
// jumbo-frame-sized buffer covers every conforming peer.
const maxDatagram = 1 << 14

// State is the session's lifecycle.
type State uint8

const (
	StateFresh State = iota
	StateCookieListening
	StateHandshaking
	StateConnected
	StateShuttingDown
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateCookieListening:
		return "cookie-listening"
	case StateHandshaking:
		return "handshaking"
	case StateConnected:
		return "connected"
	case StateShuttingDown:
		return "shutting-down"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session drives one record engine over one connected UDP socket. It is
// single-user: at most one outstanding application read and one
// outstanding write, and handshake/shutdown are mutually exclusive with
// both. All calls must come from the loop goroutine.
type Session struct {
	sock socket.UDPSocket
	eng  Engine
	role Role
	peer endpoint.Endpoint
	lg   logger.Logger
	mc   *metrics.Collector

	mu          sync.Mutex
	state       State
	hsActive    bool
	readActive  bool
	writeActive bool
	shutActive  bool

	inBuf [maxDatagram]byte
}

// NewClient wraps a connected socket and an engine as a client session.
func NewClient(sock socket.UDPSocket, eng Engine, peer endpoint.Endpoint, lg logger.Logger, mc *metrics.Collector) *Session {
	if lg == nil {
		lg = logger.Nil()
	}
	return &Session{sock: sock, eng: eng, role: RoleClient, peer: peer, lg: lg, mc: mc, state: StateFresh}
}

// newServerSession is built by the Listener once the peer's cookie has
// recomputed; it starts in the handshaking state.
func newServerSession(sock socket.UDPSocket, eng Engine, peer endpoint.Endpoint, lg logger.Logger, mc *metrics.Collector) *Session {
	return &Session{sock: sock, eng: eng, role: RoleServer, peer: peer, lg: lg, mc: mc, state: StateHandshaking}
}

// Peer reports the connected peer endpoint.
func (s *Session) Peer() endpoint.Endpoint { return s.peer }

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// drive services one engine call's wants until it completes: each
// want-output drains exactly one datagram into a send, each want-input
// feeds exactly one received datagram, then the same call re-runs.
func (s *Session) drive(call func() Result, done func(Result)) {
	r := call()
	switch r.Want {
	case WantNothing:
		done(r)

	case WantOutputAndRetry, WantOutput:
		out := s.eng.DrainOutput()
		if out == nil {
			if r.Want == WantOutput {
				done(Result{Want: WantNothing, N: r.N, Err: r.Err})
				return
			}
			s.drive(call, done)
			return
		}
		final := r.Want == WantOutput
		err := s.sock.AsyncSendTo(buffer.NewView(out), s.peer, func(serr error, _ int) {
			if serr != nil {
				done(Result{Want: WantNothing, Err: serr})
				return
			}
			if final {
				done(Result{Want: WantNothing, N: r.N, Err: r.Err})
				return
			}
			s.drive(call, done)
		})
		if err != nil {
			done(Result{Want: WantNothing, Err: err})
		}

	case WantInputAndRetry:
		mut := buffer.NewMutable(s.inBuf[:])
		err := s.sock.AsyncReceiveFrom(mut, func(rerr error, n int, _ endpoint.Endpoint) {
			if rerr != nil && !sockerr.Is(rerr, sockerr.KindMessageTruncated) {
				done(Result{Want: WantNothing, Err: rerr})
				return
			}
			s.eng.FeedInput(mut.Valid())
			s.drive(call, done)
		})
		if err != nil {
			done(Result{Want: WantNothing, Err: err})
		}

	default:
		done(Result{Want: WantNothing, Err: sockerr.New(sockerr.KindSystem)})
	}
}

// Handshake drives the engine's handshake to completion and reports the
// outcome. Legal from fresh (client) or handshaking (server) only.
func (s *Session) Handshake(cb func(error)) {
	s.mu.Lock()
	if s.state != StateFresh && s.state != StateHandshaking {
		s.mu.Unlock()
		cb(sockerr.New(sockerr.KindInvalidState))
		return
	}
	if s.hsActive || s.readActive || s.writeActive || s.shutActive {
		s.mu.Unlock()
		cb(sockerr.New(sockerr.KindInvalidState))
		return
	}
	s.state = StateHandshaking
	s.hsActive = true
	s.mu.Unlock()

	s.lg.Debug("handshake started", logger.Fields{"role": s.role.String(), "peer": s.peer.String()})

	s.drive(func() Result { return s.eng.Handshake(s.role) }, func(r Result) {
		s.mu.Lock()
		s.hsActive = false
		if r.Err == nil {
			s.state = StateConnected
		}
		s.mu.Unlock()

		if r.Err != nil {
			s.mc.ObserveHandshake("failed")
			s.lg.Warning("handshake failed", logger.Fields{"peer": s.peer.String(), "error": r.Err.Error()})
			cb(s.collapse(r.Err, sockerr.KindHandshakeFailed))
			return
		}
		s.mc.ObserveHandshake("ok")
		s.lg.Debug("handshake complete", logger.Fields{"peer": s.peer.String()})
		cb(nil)
	})
}

// Read drives one application read into p. One outstanding read at a time.
func (s *Session) Read(p []byte, cb func(error, int)) {
	s.mu.Lock()
	if s.state != StateConnected || s.readActive || s.hsActive || s.shutActive {
		s.mu.Unlock()
		cb(sockerr.New(sockerr.KindInvalidState), 0)
		return
	}
	s.readActive = true
	s.mu.Unlock()

	s.drive(func() Result { return s.eng.Read(p) }, func(r Result) {
		s.mu.Lock()
		s.readActive = false
		s.mu.Unlock()
		if r.Err != nil {
			cb(s.collapse(r.Err, sockerr.KindPeerClosed), 0)
			return
		}
		cb(nil, r.N)
	})
}

// Write drives one application write of p. One outstanding write at a time.
func (s *Session) Write(p []byte, cb func(error, int)) {
	s.mu.Lock()
	if s.state != StateConnected || s.writeActive || s.hsActive || s.shutActive {
		s.mu.Unlock()
		cb(sockerr.New(sockerr.KindInvalidState), 0)
		return
	}
	s.writeActive = true
	s.mu.Unlock()

	s.drive(func() Result { return s.eng.Write(p) }, func(r Result) {
		s.mu.Lock()
		s.writeActive = false
		s.mu.Unlock()
		if r.Err != nil {
			cb(s.collapse(r.Err, sockerr.KindSystem), 0)
			return
		}
		cb(nil, r.N)
	})
}

// Shutdown drives the engine's close-notify exchange. At most one
// close-notify datagram is sent; a peer that never answers surfaces as a
// timed-out error, reported to the caller but not fatal.
func (s *Session) Shutdown(cb func(error)) {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateShuttingDown || s.shutActive {
		s.mu.Unlock()
		cb(sockerr.New(sockerr.KindInvalidState))
		return
	}
	if s.hsActive || s.readActive || s.writeActive {
		s.mu.Unlock()
		cb(sockerr.New(sockerr.KindInvalidState))
		return
	}
	s.state = StateShuttingDown
	s.shutActive = true
	s.mu.Unlock()

	s.drive(func() Result { return s.eng.Shutdown() }, func(r Result) {
		s.mu.Lock()
		s.shutActive = false
		s.mu.Unlock()
		if r.Err != nil && sockerr.Is(r.Err, sockerr.KindTimedOut) {
			// the peer never sent its close-notify; report, do not escalate
			cb(r.Err)
			return
		}
		if r.Err != nil {
			cb(s.collapse(r.Err, sockerr.KindSystem))
			return
		}
		cb(nil)
	})
}

// Close tears the session down: the socket close cancels any in-flight
// operation with a cancellation error, and the engine is released.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	s.mu.Unlock()

	err := s.sock.Close()
	_ = s.eng.Close()
	return err
}

// collapse maps an engine or socket failure onto the taxonomy kind for the
// current phase, preserving the original as the parent.
func (s *Session) collapse(err error, kind sockerr.Kind) error {
	if _, tagged := sockerr.KindOf(err); tagged {
		return err
	}
	return sockerr.New(kind, err)
}
