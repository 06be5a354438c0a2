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

// EngineFactory builds one record engine for a freshly accepted peer.
type EngineFactory func(role Role, creds *Credentials, policy VerifyPolicy) (Engine, error)

// Listener runs the stateless cookie exchange on a single unconnected
// datagram socket. Only a peer whose echoed cookie recomputes against its
// address under the process secret gets a connected socket and a session;
// everything else is answered with a hello-verify-request (first contact)
// or dropped (bad cookie), with no per-peer state either way.
type Listener struct {
	loop    socket.EventLoop
	sock    socket.UDPSocket
	local   endpoint.Endpoint
	opts    socket.Options
	secret  cookieSecret
	creds   *Credentials
	policy  VerifyPolicy
	factory EngineFactory
	lg      logger.Logger
	mc      *metrics.Collector

	mu     sync.Mutex
	closed bool

	buf [maxDatagram]byte
}

// NewListener binds the unconnected listen socket. Reuse-address is forced
// on in opts, whatever the caller passed, so per-peer connected sockets can
// share the local endpoint.
func NewListener(loop socket.EventLoop, local endpoint.Endpoint, opts socket.Options,
	creds *Credentials, policy VerifyPolicy, factory EngineFactory,
	lg logger.Logger, mc *metrics.Collector) (*Listener, error) {

	if lg == nil {
		lg = logger.Nil()
	}

	secret, err := newCookieSecret()
	if err != nil {
		return nil, err
	}

	opts.ReuseAddress = true
	sock, err := loop.CreateUDPSocket(opts)
	if err != nil {
		return nil, err
	}
	if err = sock.Bind(local); err != nil {
		return nil, err
	}

	lg.Info("dtls listener bound", logger.Fields{"endpoint": local.String()})
	return &Listener{
		loop:    loop,
		sock:    sock,
		local:   local,
		opts:    opts,
		secret:  secret,
		creds:   creds,
		policy:  policy,
		factory: factory,
		lg:      lg,
		mc:      mc,
	}, nil
}

// Listen arms the accept loop: accept is invoked once per verified peer
// with a session already past the cookie gate and ready for Handshake.
// Listen returns immediately; sessions surface from the loop's Run.
func (l *Listener) Listen(accept func(*Session)) error {
	return l.arm(accept)
}

func (l *Listener) arm(accept func(*Session)) error {
	mut := buffer.NewMutable(l.buf[:])
	return l.sock.AsyncReceiveFrom(mut, func(err error, n int, peer endpoint.Endpoint) {
		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed || sockerr.Is(err, sockerr.KindCancelled) {
			return
		}
		if err != nil && !sockerr.Is(err, sockerr.KindMessageTruncated) {
			if !sockerr.Is(err, sockerr.KindTimedOut) {
				l.lg.Warning("listener receive failed", logger.Fields{"error": err.Error()})
			}
			_ = l.arm(accept)
			return
		}

		l.handleDatagram(mut.Valid(), peer, accept)
		_ = l.arm(accept)
	})
}

// handleDatagram runs the wait-free cookie check for one incoming
// client-hello. No allocation survives this call unless the cookie
// verified.
func (l *Listener) handleDatagram(p []byte, peer endpoint.Endpoint, accept func(*Session)) {
	ch, err := parseClientHello(p)
	if err != nil {
		// not a client-hello; an open port sees plenty of those
		return
	}

	if len(ch.cookie) == 0 {
		hvr := buildHelloVerifyRequest(l.secret.compute(peer), ch)
		// one in-flight send per socket; a drop here is repaired by the
		// client's retransmission timer
		_ = l.sock.AsyncSendTo(buffer.NewView(hvr), peer, func(serr error, _ int) {
			if serr != nil && !sockerr.Is(serr, sockerr.KindCancelled) {
				l.lg.Debug("hello-verify send failed", logger.Fields{"peer": peer.String(), "error": serr.Error()})
			}
		})
		return
	}

	if !l.secret.verify(peer, ch.cookie) {
		l.mc.ObserveHandshake("cookie-rejected")
		l.lg.Debug("cookie rejected", logger.Fields{"peer": peer.String()})
		return
	}

	sess, err := l.allocate(p, ch, peer)
	if err != nil {
		l.lg.Warning("session allocation failed", logger.Fields{"peer": peer.String(), "error": err.Error()})
		return
	}
	accept(sess)
}

// allocate builds the per-peer connected socket and session once the
// cookie has proven the peer's return path.
func (l *Listener) allocate(raw []byte, ch *clientHello, peer endpoint.Endpoint) (*Session, error) {
	sock, err := l.loop.CreateUDPSocket(l.opts)
	if err != nil {
		return nil, err
	}
	if err = sock.Bind(l.local); err != nil {
		_ = sock.Close()
		return nil, err
	}
	if err = sock.Connect(peer); err != nil {
		_ = sock.Close()
		return nil, err
	}

	eng, err := l.factory(RoleServer, l.creds, l.policy)
	if err != nil {
		_ = sock.Close()
		return nil, err
	}

	// Hand the engine the hello with its cookie blanked: the stateless
	// gate is done, and the engine restarts its own exchange cleanly.
	eng.FeedInput(stripCookie(raw, ch))

	l.lg.Debug("peer accepted", logger.Fields{"peer": peer.String()})
	return newServerSession(sock, eng, peer, l.lg, l.mc), nil
}

// LocalEndpoint reports the bound listen endpoint.
func (l *Listener) LocalEndpoint() endpoint.Endpoint { return l.local }

// Close shuts the listen socket; accepted sessions are unaffected.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()
	return l.sock.Close()
}
