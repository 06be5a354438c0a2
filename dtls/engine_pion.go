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
	"crypto/tls"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	piondtls "github.com/pion/dtls/v2"

	"github.com/sabouaram/dgramrt/sockerr"
)

// NewPionEngine is the default EngineFactory: it adapts the pion DTLS 1.2
// implementation to the want-based contract. The pion handshake runs in
// its own goroutine against an in-memory datagram pipe; the adapter
// translates "that goroutine is blocked waiting for a datagram" into
// want-input and "the pipe holds unsent ciphertext" into want-output, so
// the session's single-threaded driver stays in control of all real I/O.
func NewPionEngine(role Role, creds *Credentials, policy VerifyPolicy) (Engine, error) {
	cfg := &piondtls.Config{
		Certificates:         []tls.Certificate{creds.TLS()},
		InsecureSkipVerify:   true,
		VerifyPeerCertificate: creds.verifier(policy),
		ExtendedMasterSecret: piondtls.RequireExtendedMasterSecret,
	}
	if role == RoleServer {
		cfg.ClientAuth = piondtls.RequireAnyClientCert
	}

	e := &pionEngine{cfg: cfg}
	e.pipe = &memConn{
		in:        make(chan []byte, 16),
		needInput: make(chan struct{}, 1),
	}
	e.hsDone = make(chan hsOutcome, 1)
	e.ioDone = make(chan ioOutcome, 1)
	return e, nil
}

type hsOutcome struct {
	conn *piondtls.Conn
	err  error
}

type ioOutcome struct {
	n   int
	err error
}

type pionEngine struct {
	cfg  *piondtls.Config
	pipe *memConn

	hsStarted bool
	hsDone    chan hsOutcome
	conn      *piondtls.Conn

	ioInFlight bool
	ioDone     chan ioOutcome
}

func (e *pionEngine) Handshake(role Role) Result {
	if e.conn != nil {
		// drain any remainder of the final flight before reporting done
		if e.pipe.hasOutput() {
			return Result{Want: WantOutputAndRetry}
		}
		return Result{Want: WantNothing}
	}

	if !e.hsStarted {
		e.hsStarted = true
		go func() {
			var c *piondtls.Conn
			var err error
			if role == RoleServer {
				c, err = piondtls.Server(e.pipe, e.cfg)
			} else {
				c, err = piondtls.Client(e.pipe, e.cfg)
			}
			e.hsDone <- hsOutcome{conn: c, err: err}
		}()
	}

	if e.pipe.hasOutput() {
		return Result{Want: WantOutputAndRetry}
	}

	select {
	case out := <-e.hsDone:
		if out.err != nil {
			return Result{Err: sockerr.New(sockerr.KindHandshakeFailed, out.err)}
		}
		e.conn = out.conn
		if e.pipe.hasOutput() {
			return Result{Want: WantOutputAndRetry}
		}
		return Result{Want: WantNothing}

	case <-e.pipe.needInput:
		if e.pipe.hasOutput() {
			return Result{Want: WantOutputAndRetry}
		}
		return Result{Want: WantInputAndRetry}
	}
}

func (e *pionEngine) Read(p []byte) Result {
	if e.conn == nil {
		return Result{Err: sockerr.New(sockerr.KindInvalidState)}
	}

	if !e.ioInFlight {
		e.ioInFlight = true
		go func() {
			n, err := e.conn.Read(p)
			e.ioDone <- ioOutcome{n: n, err: err}
		}()
	}

	if e.pipe.hasOutput() {
		return Result{Want: WantOutputAndRetry}
	}

	select {
	case out := <-e.ioDone:
		e.ioInFlight = false
		if out.err != nil {
			return Result{Err: e.mapIO(out.err)}
		}
		return Result{Want: WantNothing, N: out.n}

	case <-e.pipe.needInput:
		if e.pipe.hasOutput() {
			return Result{Want: WantOutputAndRetry}
		}
		return Result{Want: WantInputAndRetry}
	}
}

func (e *pionEngine) Write(p []byte) Result {
	if e.conn == nil {
		return Result{Err: sockerr.New(sockerr.KindInvalidState)}
	}

	n, err := e.conn.Write(p)
	if err != nil {
		return Result{Err: e.mapIO(err)}
	}
	if e.pipe.hasOutput() {
		return Result{Want: WantOutput, N: n}
	}
	return Result{Want: WantNothing, N: n}
}

func (e *pionEngine) Shutdown() Result {
	if e.conn == nil {
		return Result{Want: WantNothing}
	}
	err := e.conn.Close()
	e.conn = nil
	if err != nil {
		return Result{Err: sockerr.New(sockerr.KindSystem, err)}
	}
	if e.pipe.hasOutput() {
		return Result{Want: WantOutput}
	}
	return Result{Want: WantNothing}
}

func (e *pionEngine) FeedInput(p []byte) {
	e.pipe.feed(p)
}

func (e *pionEngine) DrainOutput() []byte {
	return e.pipe.drain()
}

func (e *pionEngine) Close() error {
	e.pipe.closeInput()
	return nil
}

func (e *pionEngine) mapIO(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return sockerr.New(sockerr.KindPeerClosed, err)
	}
	return sockerr.New(sockerr.KindSystem, err)
}

// memConn is the in-memory datagram pipe the pion goroutine runs against.
// Reads block on the inbound channel, raising needInput just before they
// park; writes land whole datagrams on the outbound queue for DrainOutput.
type memConn struct {
	in        chan []byte
	needInput chan struct{}

	mu     sync.Mutex
	out    [][]byte
	inDone bool
}

func (c *memConn) feed(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case c.in <- cp:
	default:
		// inbound queue full: drop, as the wire would
	}
}

func (c *memConn) drain() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.out) == 0 {
		return nil
	}
	d := c.out[0]
	c.out = c.out[1:]
	return d
}

func (c *memConn) hasOutput() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.out) > 0
}

func (c *memConn) closeInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inDone {
		c.inDone = true
		close(c.in)
	}
}

func (c *memConn) Read(b []byte) (int, error) {
	select {
	case d, ok := <-c.in:
		if !ok {
			return 0, io.EOF
		}
		return copy(b, d), nil
	default:
	}

	select {
	case c.needInput <- struct{}{}:
	default:
	}

	d, ok := <-c.in
	if !ok {
		return 0, io.EOF
	}
	return copy(b, d), nil
}

func (c *memConn) Write(b []byte) (int, error) {
	cp := make([]byte, len(b))
	copy(cp, b)
	c.mu.Lock()
	c.out = append(c.out, cp)
	c.mu.Unlock()
	return len(b), nil
}

func (c *memConn) Close() error { c.closeInput(); return nil }

func (c *memConn) LocalAddr() net.Addr  { return memAddr{} }
func (c *memConn) RemoteAddr() net.Addr { return memAddr{} }

func (c *memConn) SetDeadline(time.Time) error      { return nil }
func (c *memConn) SetReadDeadline(time.Time) error  { return nil }
func (c *memConn) SetWriteDeadline(time.Time) error { return nil }

type memAddr struct{}

func (memAddr) Network() string { return "mem" }
func (memAddr) String() string  { return "mem" }
