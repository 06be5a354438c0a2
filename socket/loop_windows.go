//go:build windows

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

// Completion-queue backend: every operation carries its own OVERLAPPED
// structure; WSASendTo/WSARecvFrom post results to one completion port and
// Run dequeues them, maps (bytes, error) and invokes the callback. Stop
// posts a sentinel completion with a reserved key.
package socket

import (
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/sabouaram/dgramrt/buffer"
	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/logger"
	"github.com/sabouaram/dgramrt/metrics"
	"github.com/sabouaram/dgramrt/opkind"
	"github.com/sabouaram/dgramrt/sockerr"
)

const stopKey uintptr = 1

var wsaOnce sync.Once

type winLoop struct {
	port windows.Handle
	lg   logger.Logger
	mc   *metrics.Collector

	mu      sync.Mutex
	stopped bool
	pending map[*windows.Overlapped]*winOp
}

func newLoop(lg logger.Logger, mc *metrics.Collector) (EventLoop, error) {
	var wsaErr error
	wsaOnce.Do(func() {
		var data windows.WSAData
		wsaErr = windows.WSAStartup(uint32(0x202), &data)
	})
	if wsaErr != nil {
		return nil, sockerr.Wrap(wsaErr)
	}

	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return nil, sockerr.Wrap(err)
	}
	lg.Debug("iocp backend ready", nil)
	return &winLoop{port: port, lg: lg, mc: mc, pending: map[*windows.Overlapped]*winOp{}}, nil
}

// winOp wraps one opkind.Operation with the OVERLAPPED structure, the WSA
// buffer descriptor and the raw peer address for one in-flight operation.
type winOp struct {
	*opkind.Operation

	ov   windows.Overlapped
	sock *winSocket
	done bool

	wsabuf windows.WSABuf
	flags  uint32
	rsa    windows.RawSockaddrAny
	rsaLen int32
}

func (l *winLoop) CreateUDPSocket(opts Options) (UDPSocket, error) {
	return &winSocket{loop: l, opts: opts, h: windows.InvalidHandle}, nil
}

func (l *winLoop) Run() error {
	for {
		l.mu.Lock()
		if l.stopped {
			l.stopped = false
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		timeout := uint32(windows.INFINITE)
		if dl, ok := l.nearestDeadline(); ok {
			d := time.Until(dl)
			if d < 0 {
				d = 0
			}
			timeout = uint32(d.Milliseconds()) + 1
		}

		var qty uint32
		var key uintptr
		var ov *windows.Overlapped

		start := time.Now()
		err := windows.GetQueuedCompletionStatus(l.port, &qty, &key, &ov, timeout)
		l.mc.ObserveWait(time.Since(start))

		if ov == nil {
			// sentinel post (stopKey) or wait timeout; either way there is
			// no completion record to dispatch.
			if key != stopKey {
				l.expireReceives(time.Now())
			}
			continue
		}

		l.expireReceives(time.Now())
		l.dispatch(ov, qty, err)
	}
}

func (l *winLoop) dispatch(ov *windows.Overlapped, qty uint32, err error) {
	l.mu.Lock()
	op := l.pending[ov]
	delete(l.pending, ov)
	l.mu.Unlock()

	if op == nil || op.done {
		return
	}
	op.sock.finish(op, int(qty), err)
}

func (l *winLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	_ = windows.PostQueuedCompletionStatus(l.port, 0, stopKey, nil)
}

// Reopen recreates the completion port after a fork-like event. Pending
// operation state is per-socket and survives; only the kernel object is
// replaced.
func (l *winLoop) Reopen() error {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 1)
	if err != nil {
		return sockerr.Wrap(err)
	}
	l.port = port
	return nil
}

func (l *winLoop) nearestDeadline() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var best time.Time
	found := false
	for _, op := range l.pending {
		s := op.sock
		s.mu.Lock()
		if op.Kind == opkind.KindReceiveFrom && !s.recvDeadline.IsZero() {
			if !found || s.recvDeadline.Before(best) {
				best = s.recvDeadline
				found = true
			}
		}
		s.mu.Unlock()
	}
	return best, found
}

// expireReceives cancels every timed-out pending receive; the kernel posts
// an ERROR_OPERATION_ABORTED completion which finish remaps to timed-out.
func (l *winLoop) expireReceives(now time.Time) {
	l.mu.Lock()
	var victims []*winOp
	for _, op := range l.pending {
		s := op.sock
		s.mu.Lock()
		if op.Kind == opkind.KindReceiveFrom && !s.recvDeadline.IsZero() && !s.recvDeadline.After(now) {
			s.recvTimedOut = true
			victims = append(victims, op)
		}
		s.mu.Unlock()
	}
	l.mu.Unlock()

	for _, op := range victims {
		_ = windows.CancelIoEx(op.sock.h, &op.ov)
	}
}

type winSocket struct {
	loop *winLoop
	opts Options

	mu           sync.Mutex
	h            windows.Handle
	state        State
	local        endpoint.Endpoint
	sendOp       *winOp
	recvOp       *winOp
	recvDeadline time.Time
	recvTimedOut bool
}

// ensureHandle creates the overlapped socket on first use and associates
// it with the completion port. Caller holds s.mu.
func (s *winSocket) ensureHandle(family int32) error {
	if s.h != windows.InvalidHandle {
		return nil
	}
	h, err := newWinUDPSocket(family, s.opts)
	if err != nil {
		return err
	}
	if _, err = windows.CreateIoCompletionPort(h, s.loop.port, 0, 0); err != nil {
		_ = windows.Closesocket(h)
		return sockerr.Wrap(err)
	}
	s.h = h
	s.state = StateOpened
	return nil
}

func (s *winSocket) Bind(ep endpoint.Endpoint) error {
	sa, err := toWinSockaddr(ep)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return sockerr.New(sockerr.KindClosed)
	}
	if err = s.ensureHandle(winFamilyOf(ep)); err != nil {
		return err
	}
	if berr := windows.Bind(s.h, sa); berr != nil {
		return sockerr.Wrap(berr)
	}
	s.local = ep
	s.state = StateBound
	s.loop.lg.Debug("socket bound", logger.Fields{"endpoint": ep.String()})
	return nil
}

func (s *winSocket) Connect(ep endpoint.Endpoint) error {
	sa, err := toWinSockaddr(ep)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return sockerr.New(sockerr.KindClosed)
	}
	if err = s.ensureHandle(winFamilyOf(ep)); err != nil {
		return err
	}
	if cerr := windows.Connect(s.h, sa); cerr != nil {
		return sockerr.Wrap(cerr)
	}
	s.state = StateConnected
	s.loop.lg.Debug("socket connected", logger.Fields{"peer": ep.String()})
	return nil
}

func (s *winSocket) AsyncSendTo(view buffer.View, dest endpoint.Endpoint, cb opkind.SendCallback) error {
	sa, err := toWinSockaddr(dest)
	if err != nil {
		return err
	}

	op := &winOp{Operation: opkind.NewSendTo(view, dest, cb), sock: s}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindClosed)
	}
	if s.sendOp != nil {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindInvalidState)
	}
	if err = s.ensureHandle(winFamilyOf(dest)); err != nil {
		s.mu.Unlock()
		return err
	}
	h := s.h
	s.sendOp = op
	s.mu.Unlock()

	if view.Len() > 0 {
		op.wsabuf.Buf = &view.Bytes()[0]
	}
	op.wsabuf.Len = uint32(view.Len())

	s.loop.mu.Lock()
	s.loop.pending[&op.ov] = op
	s.loop.mu.Unlock()

	var sent uint32
	werr := windows.WSASendto(h, &op.wsabuf, 1, &sent, 0, sa, &op.ov, nil)
	if werr != nil && werr != windows.ERROR_IO_PENDING {
		s.loop.mu.Lock()
		delete(s.loop.pending, &op.ov)
		s.loop.mu.Unlock()
		s.mu.Lock()
		s.sendOp = nil
		s.mu.Unlock()
		return sockerr.Wrap(werr)
	}
	// A synchronous success still posts its completion record to the
	// port, so the callback fires only from Run.
	return nil
}

func (s *winSocket) AsyncReceiveFrom(mut *buffer.Mutable, cb opkind.ReceiveCallback) error {
	op := &winOp{Operation: opkind.NewReceiveFrom(mut, cb), sock: s}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindClosed)
	}
	if s.recvOp != nil {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindInvalidState)
	}
	if err := s.ensureHandle(windows.AF_INET6); err != nil {
		s.mu.Unlock()
		return err
	}
	h := s.h
	if s.opts.RecvTimeout > 0 {
		s.recvDeadline = time.Now().Add(s.opts.RecvTimeout)
	} else {
		s.recvDeadline = time.Time{}
	}
	s.recvTimedOut = false
	s.recvOp = op
	s.mu.Unlock()

	if mut.Cap() > 0 {
		op.wsabuf.Buf = &mut.Bytes()[0]
	}
	op.wsabuf.Len = uint32(mut.Cap())
	op.rsaLen = int32(unsafe.Sizeof(op.rsa))

	s.loop.mu.Lock()
	s.loop.pending[&op.ov] = op
	s.loop.mu.Unlock()

	var recvd uint32
	werr := windows.WSARecvFrom(h, &op.wsabuf, 1, &recvd, &op.flags, &op.rsa, &op.rsaLen, &op.ov, nil)
	if werr != nil && werr != windows.ERROR_IO_PENDING {
		s.loop.mu.Lock()
		delete(s.loop.pending, &op.ov)
		s.loop.mu.Unlock()
		s.mu.Lock()
		s.recvOp = nil
		s.mu.Unlock()
		return sockerr.Wrap(werr)
	}
	return nil
}

// finish maps one dequeued completion onto the operation's callback,
// running on the loop goroutine.
func (s *winSocket) finish(op *winOp, n int, werr error) {
	s.mu.Lock()
	timedOut := s.recvTimedOut
	s.recvTimedOut = false
	switch op.Kind {
	case opkind.KindSendTo:
		if s.sendOp == op {
			s.sendOp = nil
		}
	case opkind.KindReceiveFrom:
		if s.recvOp == op {
			s.recvOp = nil
		}
		s.recvDeadline = time.Time{}
	}
	s.mu.Unlock()

	var err error
	peer := endpoint.Endpoint{}

	if werr != nil {
		if op.Kind == opkind.KindReceiveFrom && timedOut {
			err = sockerr.New(sockerr.KindTimedOut, werr)
		} else {
			err = sockerr.Wrap(werr)
		}
		if sockerr.Is(err, sockerr.KindMessageTruncated) {
			// WSAEMSGSIZE still delivered the clamped prefix
			err = sockerr.New(sockerr.KindMessageTruncated)
			n = op.In.Cap()
		} else {
			n = 0
		}
	}

	if op.Kind == opkind.KindReceiveFrom && (err == nil || sockerr.Is(err, sockerr.KindMessageTruncated)) {
		op.In.SetValid(n)
		peer = fromRawWinSockaddr(&op.rsa)
	}

	s.loop.mc.ObserveCompletion(op.Kind, err)
	s.loop.lg.Trace("operation complete", logger.Fields{"op": op.TraceID.String(), "kind": op.Kind.String(), "bytes": n})

	switch op.Kind {
	case opkind.KindSendTo:
		op.CompleteSend(err, n)
	case opkind.KindReceiveFrom:
		op.CompleteReceive(err, n, peer)
	}
}

func (s *winSocket) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	h := s.h
	s.h = windows.InvalidHandle
	sendOp := s.sendOp
	recvOp := s.recvOp
	s.sendOp = nil
	s.recvOp = nil
	s.mu.Unlock()

	s.loop.mu.Lock()
	for _, op := range []*winOp{sendOp, recvOp} {
		if op != nil {
			op.done = true
		}
	}
	s.loop.mu.Unlock()

	cancelled := sockerr.New(sockerr.KindCancelled)
	if sendOp != nil {
		s.loop.mc.ObserveCompletion(sendOp.Kind, cancelled)
		sendOp.CompleteSend(cancelled, 0)
	}
	if recvOp != nil {
		s.loop.mc.ObserveCompletion(recvOp.Kind, cancelled)
		recvOp.CompleteReceive(cancelled, 0, endpoint.Endpoint{})
	}

	if h != windows.InvalidHandle {
		return sockerr.Wrap(windows.Closesocket(h))
	}
	return nil
}

func (s *winSocket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *winSocket) LocalEndpoint() endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}
