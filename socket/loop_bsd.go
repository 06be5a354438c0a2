//go:build darwin || dragonfly || freebsd || netbsd || openbsd

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

// Readiness-filter backend: the runtime attempts each syscall speculatively
// and only registers kqueue interest when it would block. A speculative
// success is never delivered inline: its completion is parked on the ready
// queue and dispatched from Run, so handlers only ever run on the loop
// goroutine. Write-filter interest is dropped whenever the pending-send
// slot empties, since edge-triggered write readiness on an idle datagram
// socket spins otherwise.
package socket

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/dgramrt/buffer"
	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/logger"
	"github.com/sabouaram/dgramrt/metrics"
	"github.com/sabouaram/dgramrt/opkind"
	"github.com/sabouaram/dgramrt/sockerr"
)

const bsdEventBatch = 256

type bsdLoop struct {
	kq   int
	intr *interrupter
	lg   logger.Logger
	mc   *metrics.Collector

	mu      sync.Mutex
	stopped bool
	socks   map[int]*bsdSocket
	ready   []func()
}

func newLoop(lg logger.Logger, mc *metrics.Collector) (EventLoop, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, sockerr.Wrap(err)
	}
	unix.CloseOnExec(kq)

	intr, err := newInterrupter()
	if err != nil {
		_ = unix.Close(kq)
		return nil, err
	}

	l := &bsdLoop{kq: kq, intr: intr, lg: lg, mc: mc, socks: map[int]*bsdSocket{}}
	if err := l.registerRead(intr.fd()); err != nil {
		intr.close()
		_ = unix.Close(kq)
		return nil, err
	}
	lg.Debug("kqueue backend ready", nil)
	return l, nil
}

func (l *bsdLoop) registerRead(fd int) error {
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR}
	_, err := unix.Kevent(l.kq, []unix.Kevent_t{ev}, nil, nil)
	return sockerr.Wrap(err)
}

func (l *bsdLoop) unregisterRead(fd int) {
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE}
	_, _ = unix.Kevent(l.kq, []unix.Kevent_t{ev}, nil, nil)
}

func (l *bsdLoop) registerWrite(fd int) error {
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_ENABLE | unix.EV_CLEAR}
	_, err := unix.Kevent(l.kq, []unix.Kevent_t{ev}, nil, nil)
	return sockerr.Wrap(err)
}

func (l *bsdLoop) unregisterWrite(fd int) {
	ev := unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE}
	_, _ = unix.Kevent(l.kq, []unix.Kevent_t{ev}, nil, nil)
}

// queueReady parks a completion for dispatch from Run and wakes a blocked
// wait so it is delivered promptly.
func (l *bsdLoop) queueReady(f func()) {
	l.mu.Lock()
	l.ready = append(l.ready, f)
	l.mu.Unlock()
	l.intr.wake()
}

func (l *bsdLoop) CreateUDPSocket(opts Options) (UDPSocket, error) {
	return &bsdSocket{fd: -1, loop: l, opts: opts}, nil
}

func (l *bsdLoop) drainReady() {
	for {
		l.mu.Lock()
		if len(l.ready) == 0 {
			l.mu.Unlock()
			return
		}
		f := l.ready[0]
		l.ready = l.ready[1:]
		l.mu.Unlock()
		f()
	}
}

// nearestDeadline reports the closest receive-timeout expiry across every
// socket with an armed timed receive, or false when none is armed.
func (l *bsdLoop) nearestDeadline() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var best time.Time
	found := false
	for _, s := range l.socks {
		s.mu.Lock()
		if s.pendingRecv != nil && !s.recvDeadline.IsZero() {
			if !found || s.recvDeadline.Before(best) {
				best = s.recvDeadline
				found = true
			}
		}
		s.mu.Unlock()
	}
	return best, found
}

// expireReceives completes every timed-out pending receive with the
// timed-out error and drops its read-filter interest.
func (l *bsdLoop) expireReceives(now time.Time) {
	l.mu.Lock()
	var expired []*bsdSocket
	for _, s := range l.socks {
		s.mu.Lock()
		if s.pendingRecv != nil && !s.recvDeadline.IsZero() && !s.recvDeadline.After(now) {
			expired = append(expired, s)
		}
		s.mu.Unlock()
	}
	l.mu.Unlock()

	for _, s := range expired {
		l.unregisterRead(s.fdLocked())
		s.completeRecv(sockerr.New(sockerr.KindTimedOut), 0, endpoint.Endpoint{})
	}
}

func (l *bsdLoop) Run() error {
	events := make([]unix.Kevent_t, bsdEventBatch)
	for {
		l.drainReady()

		l.mu.Lock()
		if l.stopped {
			l.stopped = false
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		var tsp *unix.Timespec
		if dl, ok := l.nearestDeadline(); ok {
			d := time.Until(dl)
			if d < 0 {
				d = 0
			}
			ts := unix.NsecToTimespec(d.Nanoseconds())
			tsp = &ts
		}

		start := time.Now()
		n, err := unix.Kevent(l.kq, nil, events, tsp)
		l.mc.ObserveWait(time.Since(start))
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return sockerr.Wrap(err)
		}

		l.expireReceives(time.Now())

		for i := 0; i < n; i++ {
			ev := events[i]
			fd := int(ev.Ident)

			if fd == l.intr.fd() {
				l.intr.drain()
				continue
			}

			l.mu.Lock()
			s := l.socks[fd]
			l.mu.Unlock()
			if s == nil {
				continue
			}

			switch ev.Filter {
			case unix.EVFILT_READ:
				s.onReadable(ev)
			case unix.EVFILT_WRITE:
				s.onWritable(ev)
			}
		}
	}
}

func (l *bsdLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
	l.intr.wake()
}

func (l *bsdLoop) Reopen() error {
	kq, err := unix.Kqueue()
	if err != nil {
		return sockerr.Wrap(err)
	}
	unix.CloseOnExec(kq)
	l.kq = kq
	return l.registerRead(l.intr.fd())
}

// bsdSocket holds at most one pending send and one pending receive slot,
// each an opkind.Operation owned by the loop until its callback runs.
type bsdSocket struct {
	fd   int
	loop *bsdLoop
	opts Options

	mu    sync.Mutex
	state State
	local endpoint.Endpoint

	pendingSend  *opkind.Operation
	pendingRecv  *opkind.Operation
	recvDeadline time.Time
}

func (s *bsdSocket) fdLocked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fd
}

// ensureFd creates the kernel endpoint on first use and registers it with
// the loop's descriptor map. Caller holds s.mu.
func (s *bsdSocket) ensureFd(family int) error {
	if s.fd >= 0 {
		return nil
	}
	fd, err := newRawUDPFd(family, s.opts)
	if err != nil {
		return err
	}
	s.fd = fd
	s.state = StateOpened
	s.loop.mu.Lock()
	s.loop.socks[fd] = s
	s.loop.mu.Unlock()
	return nil
}

func (s *bsdSocket) Bind(ep endpoint.Endpoint) error {
	sa, err := toSockaddr(ep)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return sockerr.New(sockerr.KindClosed)
	}
	if err = s.ensureFd(familyOf(ep)); err != nil {
		return err
	}
	if berr := unix.Bind(s.fd, sa); berr != nil {
		return sockerr.Wrap(berr)
	}
	s.local = ep
	s.state = StateBound
	s.loop.lg.Debug("socket bound", logger.Fields{"endpoint": ep.String()})
	return nil
}

func (s *bsdSocket) Connect(ep endpoint.Endpoint) error {
	sa, err := toSockaddr(ep)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return sockerr.New(sockerr.KindClosed)
	}
	if err = s.ensureFd(familyOf(ep)); err != nil {
		return err
	}
	if cerr := unix.Connect(s.fd, sa); cerr != nil {
		return sockerr.Wrap(cerr)
	}
	s.state = StateConnected
	s.loop.lg.Debug("socket connected", logger.Fields{"peer": ep.String()})
	return nil
}

func (s *bsdSocket) AsyncSendTo(view buffer.View, dest endpoint.Endpoint, cb opkind.SendCallback) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindClosed)
	}
	if s.pendingSend != nil {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindInvalidState)
	}
	if err := s.ensureFd(familyOf(dest)); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pendingSend = opkind.NewSendTo(view, dest, cb)
	s.mu.Unlock()

	// Speculative attempt; success or hard failure is parked on the ready
	// queue, never delivered inline.
	err, n, wouldBlock := s.performSend()
	if wouldBlock {
		return s.loop.registerWrite(s.fdLocked())
	}
	s.loop.queueReady(func() { s.completeSend(err, n) })
	return nil
}

// performSend runs the non-blocking sendto against the pending slot.
func (s *bsdSocket) performSend() (err error, n int, wouldBlock bool) {
	s.mu.Lock()
	p := s.pendingSend
	fd := s.fd
	s.mu.Unlock()
	if p == nil {
		return nil, 0, false
	}

	sa, serr := toSockaddr(p.Dest)
	if serr != nil {
		return sockerr.New(sockerr.KindInvalidEndpoint), 0, false
	}

	serr = unix.Sendto(fd, p.Out.Bytes(), 0, sa)
	if serr == unix.EAGAIN || serr == unix.EWOULDBLOCK {
		return nil, 0, true
	}
	if serr != nil {
		return sockerr.Wrap(serr), 0, false
	}
	return nil, p.Out.Len(), false
}

func (s *bsdSocket) completeSend(err error, n int) {
	s.mu.Lock()
	p := s.pendingSend
	s.pendingSend = nil
	s.mu.Unlock()
	if p == nil {
		return
	}
	s.loop.mc.ObserveCompletion(opkind.KindSendTo, err)
	s.loop.lg.Trace("send complete", logger.Fields{"op": p.TraceID.String(), "bytes": n})
	p.CompleteSend(err, n)
}

func (s *bsdSocket) onWritable(ev unix.Kevent_t) {
	s.loop.unregisterWrite(s.fdLocked())
	if ev.Flags&(unix.EV_ERROR|unix.EV_EOF) != 0 {
		s.completeSend(sockerr.New(sockerr.KindSystem), 0)
		return
	}
	err, n, wouldBlock := s.performSend()
	if wouldBlock {
		_ = s.loop.registerWrite(s.fdLocked())
		return
	}
	s.completeSend(err, n)
}

func (s *bsdSocket) AsyncReceiveFrom(mut *buffer.Mutable, cb opkind.ReceiveCallback) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindClosed)
	}
	if s.pendingRecv != nil {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindInvalidState)
	}
	if err := s.ensureFd(unix.AF_INET6); err != nil {
		s.mu.Unlock()
		return err
	}
	s.pendingRecv = opkind.NewReceiveFrom(mut, cb)
	if s.opts.RecvTimeout > 0 {
		s.recvDeadline = time.Now().Add(s.opts.RecvTimeout)
	} else {
		s.recvDeadline = time.Time{}
	}
	s.mu.Unlock()

	err, n, peer, wouldBlock := s.performRecv()
	if wouldBlock {
		return s.loop.registerRead(s.fdLocked())
	}
	s.loop.queueReady(func() { s.completeRecv(err, n, peer) })
	return nil
}

// performRecv runs the non-blocking recvfrom against the pending slot,
// using MSG_TRUNC semantics to detect an over-long datagram.
func (s *bsdSocket) performRecv() (err error, n int, peer endpoint.Endpoint, wouldBlock bool) {
	s.mu.Lock()
	p := s.pendingRecv
	fd := s.fd
	s.mu.Unlock()
	if p == nil {
		return nil, 0, endpoint.Endpoint{}, false
	}

	rn, _, recvflags, from, rerr := unix.Recvmsg(fd, p.In.Bytes(), nil, 0)
	if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
		return nil, 0, endpoint.Endpoint{}, true
	}
	if rerr != nil {
		return sockerr.Wrap(rerr), 0, endpoint.Endpoint{}, false
	}

	peer = fromSockaddr(from)
	if rn > p.In.Cap() {
		rn = p.In.Cap()
	}
	p.In.SetValid(rn)
	if recvflags&unix.MSG_TRUNC != 0 {
		return sockerr.New(sockerr.KindMessageTruncated), rn, peer, false
	}
	return nil, rn, peer, false
}

func (s *bsdSocket) completeRecv(err error, n int, peer endpoint.Endpoint) {
	s.mu.Lock()
	p := s.pendingRecv
	s.pendingRecv = nil
	s.recvDeadline = time.Time{}
	s.mu.Unlock()
	if p == nil {
		return
	}
	s.loop.mc.ObserveCompletion(opkind.KindReceiveFrom, err)
	s.loop.lg.Trace("receive complete", logger.Fields{"op": p.TraceID.String(), "bytes": n})
	p.CompleteReceive(err, n, peer)
}

func (s *bsdSocket) onReadable(ev unix.Kevent_t) {
	if ev.Flags&unix.EV_ERROR != 0 {
		s.completeRecv(sockerr.New(sockerr.KindSystem), 0, endpoint.Endpoint{})
		return
	}
	err, n, peer, wouldBlock := s.performRecv()
	if wouldBlock {
		_ = s.loop.registerRead(s.fdLocked())
		return
	}
	s.loop.unregisterRead(s.fdLocked())
	s.completeRecv(err, n, peer)
}

func (s *bsdSocket) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	fd := s.fd
	s.fd = -1
	s.mu.Unlock()

	if fd >= 0 {
		s.loop.unregisterWrite(fd)
		s.loop.unregisterRead(fd)
		s.loop.mu.Lock()
		delete(s.loop.socks, fd)
		s.loop.mu.Unlock()
	}

	s.completeSend(sockerr.New(sockerr.KindCancelled), 0)
	s.completeRecv(sockerr.New(sockerr.KindCancelled), 0, endpoint.Endpoint{})

	if fd >= 0 {
		return sockerr.Wrap(unix.Close(fd))
	}
	return nil
}

func (s *bsdSocket) State() State { s.mu.Lock(); defer s.mu.Unlock(); return s.state }

func (s *bsdSocket) LocalEndpoint() endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}
