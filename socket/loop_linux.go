//go:build linux

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

// Submission/completion-ring backend: every operation becomes one SENDMSG
// or RECVMSG submission entry carrying the operation id as user-data; the
// loop harvests completion entries and maps negative results to the error
// taxonomy.
package socket

import (
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/dgramrt/buffer"
	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/logger"
	"github.com/sabouaram/dgramrt/metrics"
	"github.com/sabouaram/dgramrt/opkind"
	"github.com/sabouaram/dgramrt/sockerr"
)

const uringEntries = 256

type linuxLoop struct {
	ring *uring
	lg   logger.Logger
	mc   *metrics.Collector

	mu      sync.Mutex
	stopped bool
	nextID  uint64
	pending map[uint64]*uringOp
}

func newLoop(lg logger.Logger, mc *metrics.Collector) (EventLoop, error) {
	r, err := newUring(uringEntries)
	if err != nil {
		return nil, err
	}
	lg.Debug("io_uring backend ready", logger.Fields{"entries": uringEntries})
	return &linuxLoop{
		ring:    r,
		lg:      lg,
		mc:      mc,
		nextID:  1,
		pending: map[uint64]*uringOp{},
	}, nil
}

// uringOp wraps one opkind.Operation with everything the kernel
// dereferences while the submission is in flight: the message header, the
// io vector, the raw peer address and the linked-timeout timespec all live
// here, reachable from the pending map until the completion entry is
// harvested.
type uringOp struct {
	*opkind.Operation

	id   uint64
	sock *linuxSocket
	done bool

	msg     unix.Msghdr
	iov     unix.Iovec
	rsa     unix.RawSockaddrAny
	rsaLen  uint32
	ts      unix.Timespec
	timeout bool
}

func (l *linuxLoop) CreateUDPSocket(opts Options) (UDPSocket, error) {
	return &linuxSocket{loop: l, opts: opts, fd: -1}, nil
}

func (l *linuxLoop) Run() error {
	for {
		l.mu.Lock()
		if l.stopped {
			l.stopped = false
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		start := time.Now()
		cqe, err := l.ring.waitCqe()
		l.mc.ObserveWait(time.Since(start))
		if err != nil {
			return err
		}

		l.dispatch(cqe)
		for {
			next, ok := l.ring.peekCqe()
			if !ok {
				break
			}
			l.dispatch(next)
		}
	}
}

func (l *linuxLoop) dispatch(cqe uringCqe) {
	if cqe.userData == 0 {
		// stop sentinel (NOP); the running-flag check at the loop top exits.
		return
	}
	if cqe.userData&1 == 1 {
		// bookkeeping completion of a linked timeout entry
		return
	}

	id := cqe.userData >> 1
	l.mu.Lock()
	op := l.pending[id]
	delete(l.pending, id)
	l.mu.Unlock()

	if op == nil || op.done {
		return
	}
	op.sock.finish(op, cqe.res)
}

func (l *linuxLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	sqe := l.ring.peekSqe()
	if sqe == nil {
		_ = l.ring.submit()
		sqe = l.ring.peekSqe()
	}
	if sqe != nil {
		sqe.opcode = opNOP
		sqe.userData = 0
		l.ring.pushSqe()
		_ = l.ring.submit()
	}
	l.mu.Unlock()
}

// Reopen is a no-op on this backend: ring file descriptors are not carried
// across a fork here; a child recreates the whole loop.
func (l *linuxLoop) Reopen() error { return nil }

// enqueue allocates an id, parks op in the pending set and publishes its
// submission entry (plus a linked timeout entry when armed). Caller holds
// no locks.
func (l *linuxLoop) enqueue(op *uringOp, fill func(sqe *uringSqe)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	sqe := l.ring.peekSqe()
	if sqe == nil {
		if err := l.ring.submit(); err != nil {
			return err
		}
		if sqe = l.ring.peekSqe(); sqe == nil {
			return sockerr.New(sockerr.KindSystem)
		}
	}

	op.id = l.nextID
	l.nextID++
	l.pending[op.id] = op

	fill(sqe)
	sqe.userData = op.id << 1
	if op.timeout {
		sqe.flags |= sqeFlagIOLink
	}
	l.ring.pushSqe()

	if op.timeout {
		tsqe := l.ring.peekSqe()
		if tsqe != nil {
			tsqe.opcode = opLINKTIMEOUT
			tsqe.addr = uint64(uintptr(unsafe.Pointer(&op.ts)))
			tsqe.len = 1
			tsqe.userData = op.id<<1 | 1
			l.ring.pushSqe()
		}
	}

	return l.ring.submit()
}

type linuxSocket struct {
	loop *linuxLoop
	opts Options

	mu     sync.Mutex
	fd     int
	state  State
	local  endpoint.Endpoint
	sendOp *uringOp
	recvOp *uringOp
}

// ensureFd creates the kernel endpoint on first use, when the address
// family is finally known.
func (s *linuxSocket) ensureFd(family int) error {
	if s.fd >= 0 {
		return nil
	}
	fd, err := newRawUDPFd(family, s.opts)
	if err != nil {
		return err
	}
	s.fd = fd
	s.state = StateOpened
	return nil
}

func (s *linuxSocket) Bind(ep endpoint.Endpoint) error {
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

func (s *linuxSocket) Connect(ep endpoint.Endpoint) error {
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

func (s *linuxSocket) AsyncSendTo(view buffer.View, dest endpoint.Endpoint, cb opkind.SendCallback) error {
	op := &uringOp{Operation: opkind.NewSendTo(view, dest, cb), sock: s}

	n, err := packSockaddr(dest, &op.rsa)
	if err != nil {
		return err
	}
	op.rsaLen = n

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindClosed)
	}
	if s.sendOp != nil {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindInvalidState)
	}
	if err = s.ensureFd(familyOf(dest)); err != nil {
		s.mu.Unlock()
		return err
	}
	fd := s.fd
	s.sendOp = op
	s.mu.Unlock()

	if view.Len() > 0 {
		op.iov.Base = &view.Bytes()[0]
		op.iov.SetLen(view.Len())
	}
	op.msg.Name = (*byte)(unsafe.Pointer(&op.rsa))
	op.msg.Namelen = op.rsaLen
	op.msg.Iov = &op.iov
	op.msg.SetIovlen(1)

	err = s.loop.enqueue(op, func(sqe *uringSqe) {
		sqe.opcode = opSENDMSG
		sqe.fd = int32(fd)
		sqe.addr = uint64(uintptr(unsafe.Pointer(&op.msg)))
		sqe.len = 1
		sqe.opFlags = unix.MSG_NOSIGNAL
	})
	if err != nil {
		s.mu.Lock()
		s.sendOp = nil
		s.mu.Unlock()
	}
	return err
}

func (s *linuxSocket) AsyncReceiveFrom(mut *buffer.Mutable, cb opkind.ReceiveCallback) error {
	op := &uringOp{Operation: opkind.NewReceiveFrom(mut, cb), sock: s}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindClosed)
	}
	if s.recvOp != nil {
		s.mu.Unlock()
		return sockerr.New(sockerr.KindInvalidState)
	}
	if err := s.ensureFd(unix.AF_INET6); err != nil {
		s.mu.Unlock()
		return err
	}
	fd := s.fd
	if s.opts.RecvTimeout > 0 {
		op.timeout = true
		op.ts = unix.NsecToTimespec(s.opts.RecvTimeout.Nanoseconds())
	}
	s.recvOp = op
	s.mu.Unlock()

	if mut.Cap() > 0 {
		op.iov.Base = &mut.Bytes()[0]
		op.iov.SetLen(mut.Cap())
	}
	op.msg.Name = (*byte)(unsafe.Pointer(&op.rsa))
	op.msg.Namelen = unix.SizeofSockaddrAny
	op.msg.Iov = &op.iov
	op.msg.SetIovlen(1)

	err := s.loop.enqueue(op, func(sqe *uringSqe) {
		sqe.opcode = opRECVMSG
		sqe.fd = int32(fd)
		sqe.addr = uint64(uintptr(unsafe.Pointer(&op.msg)))
		sqe.len = 1
	})
	if err != nil {
		s.mu.Lock()
		s.recvOp = nil
		s.mu.Unlock()
	}
	return err
}

// finish maps one completion-ring result onto the operation's callback,
// running on the loop goroutine.
func (s *linuxSocket) finish(op *uringOp, res int32) {
	s.mu.Lock()
	switch op.Kind {
	case opkind.KindSendTo:
		if s.sendOp == op {
			s.sendOp = nil
		}
	case opkind.KindReceiveFrom:
		if s.recvOp == op {
			s.recvOp = nil
		}
	}
	s.mu.Unlock()

	var err error
	n := 0
	peer := endpoint.Endpoint{}

	if res < 0 {
		errno := unix.Errno(-res)
		if errno == unix.ECANCELED && op.timeout {
			err = sockerr.New(sockerr.KindTimedOut, errno)
		} else {
			err = sockerr.Wrap(errno)
		}
	} else {
		n = int(res)
		if op.Kind == opkind.KindReceiveFrom {
			op.In.SetValid(n)
			peer = unpackSockaddr(&op.rsa)
			if op.msg.Flags&unix.MSG_TRUNC != 0 {
				err = sockerr.New(sockerr.KindMessageTruncated)
			}
		}
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

func (s *linuxSocket) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	fd := s.fd
	s.fd = -1
	sendOp := s.sendOp
	recvOp := s.recvOp
	s.sendOp = nil
	s.recvOp = nil
	s.mu.Unlock()

	s.loop.mu.Lock()
	for _, op := range []*uringOp{sendOp, recvOp} {
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

	if fd >= 0 {
		return sockerr.Wrap(unix.Close(fd))
	}
	return nil
}

func (s *linuxSocket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *linuxSocket) LocalEndpoint() endpoint.Endpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// packSockaddr fills rsa with ep's native blob and returns its length.
func packSockaddr(ep endpoint.Endpoint, rsa *unix.RawSockaddrAny) (uint32, error) {
	switch ep.Family() {
	case endpoint.FamilyV4:
		sa := (*unix.RawSockaddrInet4)(unsafe.Pointer(rsa))
		sa.Family = unix.AF_INET
		p := (*[2]byte)(unsafe.Pointer(&sa.Port))
		p[0] = byte(ep.Port() >> 8)
		p[1] = byte(ep.Port())
		copy(sa.Addr[:], ep.IP().To4())
		return unix.SizeofSockaddrInet4, nil
	case endpoint.FamilyV6:
		sa := (*unix.RawSockaddrInet6)(unsafe.Pointer(rsa))
		sa.Family = unix.AF_INET6
		p := (*[2]byte)(unsafe.Pointer(&sa.Port))
		p[0] = byte(ep.Port() >> 8)
		p[1] = byte(ep.Port())
		sa.Scope_id = ep.Zone()
		copy(sa.Addr[:], ep.IP().To16())
		return unix.SizeofSockaddrInet6, nil
	default:
		return 0, sockerr.New(sockerr.KindInvalidEndpoint)
	}
}

// unpackSockaddr is the inverse of packSockaddr for kernel-filled peers.
func unpackSockaddr(rsa *unix.RawSockaddrAny) endpoint.Endpoint {
	switch rsa.Addr.Family {
	case unix.AF_INET:
		sa := (*unix.RawSockaddrInet4)(unsafe.Pointer(rsa))
		p := (*[2]byte)(unsafe.Pointer(&sa.Port))
		port := uint16(p[0])<<8 | uint16(p[1])
		ip := make([]byte, 4)
		copy(ip, sa.Addr[:])
		return endpoint.New(ip, port)
	case unix.AF_INET6:
		sa := (*unix.RawSockaddrInet6)(unsafe.Pointer(rsa))
		p := (*[2]byte)(unsafe.Pointer(&sa.Port))
		port := uint16(p[0])<<8 | uint16(p[1])
		ip := make([]byte, 16)
		copy(ip, sa.Addr[:])
		return endpoint.NewWithZone(ip, port, sa.Scope_id)
	default:
		return endpoint.Endpoint{}
	}
}
