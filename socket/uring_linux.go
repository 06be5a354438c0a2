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

// Raw io_uring plumbing for the Linux backend: setup/enter syscalls, the
// mmap'd submission and completion rings, and the SQE/CQE layouts. The
// loop in loop_linux.go is the only consumer.
package socket

import (
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/sabouaram/dgramrt/sockerr"
)

const (
	opNOP         = 0
	opSENDMSG     = 9
	opRECVMSG     = 10
	opASYNCCANCEL = 14
	opLINKTIMEOUT = 15

	sqeFlagIOLink = 1 << 2 // IOSQE_IO_LINK

	enterGetEvents = 1 << 0 // IORING_ENTER_GETEVENTS

	featSingleMmap = 1 << 0 // IORING_FEAT_SINGLE_MMAP

	offSqRing = 0
	offSqes   = 0x10000000
)

type sqringOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	resv2       uint64
}

type cqringOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint64
	resv1       uint32
	resv2       uint64
}

type uringParams struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        sqringOffsets
	cqOff        cqringOffsets
}

// uringSqe mirrors struct io_uring_sqe (64 bytes).
type uringSqe struct {
	opcode      uint8
	flags       uint8
	ioprio      uint16
	fd          int32
	off         uint64
	addr        uint64
	len         uint32
	opFlags     uint32 // msg_flags / timeout_flags / cancel_flags union
	userData    uint64
	bufIndex    uint16
	personality uint16
	spliceFdIn  int32
	pad         [2]uint64
}

// uringCqe mirrors struct io_uring_cqe (16 bytes).
type uringCqe struct {
	userData uint64
	res      int32
	flags    uint32
}

type uring struct {
	fd      int
	ringMem []byte
	sqeMem  []byte

	sqHead    *uint32
	sqTail    *uint32
	sqMask    uint32
	sqArray   []uint32
	sqes      []uringSqe

	cqHead *uint32
	cqTail *uint32
	cqMask uint32
	cqes   []uringCqe
}

func uringSetup(entries uint32, p *uringParams) (int, error) {
	r1, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP,
		uintptr(entries), uintptr(unsafe.Pointer(p)), 0)
	if errno != 0 {
		return -1, errno
	}
	return int(r1), nil
}

func uringEnter(fd int, toSubmit, minComplete, flags uint32) (int, unix.Errno) {
	r1, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER,
		uintptr(fd), uintptr(toSubmit), uintptr(minComplete), uintptr(flags), 0, 0)
	return int(r1), errno
}

// newUring sets up a ring of the given entry count and maps both rings.
// Requires a kernel reporting IORING_FEAT_SINGLE_MMAP (5.4+).
func newUring(entries uint32) (*uring, error) {
	var p uringParams
	fd, err := uringSetup(entries, &p)
	if err != nil {
		return nil, sockerr.Wrap(err)
	}

	if p.features&featSingleMmap == 0 {
		_ = unix.Close(fd)
		return nil, sockerr.New(sockerr.KindSystem)
	}

	r := &uring{fd: fd}

	sqSize := p.sqOff.array + p.sqEntries*4
	cqSize := p.cqOff.cqes + p.cqEntries*uint32(unsafe.Sizeof(uringCqe{}))
	ringSize := sqSize
	if cqSize > ringSize {
		ringSize = cqSize
	}

	r.ringMem, err = unix.Mmap(fd, offSqRing, int(ringSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Close(fd)
		return nil, sockerr.Wrap(err)
	}

	sqeSize := p.sqEntries * uint32(unsafe.Sizeof(uringSqe{}))
	r.sqeMem, err = unix.Mmap(fd, offSqes, int(sqeSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(r.ringMem)
		_ = unix.Close(fd)
		return nil, sockerr.Wrap(err)
	}

	r.sqHead = (*uint32)(unsafe.Pointer(&r.ringMem[p.sqOff.head]))
	r.sqTail = (*uint32)(unsafe.Pointer(&r.ringMem[p.sqOff.tail]))
	r.sqMask = *(*uint32)(unsafe.Pointer(&r.ringMem[p.sqOff.ringMask]))
	r.sqArray = unsafe.Slice((*uint32)(unsafe.Pointer(&r.ringMem[p.sqOff.array])), p.sqEntries)
	r.sqes = unsafe.Slice((*uringSqe)(unsafe.Pointer(&r.sqeMem[0])), p.sqEntries)

	r.cqHead = (*uint32)(unsafe.Pointer(&r.ringMem[p.cqOff.head]))
	r.cqTail = (*uint32)(unsafe.Pointer(&r.ringMem[p.cqOff.tail]))
	r.cqMask = *(*uint32)(unsafe.Pointer(&r.ringMem[p.cqOff.ringMask]))
	r.cqes = unsafe.Slice((*uringCqe)(unsafe.Pointer(&r.ringMem[p.cqOff.cqes])), p.cqEntries)

	return r, nil
}

// peekSqe returns the next free submission entry, zeroed, or nil when the
// ring is full. The caller fills it and calls pushSqe.
func (r *uring) peekSqe() *uringSqe {
	tail := atomic.LoadUint32(r.sqTail)
	head := atomic.LoadUint32(r.sqHead)
	if tail-head >= uint32(len(r.sqes)) {
		return nil
	}
	idx := tail & r.sqMask
	sqe := &r.sqes[idx]
	*sqe = uringSqe{}
	r.sqArray[idx] = idx
	return sqe
}

// pushSqe publishes the last peeked entry to the kernel side of the ring.
func (r *uring) pushSqe() {
	atomic.AddUint32(r.sqTail, 1)
}

// submit tells the kernel about every published-but-unsubmitted entry. It
// is safe (and expected) to be called more than once per Run iteration.
func (r *uring) submit() error {
	pending := atomic.LoadUint32(r.sqTail) - atomic.LoadUint32(r.sqHead)
	if pending == 0 {
		return nil
	}
	for {
		_, errno := uringEnter(r.fd, pending, 0, 0)
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return sockerr.Wrap(errno)
		}
		return nil
	}
}

// waitCqe blocks until at least one completion is available, then returns
// a copy of it and consumes the ring slot.
func (r *uring) waitCqe() (uringCqe, error) {
	for {
		head := atomic.LoadUint32(r.cqHead)
		tail := atomic.LoadUint32(r.cqTail)
		if head != tail {
			cqe := r.cqes[head&r.cqMask]
			atomic.AddUint32(r.cqHead, 1)
			return cqe, nil
		}
		_, errno := uringEnter(r.fd, 0, 1, enterGetEvents)
		if errno == unix.EINTR || errno == unix.EAGAIN {
			continue
		}
		if errno != 0 {
			return uringCqe{}, sockerr.Wrap(errno)
		}
	}
}

// peekCqe consumes one completion without blocking; ok reports whether one
// was available.
func (r *uring) peekCqe() (uringCqe, bool) {
	head := atomic.LoadUint32(r.cqHead)
	tail := atomic.LoadUint32(r.cqTail)
	if head == tail {
		return uringCqe{}, false
	}
	cqe := r.cqes[head&r.cqMask]
	atomic.AddUint32(r.cqHead, 1)
	return cqe, true
}

func (r *uring) close() {
	if r.sqeMem != nil {
		_ = unix.Munmap(r.sqeMem)
	}
	if r.ringMem != nil {
		_ = unix.Munmap(r.ringMem)
	}
	_ = unix.Close(r.fd)
}
