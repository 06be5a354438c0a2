//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

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

package socket

import (
	"golang.org/x/sys/unix"

	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/sockerr"
)

// toSockaddr converts an Endpoint to its native unix.Sockaddr, the last
// leg of the kernel-native address blob every Endpoint carries.
func toSockaddr(ep endpoint.Endpoint) (unix.Sockaddr, error) {
	switch ep.Family() {
	case endpoint.FamilyV4:
		var a unix.SockaddrInet4
		ip := ep.IP()
		copy(a.Addr[:], ip.To4())
		a.Port = int(ep.Port())
		return &a, nil
	case endpoint.FamilyV6:
		var a unix.SockaddrInet6
		ip := ep.IP()
		copy(a.Addr[:], ip.To16())
		a.Port = int(ep.Port())
		a.ZoneId = ep.Zone()
		return &a, nil
	default:
		return nil, sockerr.New(sockerr.KindInvalidEndpoint)
	}
}

// fromSockaddr is the inverse of toSockaddr, used to turn a kernel-filled
// peer address (recvfrom/recvmsg) back into an Endpoint.
func fromSockaddr(sa unix.Sockaddr) endpoint.Endpoint {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := make([]byte, 4)
		copy(ip, a.Addr[:])
		return endpoint.New(ip, uint16(a.Port))
	case *unix.SockaddrInet6:
		ip := make([]byte, 16)
		copy(ip, a.Addr[:])
		return endpoint.NewWithZone(ip, uint16(a.Port), a.ZoneId)
	default:
		return endpoint.Endpoint{}
	}
}

// newRawUDPFd creates a non-blocking datagram socket for family and applies
// the recognised socket options that map onto setsockopt.
func newRawUDPFd(family int, opts Options) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return -1, sockerr.Wrap(err)
	}

	if opts.ReuseAddress {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}
	if opts.Broadcast && family == unix.AF_INET {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	}
	if opts.RecvBufferBytes > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, opts.RecvBufferBytes)
	}
	if opts.SendBufferBytes > 0 {
		_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, opts.SendBufferBytes)
	}
	if opts.NoSigpipe {
		setNoSigpipe(fd)
	}

	return fd, nil
}

// familyOf picks the socket(2) address family for an endpoint's family,
// defaulting to AF_INET6 (dual-stack-capable) before a bind is known.
func familyOf(ep endpoint.Endpoint) int {
	if ep.Family() == endpoint.FamilyV4 {
		return unix.AF_INET
	}
	return unix.AF_INET6
}
