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

package socket

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/sockerr"
)

// toWinSockaddr converts an Endpoint to its native windows.Sockaddr.
func toWinSockaddr(ep endpoint.Endpoint) (windows.Sockaddr, error) {
	switch ep.Family() {
	case endpoint.FamilyV4:
		var a windows.SockaddrInet4
		copy(a.Addr[:], ep.IP().To4())
		a.Port = int(ep.Port())
		return &a, nil
	case endpoint.FamilyV6:
		var a windows.SockaddrInet6
		copy(a.Addr[:], ep.IP().To16())
		a.Port = int(ep.Port())
		a.ZoneId = ep.Zone()
		return &a, nil
	default:
		return nil, sockerr.New(sockerr.KindInvalidEndpoint)
	}
}

// fromRawWinSockaddr turns the kernel-filled peer blob of a WSARecvFrom
// back into an Endpoint.
func fromRawWinSockaddr(rsa *windows.RawSockaddrAny) endpoint.Endpoint {
	switch rsa.Addr.Family {
	case windows.AF_INET:
		sa := (*windows.RawSockaddrInet4)(unsafe.Pointer(rsa))
		p := (*[2]byte)(unsafe.Pointer(&sa.Port))
		port := uint16(p[0])<<8 | uint16(p[1])
		ip := make([]byte, 4)
		copy(ip, sa.Addr[:])
		return endpoint.New(ip, port)
	case windows.AF_INET6:
		sa := (*windows.RawSockaddrInet6)(unsafe.Pointer(rsa))
		p := (*[2]byte)(unsafe.Pointer(&sa.Port))
		port := uint16(p[0])<<8 | uint16(p[1])
		ip := make([]byte, 16)
		copy(ip, sa.Addr[:])
		return endpoint.NewWithZone(ip, port, sa.Scope_id)
	default:
		return endpoint.Endpoint{}
	}
}

// winFamilyOf picks the Winsock address family for an endpoint's family.
func winFamilyOf(ep endpoint.Endpoint) int32 {
	if ep.Family() == endpoint.FamilyV4 {
		return windows.AF_INET
	}
	return windows.AF_INET6
}

// newWinUDPSocket creates an overlapped datagram socket for family and
// applies the recognised socket options that map onto setsockopt.
func newWinUDPSocket(family int32, opts Options) (windows.Handle, error) {
	h, err := windows.WSASocket(family, windows.SOCK_DGRAM, windows.IPPROTO_UDP,
		nil, 0, windows.WSA_FLAG_OVERLAPPED)
	if err != nil {
		return windows.InvalidHandle, sockerr.Wrap(err)
	}

	if opts.ReuseAddress {
		_ = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	}
	if opts.Broadcast && family == windows.AF_INET {
		_ = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_BROADCAST, 1)
	}
	if opts.RecvBufferBytes > 0 {
		_ = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_RCVBUF, opts.RecvBufferBytes)
	}
	if opts.SendBufferBytes > 0 {
		_ = windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_SNDBUF, opts.SendBufferBytes)
	}

	return h, nil
}
