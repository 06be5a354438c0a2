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

// Package endpoint holds the runtime's (address, port) value type.
//
// An Endpoint is a plain value: it is trivially copyable, immutable once
// built, and carries enough information for every backend to round-trip it
// through its native address blob (sockaddr_in / sockaddr_in6 on unix,
// SOCKADDR_STORAGE on Windows) without the caller ever seeing that blob.
package endpoint

import (
	"net"
)

// Family discriminates the address kind carried by an Endpoint.
type Family uint8

const (
	// FamilyUnspecified marks a zero-value Endpoint.
	FamilyUnspecified Family = iota
	// FamilyV4 marks a 4-byte IPv4 address.
	FamilyV4
	// FamilyV6 marks a 16-byte IPv6 address, with an optional scope/zone id.
	FamilyV6
)

func (f Family) String() string {
	switch f {
	case FamilyV4:
		return "ipv4"
	case FamilyV6:
		return "ipv6"
	default:
		return "unspecified"
	}
}

// Endpoint is an immutable (family, address, port, zone) value.
//
// Port is always host byte order at this API; each backend is responsible
// for converting to/from network byte order when it fills its native
// address blob.
type Endpoint struct {
	family Family
	addr   [16]byte // low 4 bytes significant for FamilyV4
	port   uint16
	zone   uint32 // IPv6 scope id, 0 for FamilyV4 or unscoped FamilyV6
}

// New builds an Endpoint from a net.IP and port. The family is inferred
// from the shape of ip (To4 succeeding selects FamilyV4).
func New(ip net.IP, port uint16) Endpoint {
	return NewWithZone(ip, port, 0)
}

// NewWithZone builds an Endpoint carrying an explicit IPv6 zone/scope id.
// zone is ignored for an IPv4 address.
func NewWithZone(ip net.IP, port uint16, zone uint32) Endpoint {
	var e Endpoint
	e.port = port

	if v4 := ip.To4(); v4 != nil {
		e.family = FamilyV4
		copy(e.addr[:4], v4)
		return e
	}

	if v6 := ip.To16(); v6 != nil {
		e.family = FamilyV6
		copy(e.addr[:16], v6)
		e.zone = zone
		return e
	}

	e.family = FamilyUnspecified
	return e
}

// Family returns the address family of e.
func (e Endpoint) Family() Family { return e.family }

// Port returns the port, host byte order.
func (e Endpoint) Port() uint16 { return e.port }

// Zone returns the IPv6 scope id, or 0 if unscoped / not IPv6.
func (e Endpoint) Zone() uint32 { return e.zone }

// IsValid reports whether e carries a recognised family.
func (e Endpoint) IsValid() bool { return e.family == FamilyV4 || e.family == FamilyV6 }

// IP returns the address as a net.IP. The returned slice is a fresh copy.
func (e Endpoint) IP() net.IP {
	switch e.family {
	case FamilyV4:
		ip := make(net.IP, 4)
		copy(ip, e.addr[:4])
		return ip
	case FamilyV6:
		ip := make(net.IP, 16)
		copy(ip, e.addr[:16])
		return ip
	default:
		return nil
	}
}

// UDPAddr returns e as a *net.UDPAddr, for call sites that bridge into
// net/stdlib helpers (e.g. constructing a native address blob).
func (e Endpoint) UDPAddr() *net.UDPAddr {
	a := &net.UDPAddr{IP: e.IP(), Port: int(e.port)}
	if e.family == FamilyV6 && e.zone != 0 {
		a.Zone = zoneName(e.zone)
	}
	return a
}

// FromUDPAddr builds an Endpoint from a *net.UDPAddr as returned by the
// standard library's address resolution helpers.
func FromUDPAddr(a *net.UDPAddr) Endpoint {
	if a == nil {
		return Endpoint{}
	}
	var zone uint32
	if a.Zone != "" {
		if iface, err := netInterfaceByName(a.Zone); err == nil {
			zone = uint32(iface)
		}
	}
	return NewWithZone(a.IP, uint16(a.Port), zone)
}

// Equal reports whether e and o carry the same family, address, port and
// zone.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.family == o.family && e.addr == o.addr && e.port == o.port && e.zone == o.zone
}
