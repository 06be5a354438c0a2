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

package endpoint

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sabouaram/dgramrt/sockerr"
)

// netInterfaceByName resolves an IPv6 zone name (e.g. "eth0") to its
// numeric interface index, falling back to parsing a purely numeric zone
// (some platforms hand back the index itself as the zone string).
func netInterfaceByName(name string) (int, error) {
	if n, err := strconv.Atoi(name); err == nil {
		return n, nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return 0, err
	}
	return iface.Index, nil
}

// zoneName renders a numeric zone id back to the string form net.UDPAddr
// expects. Interfaces are looked up by index; an unresolvable index is
// rendered as its decimal form, which net still accepts on most platforms.
func zoneName(zone uint32) string {
	if iface, err := net.InterfaceByIndex(int(zone)); err == nil {
		return iface.Name
	}
	return strconv.FormatUint(uint64(zone), 10)
}

// ParseString parses one of the endpoint string forms into an Endpoint:
//
//	a.b.c.d:port       dotted-quad IPv4 with port
//	[addr]:port        bracketed IPv6 (optionally zoned) with port
//	[addr%zone]:port   zoned IPv6 with port
//
// A bare address with no port (no colon-delimited suffix) is rejected: the
// runtime always binds/connects to a (address, port) pair.
func ParseString(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, sockerr.New(sockerr.KindInvalidEndpoint, fmt.Errorf("endpoint: %s: %w", s, err))
	}

	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Endpoint{}, sockerr.New(sockerr.KindInvalidEndpoint, fmt.Errorf("endpoint: bad port %q: %w", portStr, err))
	}

	zoneStr := ""
	if i := strings.IndexByte(host, '%'); i >= 0 {
		zoneStr = host[i+1:]
		host = host[:i]
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return Endpoint{}, sockerr.New(sockerr.KindInvalidEndpoint, fmt.Errorf("endpoint: bad address %q", host))
	}

	var zone uint32
	if zoneStr != "" {
		z, zerr := netInterfaceByName(zoneStr)
		if zerr != nil {
			return Endpoint{}, sockerr.New(sockerr.KindInvalidEndpoint, fmt.Errorf("endpoint: bad zone %q: %w", zoneStr, zerr))
		}
		zone = uint32(z)
	}

	e := NewWithZone(ip, uint16(port), zone)
	if !e.IsValid() {
		return Endpoint{}, sockerr.New(sockerr.KindInvalidEndpoint, fmt.Errorf("endpoint: unresolvable family for %q", host))
	}
	return e, nil
}

// String renders e back into one of the forms ParseString accepts.
func (e Endpoint) String() string {
	if !e.IsValid() {
		return "<invalid-endpoint>"
	}

	host := e.IP().String()
	if e.family == FamilyV6 && e.zone != 0 {
		host = host + "%" + zoneName(e.zone)
	}

	return net.JoinHostPort(host, strconv.FormatUint(uint64(e.port), 10))
}
