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
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"

	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/sockerr"
)

// cookieSecretLen is the size of the per-process random secret the server
// MACs peer addresses under.
const cookieSecretLen = 16

const (
	recordHeaderLen    = 13
	handshakeHeaderLen = 12

	contentTypeHandshake = 22

	handshakeClientHello       = 1
	handshakeHelloVerifyRequest = 3

	// hello_verify_request is pinned to DTLS 1.0 on the wire per RFC 6347.
	dtls10Major = 254
	dtls10Minor = 255
	dtls12Minor = 253
)

// cookieSecret is the keyed-hash secret of one listener process. Generated
// once at listener startup; rotation is the operator's business.
type cookieSecret [cookieSecretLen]byte

func newCookieSecret() (cookieSecret, error) {
	var s cookieSecret
	if _, err := rand.Read(s[:]); err != nil {
		return s, sockerr.New(sockerr.KindSystem, err)
	}
	return s, nil
}

// compute MACs the peer's address blob (family, address bytes, port) under
// the secret. The cookie is the MAC's natural output length, untruncated.
func (c cookieSecret) compute(peer endpoint.Endpoint) []byte {
	m := hmac.New(sha256.New, c[:])

	var blob [19]byte
	blob[0] = byte(peer.Family())
	copy(blob[1:17], peer.IP().To16())
	binary.BigEndian.PutUint16(blob[17:19], peer.Port())
	m.Write(blob[:])

	return m.Sum(nil)
}

// verify recomputes the peer's cookie and compares in constant time.
func (c cookieSecret) verify(peer endpoint.Endpoint, cookie []byte) bool {
	if len(cookie) == 0 {
		return false
	}
	return hmac.Equal(c.compute(peer), cookie)
}

// clientHello is the minimal parse of a first-flight DTLS handshake
// record: just enough to find the cookie and rebuild the hello without it.
type clientHello struct {
	recordVersion [2]byte
	sequence      [6]byte
	messageSeq    uint16

	// body offsets within the handshake body
	body   []byte
	cookie []byte
	// cookieOff is the offset of the cookie length byte within body.
	cookieOff int
}

// parseClientHello picks apart one datagram and returns its leading
// client-hello, or a handshake-failed error for anything else. Datagrams
// that are not handshake records are the common case on an open port and
// are reported, not logged.
func parseClientHello(p []byte) (*clientHello, error) {
	if len(p) < recordHeaderLen+handshakeHeaderLen {
		return nil, sockerr.New(sockerr.KindHandshakeFailed)
	}
	if p[0] != contentTypeHandshake {
		return nil, sockerr.New(sockerr.KindHandshakeFailed)
	}

	recLen := int(binary.BigEndian.Uint16(p[11:13]))
	if recordHeaderLen+recLen > len(p) {
		return nil, sockerr.New(sockerr.KindHandshakeFailed)
	}

	hs := p[recordHeaderLen : recordHeaderLen+recLen]
	if hs[0] != handshakeClientHello {
		return nil, sockerr.New(sockerr.KindHandshakeFailed)
	}

	fragLen := int(hs[9])<<16 | int(hs[10])<<8 | int(hs[11])
	if handshakeHeaderLen+fragLen > len(hs) {
		return nil, sockerr.New(sockerr.KindHandshakeFailed)
	}
	body := hs[handshakeHeaderLen : handshakeHeaderLen+fragLen]

	// client_version(2) random(32) session_id(1+n) cookie(1+n)
	off := 2 + 32
	if len(body) < off+1 {
		return nil, sockerr.New(sockerr.KindHandshakeFailed)
	}
	off += 1 + int(body[off])
	if len(body) < off+1 {
		return nil, sockerr.New(sockerr.KindHandshakeFailed)
	}
	cookieLen := int(body[off])
	if len(body) < off+1+cookieLen {
		return nil, sockerr.New(sockerr.KindHandshakeFailed)
	}

	ch := &clientHello{
		messageSeq: binary.BigEndian.Uint16(hs[4:6]),
		body:       body,
		cookie:     body[off+1 : off+1+cookieLen],
		cookieOff:  off,
	}
	copy(ch.recordVersion[:], p[1:3])
	copy(ch.sequence[:], p[5:11])
	return ch, nil
}

// stripCookie rebuilds the client-hello datagram with an empty cookie
// field, so the record engine behind the listener runs its own
// hello-verify exchange from a clean first flight: the listener's
// stateless check has already gated state allocation, and the engine's own
// exchange rides on top of it.
func stripCookie(p []byte, ch *clientHello) []byte {
	delta := len(ch.cookie)
	if delta == 0 {
		out := make([]byte, len(p))
		copy(out, p)
		return out
	}

	out := make([]byte, 0, len(p)-delta)
	recLen := int(binary.BigEndian.Uint16(p[11:13]))
	hs := p[recordHeaderLen : recordHeaderLen+recLen]

	out = append(out, p[:recordHeaderLen]...)
	binary.BigEndian.PutUint16(out[11:13], uint16(recLen-delta))

	hsStart := len(out)
	out = append(out, hs[:handshakeHeaderLen]...)
	bodyLen := len(ch.body) - delta
	out[hsStart+1] = byte(bodyLen >> 16)
	out[hsStart+2] = byte(bodyLen >> 8)
	out[hsStart+3] = byte(bodyLen)
	out[hsStart+9] = byte(bodyLen >> 16)
	out[hsStart+10] = byte(bodyLen >> 8)
	out[hsStart+11] = byte(bodyLen)

	out = append(out, ch.body[:ch.cookieOff]...)
	out = append(out, 0)
	out = append(out, ch.body[ch.cookieOff+1+delta:]...)
	return out
}

// buildHelloVerifyRequest encodes the server's stateless first reply: a
// hello-verify-request record echoing cookie, to be sent as one datagram.
func buildHelloVerifyRequest(cookie []byte, ch *clientHello) []byte {
	bodyLen := 2 + 1 + len(cookie)
	hsLen := handshakeHeaderLen + bodyLen
	out := make([]byte, recordHeaderLen+hsLen)

	out[0] = contentTypeHandshake
	out[1] = dtls10Major
	out[2] = dtls10Minor
	// epoch 0 (out[3:5]); record sequence mirrors the hello's
	copy(out[5:11], ch.sequence[:])
	binary.BigEndian.PutUint16(out[11:13], uint16(hsLen))

	hs := out[recordHeaderLen:]
	hs[0] = handshakeHelloVerifyRequest
	hs[1] = byte(bodyLen >> 16)
	hs[2] = byte(bodyLen >> 8)
	hs[3] = byte(bodyLen)
	binary.BigEndian.PutUint16(hs[4:6], ch.messageSeq)
	// fragment offset 0 (hs[6:9]); fragment length = body length
	hs[9] = byte(bodyLen >> 16)
	hs[10] = byte(bodyLen >> 8)
	hs[11] = byte(bodyLen)

	body := hs[handshakeHeaderLen:]
	body[0] = dtls10Major
	body[1] = dtls10Minor
	body[2] = byte(len(cookie))
	copy(body[3:], cookie)

	return out
}
