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
	"encoding/binary"
	"net"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/dgramrt/endpoint"
)

func TestDTLS(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "dtls Suite")
}

// makeHello builds a minimal, well-formed DTLS client-hello datagram with
// the given cookie.
func makeHello(cookie []byte) []byte {
	sessionID := []byte{}
	body := make([]byte, 0, 64)
	body = append(body, dtls10Major, dtls12Minor) // client_version
	body = append(body, make([]byte, 32)...)      // random
	body = append(body, byte(len(sessionID)))
	body = append(body, sessionID...)
	body = append(body, byte(len(cookie)))
	body = append(body, cookie...)
	body = append(body, 0, 2, 0x13, 0x01) // one cipher suite
	body = append(body, 1, 0)             // null compression

	hs := make([]byte, handshakeHeaderLen, handshakeHeaderLen+len(body))
	hs[0] = handshakeClientHello
	hs[1] = byte(len(body) >> 16)
	hs[2] = byte(len(body) >> 8)
	hs[3] = byte(len(body))
	// message_seq 0, frag_offset 0
	hs[9] = byte(len(body) >> 16)
	hs[10] = byte(len(body) >> 8)
	hs[11] = byte(len(body))
	hs = append(hs, body...)

	rec := make([]byte, recordHeaderLen, recordHeaderLen+len(hs))
	rec[0] = contentTypeHandshake
	rec[1] = dtls10Major
	rec[2] = dtls10Minor
	binary.BigEndian.PutUint16(rec[11:13], uint16(len(hs)))
	rec = append(rec, hs...)
	return rec
}

var _ = Describe("[TC-COO] Stateless cookie exchange", func() {
	peer := endpoint.New(net.ParseIP("192.0.2.7"), 40001)
	other := endpoint.New(net.ParseIP("192.0.2.8"), 40001)

	It("[TC-COO-001] cookies are deterministic per peer and secret", func() {
		s, err := newCookieSecret()
		Expect(err).ToNot(HaveOccurred())
		Expect(s.compute(peer)).To(Equal(s.compute(peer)))
		Expect(s.compute(peer)).ToNot(Equal(s.compute(other)))
	})

	It("[TC-COO-002] a different port changes the cookie", func() {
		s, _ := newCookieSecret()
		p2 := endpoint.New(net.ParseIP("192.0.2.7"), 40002)
		Expect(s.compute(peer)).ToNot(Equal(s.compute(p2)))
	})

	It("[TC-COO-003] verify accepts only a recomputing cookie", func() {
		s, _ := newCookieSecret()
		c := s.compute(peer)
		Expect(s.verify(peer, c)).To(BeTrue())
		Expect(s.verify(other, c)).To(BeFalse())
		Expect(s.verify(peer, nil)).To(BeFalse())
		c[0] ^= 0xff
		Expect(s.verify(peer, c)).To(BeFalse())
	})

	It("[TC-COO-004] parses a cookieless client-hello", func() {
		ch, err := parseClientHello(makeHello(nil))
		Expect(err).ToNot(HaveOccurred())
		Expect(ch.cookie).To(BeEmpty())
	})

	It("[TC-COO-005] parses the echoed cookie back out", func() {
		cookie := []byte("0123456789abcdef0123456789abcdef")
		ch, err := parseClientHello(makeHello(cookie))
		Expect(err).ToNot(HaveOccurred())
		Expect(ch.cookie).To(Equal(cookie))
	})

	It("[TC-COO-006] rejects non-handshake datagrams", func() {
		_, err := parseClientHello([]byte("ping"))
		Expect(err).To(HaveOccurred())
		app := makeHello(nil)
		app[0] = 23 // application_data
		_, err = parseClientHello(app)
		Expect(err).To(HaveOccurred())
	})

	It("[TC-COO-007] hello-verify-request echoes the cookie verbatim", func() {
		s, _ := newCookieSecret()
		cookie := s.compute(peer)
		ch, _ := parseClientHello(makeHello(nil))
		hvr := buildHelloVerifyRequest(cookie, ch)

		Expect(hvr[0]).To(Equal(byte(contentTypeHandshake)))
		Expect(hvr[recordHeaderLen]).To(Equal(byte(handshakeHelloVerifyRequest)))
		body := hvr[recordHeaderLen+handshakeHeaderLen:]
		Expect(int(body[2])).To(Equal(len(cookie)))
		Expect(body[3 : 3+len(cookie)]).To(Equal(cookie))
	})

	It("[TC-COO-008] stripCookie yields a hello that reparses cookieless", func() {
		cookie := []byte("0123456789abcdef0123456789abcdef")
		raw := makeHello(cookie)
		ch, err := parseClientHello(raw)
		Expect(err).ToNot(HaveOccurred())

		stripped := stripCookie(raw, ch)
		Expect(len(stripped)).To(Equal(len(raw) - len(cookie)))

		ch2, err := parseClientHello(stripped)
		Expect(err).ToNot(HaveOccurred())
		Expect(ch2.cookie).To(BeEmpty())
	})
})
