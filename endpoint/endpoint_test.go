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

package endpoint_test

import (
	"net"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/sockerr"
)

func TestEndpoint(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "endpoint Suite")
}

var _ = Describe("[TC-EPT] Endpoint string forms", func() {
	It("[TC-EPT-001] parses a dotted-quad IPv4 endpoint", func() {
		e, err := endpoint.ParseString("127.0.0.1:4433")
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Family()).To(Equal(endpoint.FamilyV4))
		Expect(e.Port()).To(Equal(uint16(4433)))
		Expect(e.IP().Equal(net.ParseIP("127.0.0.1"))).To(BeTrue())
	})

	It("[TC-EPT-002] parses a bracketed IPv6 endpoint", func() {
		e, err := endpoint.ParseString("[::1]:443")
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Family()).To(Equal(endpoint.FamilyV6))
		Expect(e.Port()).To(Equal(uint16(443)))
	})

	It("[TC-EPT-003] parses a zoned link-local IPv6 endpoint", func() {
		e, err := endpoint.ParseString("[fe80::1%1]:9000")
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Family()).To(Equal(endpoint.FamilyV6))
		Expect(e.Zone()).To(Equal(uint32(1)))
	})

	It("[TC-EPT-004] rejects a missing port", func() {
		_, err := endpoint.ParseString("127.0.0.1")
		Expect(err).To(HaveOccurred())
		Expect(sockerr.Is(err, sockerr.KindInvalidEndpoint)).To(BeTrue())
	})

	It("[TC-EPT-005] rejects a malformed address", func() {
		_, err := endpoint.ParseString("not-an-ip:80")
		Expect(err).To(HaveOccurred())
		Expect(sockerr.Is(err, sockerr.KindInvalidEndpoint)).To(BeTrue())
	})

	It("[TC-EPT-006] round-trips String() through ParseString", func() {
		e, err := endpoint.ParseString("192.168.1.10:5000")
		Expect(err).NotTo(HaveOccurred())
		back, err := endpoint.ParseString(e.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(back.Equal(e)).To(BeTrue())
	})

	It("[TC-EPT-007] Equal distinguishes different ports", func() {
		a, _ := endpoint.ParseString("10.0.0.1:1000")
		b, _ := endpoint.ParseString("10.0.0.1:1001")
		Expect(a.Equal(b)).To(BeFalse())
	})
})
