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

package opkind_test

import (
	"net"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/dgramrt/buffer"
	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/opkind"
)

func TestOpkind(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "opkind Suite")
}

var _ = Describe("[TC-OPK] Operation record", func() {
	dest := endpoint.New(net.ParseIP("192.0.2.1"), 9)

	It("[TC-OPK-001] every kind stringifies", func() {
		for _, k := range []opkind.Kind{
			opkind.KindSendTo, opkind.KindReceiveFrom,
			opkind.KindHandshakeRead, opkind.KindHandshakeWrite,
		} {
			Expect(k.String()).NotTo(Equal("unknown"))
		}
	})

	It("[TC-OPK-002] a send operation carries its view and destination", func() {
		v := buffer.NewView([]byte("datagram"))
		var gotN int
		op := opkind.NewSendTo(v, dest, func(err error, n int) { gotN = n })

		Expect(op.Kind).To(Equal(opkind.KindSendTo))
		Expect(op.Out.Len()).To(Equal(8))
		Expect(op.Dest).To(Equal(dest))
		Expect(op.TraceID.String()).NotTo(BeEmpty())

		op.CompleteSend(nil, 8)
		Expect(gotN).To(Equal(8))
	})

	It("[TC-OPK-003] a receive operation reports the actual peer", func() {
		m := buffer.NewMutable(make([]byte, 32))
		var gotPeer endpoint.Endpoint
		op := opkind.NewReceiveFrom(m, func(err error, n int, peer endpoint.Endpoint) { gotPeer = peer })

		Expect(op.Kind).To(Equal(opkind.KindReceiveFrom))
		op.CompleteReceive(nil, 4, dest)
		Expect(gotPeer).To(Equal(dest))
	})

	It("[TC-OPK-004] nil callbacks are tolerated", func() {
		op := opkind.NewSendTo(buffer.NewView(nil), dest, nil)
		Expect(func() { op.CompleteSend(nil, 0) }).ToNot(Panic())
	})
})
