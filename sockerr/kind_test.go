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

package sockerr_test

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/dgramrt/sockerr"
)

func TestSockerr(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "sockerr Suite")
}

var _ = Describe("[TC-KND] Kind taxonomy", func() {
	It("[TC-KND-001] stringifies every documented kind", func() {
		for _, k := range []sockerr.Kind{
			sockerr.KindClosed, sockerr.KindWouldBlock, sockerr.KindMessageTruncated,
			sockerr.KindConnectionRefused, sockerr.KindAddressInUse, sockerr.KindAddressNotAvailable,
			sockerr.KindPermissionDenied, sockerr.KindInvalidEndpoint, sockerr.KindCancelled,
			sockerr.KindInvalidState, sockerr.KindHandshakeFailed, sockerr.KindPeerClosed,
			sockerr.KindTimedOut, sockerr.KindInvalidOption, sockerr.KindSystem,
		} {
			Expect(k.String()).NotTo(Equal("unknown"))
		}
	})

	It("[TC-KND-002] round-trips through New/KindOf", func() {
		err := sockerr.New(sockerr.KindCancelled, errors.New("read udp: closed"))
		k, ok := sockerr.KindOf(err)
		Expect(ok).To(BeTrue())
		Expect(k).To(Equal(sockerr.KindCancelled))
	})

	It("[TC-KND-003] Is matches the wrapped kind only", func() {
		err := sockerr.New(sockerr.KindTimedOut)
		Expect(sockerr.Is(err, sockerr.KindTimedOut)).To(BeTrue())
		Expect(sockerr.Is(err, sockerr.KindCancelled)).To(BeFalse())
	})

	It("[TC-KND-004] unknown Kind falls back to \"unknown\"", func() {
		Expect(sockerr.Kind(0).String()).To(Equal("unknown"))
	})
})
