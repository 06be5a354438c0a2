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

package errors_test

import (
	goerr "errors"
	"fmt"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	liberr "github.com/sabouaram/dgramrt/errors"
)

// Test-only codes, allocated past every registered package range.
const (
	testCodeA liberr.CodeError = liberr.MinAvailable + iota
	testCodeB
	testUnregistered liberr.CodeError = liberr.MinAvailable + 500
)

func TestErrors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "errors Suite")
}

var _ = BeforeSuite(func() {
	liberr.RegisterIdFctMessage(liberr.MinAvailable, func(code liberr.CodeError) string {
		switch code {
		case testCodeA:
			return "submission rejected"
		case testCodeB:
			return "completion lost"
		default:
			return liberr.UnknownMessage
		}
	})
})

var _ = Describe("[TC-ERR] Coded errors", func() {
	It("[TC-ERR-001] a registered code resolves its message", func() {
		Expect(testCodeA.Message()).To(Equal("submission rejected"))
		Expect(testCodeB.Message()).To(Equal("completion lost"))
	})

	It("[TC-ERR-002] an unregistered code falls back to the unknown message", func() {
		Expect(testUnregistered.Message()).To(Equal(liberr.UnknownMessage))
		Expect(liberr.UnknownError.Message()).To(Equal(liberr.UnknownMessage))
	})

	It("[TC-ERR-003] Error carries its code, message and trace", func() {
		err := testCodeA.Error()
		Expect(err.GetCode()).To(Equal(testCodeA))
		Expect(err.IsCode(testCodeA)).To(BeTrue())
		Expect(err.IsCode(testCodeB)).To(BeFalse())
		Expect(err.Error()).To(ContainSubstring("submission rejected"))
		Expect(err.GetTrace()).To(ContainSubstring(".go:"))
	})

	It("[TC-ERR-004] parents chain and nil parents are dropped", func() {
		root := goerr.New("sendmsg: connection refused")
		err := testCodeA.Error(nil, root, nil)
		Expect(err.HasParent()).To(BeTrue())
		Expect(err.GetParent(false)).To(HaveLen(1))
		Expect(err.GetParent(true)).To(HaveLen(2))
		Expect(err.Error()).To(ContainSubstring("connection refused"))
	})

	It("[TC-ERR-005] HasCode walks the whole parent chain", func() {
		inner := testCodeB.Error()
		outer := testCodeA.Error(inner)
		Expect(outer.HasCode(testCodeB)).To(BeTrue())
		Expect(liberr.Has(outer, testCodeB)).To(BeTrue())
		Expect(liberr.Has(outer, testUnregistered)).To(BeFalse())
	})

	It("[TC-ERR-006] Get digs a coded error out of a wrapped chain", func() {
		err := testCodeA.Error()
		wrapped := fmt.Errorf("bind failed: %w", err)
		got := liberr.Get(wrapped)
		Expect(got).ToNot(BeNil())
		Expect(got.GetCode()).To(Equal(testCodeA))
		Expect(liberr.Get(goerr.New("plain"))).To(BeNil())
		Expect(liberr.Get(nil)).To(BeNil())
	})

	It("[TC-ERR-007] errors.Is reaches the wrapped parent", func() {
		root := goerr.New("port already bound")
		err := testCodeA.Error(root)
		Expect(goerr.Is(err, root)).To(BeTrue())
	})

	It("[TC-ERR-008] IsCode matches the head code only", func() {
		inner := testCodeB.Error()
		outer := testCodeA.Error(inner)
		Expect(liberr.IsCode(outer, testCodeA)).To(BeTrue())
		Expect(liberr.IsCode(outer, testCodeB)).To(BeFalse())
	})

	It("[TC-ERR-009] registration is discoverable", func() {
		Expect(liberr.ExistInMapMessage(liberr.MinAvailable)).To(BeTrue())
		Expect(liberr.ExistInMapMessage(testUnregistered)).To(BeFalse())
	})
})
