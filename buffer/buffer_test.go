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

package buffer_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/dgramrt/buffer"
)

func TestBuffer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "buffer Suite")
}

var _ = Describe("[TC-BUF] View", func() {
	It("[TC-BUF-001] wraps without copying", func() {
		p := []byte("hello")
		v := buffer.NewView(p)
		p[0] = 'H'
		Expect(v.Bytes()[0]).To(Equal(byte('H')))
		Expect(v.Len()).To(Equal(5))
	})

	It("[TC-BUF-002] Slice shares the backing array", func() {
		p := []byte("0123456789")
		v := buffer.NewView(p)
		s := v.Slice(2, 5)
		Expect(s.Bytes()).To(Equal([]byte("234")))
		p[3] = 'X'
		Expect(s.Bytes()[1]).To(Equal(byte('X')))
	})
})

var _ = Describe("[TC-BUF] Mutable", func() {
	It("[TC-BUF-003] starts with zero valid bytes", func() {
		m := buffer.NewMutable(make([]byte, 16))
		Expect(m.Cap()).To(Equal(16))
		Expect(m.Valid()).To(BeEmpty())
	})

	It("[TC-BUF-004] SetValid clamps the visible slice", func() {
		m := buffer.NewMutable(make([]byte, 4))
		copy(m.Bytes(), []byte("abcd"))
		m.SetValid(2)
		Expect(m.Valid()).To(Equal([]byte("ab")))
	})

	It("[TC-BUF-005] SetValid clamps above capacity instead of panicking", func() {
		m := buffer.NewMutable(make([]byte, 4))
		m.SetValid(100)
		Expect(len(m.Valid())).To(Equal(4))
	})

	It("[TC-BUF-006] Reset drops valid bytes without touching the backing array", func() {
		m := buffer.NewMutable([]byte("data"))
		m.SetValid(4)
		m.Reset()
		Expect(m.Valid()).To(BeEmpty())
		Expect(m.Bytes()).To(Equal([]byte("data")))
	})
})
