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

package logger_test

import (
	"bytes"
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/dgramrt/logger"
)

func TestLogger(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "logger Suite")
}

var _ = Describe("[TC-LOG] Logger", func() {
	It("[TC-LOG-001] filters entries below the configured level", func() {
		var buf bytes.Buffer
		l := logger.New(logger.InfoLevel, &buf)
		l.Debug("hidden", nil)
		Expect(buf.String()).To(BeEmpty())
		l.Info("visible", nil)
		Expect(buf.String()).To(ContainSubstring("visible"))
	})

	It("[TC-LOG-002] attaches per-call fields", func() {
		var buf bytes.Buffer
		l := logger.New(logger.DebugLevel, &buf)
		l.Debug("bind", logger.Fields{"endpoint": "[::1]:4433"})
		Expect(buf.String()).To(ContainSubstring("endpoint"))
		Expect(buf.String()).To(ContainSubstring("[::1]:4433"))
	})

	It("[TC-LOG-003] merges SetFields into every entry", func() {
		var buf bytes.Buffer
		l := logger.New(logger.InfoLevel, &buf)
		l.SetFields(logger.Fields{"backend": "io_uring"})
		l.Info("run", nil)
		Expect(buf.String()).To(ContainSubstring("io_uring"))
	})

	It("[TC-LOG-004] ErrorIf is silent on nil and loud otherwise", func() {
		var buf bytes.Buffer
		l := logger.New(logger.ErrorLevel, &buf)
		Expect(l.ErrorIf(nil, "never", nil)).To(BeFalse())
		Expect(buf.String()).To(BeEmpty())
		Expect(l.ErrorIf(errors.New("bind: address in use"), "bind failed", nil)).To(BeTrue())
		Expect(buf.String()).To(ContainSubstring("address in use"))
	})

	It("[TC-LOG-005] ParseLevel defaults to Info", func() {
		Expect(logger.ParseLevel("warn")).To(Equal(logger.WarnLevel))
		Expect(logger.ParseLevel("bogus")).To(Equal(logger.InfoLevel))
	})

	It("[TC-LOG-006] hclog adapter forwards through the same sink", func() {
		var buf bytes.Buffer
		l := logger.New(logger.DebugLevel, &buf)
		h := logger.NewHCLog(l)
		h.Warn("slow completion")
		Expect(buf.String()).To(ContainSubstring("slow completion"))
		Expect(h.IsDebug()).To(BeTrue())
	})
})
