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

package metrics_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/sabouaram/dgramrt/metrics"
	"github.com/sabouaram/dgramrt/opkind"
	"github.com/sabouaram/dgramrt/sockerr"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "metrics Suite")
}

var _ = Describe("[TC-MET] Collector", func() {
	It("[TC-MET-001] registers every instrument exactly once", func() {
		reg := prometheus.NewRegistry()
		c := metrics.New()
		Expect(c.Register(reg)).To(Succeed())
		Expect(c.Register(reg)).ToNot(Succeed())
	})

	It("[TC-MET-002] counts completions by operation kind", func() {
		reg := prometheus.NewRegistry()
		c := metrics.New()
		Expect(c.Register(reg)).To(Succeed())

		c.ObserveCompletion(opkind.KindSendTo, nil)
		c.ObserveCompletion(opkind.KindSendTo, nil)
		c.ObserveCompletion(opkind.KindReceiveFrom, nil)

		n, err := testutil.GatherAndCount(reg, "dgramrt_operation_completions_total")
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(2))
	})

	It("[TC-MET-003] counts failures by mapped error kind", func() {
		reg := prometheus.NewRegistry()
		c := metrics.New()
		Expect(c.Register(reg)).To(Succeed())

		c.ObserveCompletion(opkind.KindReceiveFrom, sockerr.New(sockerr.KindCancelled))
		n, err := testutil.GatherAndCount(reg, "dgramrt_operation_failures_total")
		Expect(err).ToNot(HaveOccurred())
		Expect(n).To(Equal(1))
	})

	It("[TC-MET-004] a nil Collector is a silent sink", func() {
		var c *metrics.Collector
		Expect(func() {
			c.ObserveCompletion(opkind.KindSendTo, nil)
			c.ObserveWait(time.Millisecond)
			c.ObserveHandshake("ok")
			_ = c.Register(nil)
		}).ToNot(Panic())
	})
})
