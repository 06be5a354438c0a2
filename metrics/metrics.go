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

// Package metrics exposes operational counters for the runtime. The core
// never consults these values; they exist so an operator of the echo
// server (or any embedding process) can watch completion rates, error
// kinds and loop wait latency.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sabouaram/dgramrt/opkind"
	"github.com/sabouaram/dgramrt/sockerr"
)

// Collector aggregates the runtime's instruments behind one registration
// point. A nil *Collector is a valid no-op sink, so components can carry
// one unconditionally.
type Collector struct {
	completions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	waits       prometheus.Histogram
	handshakes  *prometheus.CounterVec
}

// New builds the instrument set under the dgramrt namespace.
func New() *Collector {
	return &Collector{
		completions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dgramrt",
			Name:      "operation_completions_total",
			Help:      "Completed operations, by operation kind.",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dgramrt",
			Name:      "operation_failures_total",
			Help:      "Operations completed with an error, by mapped error kind.",
		}, []string{"error"}),
		waits: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dgramrt",
			Name:      "loop_wait_seconds",
			Help:      "Time Run spent blocked in one kernel wait.",
			Buckets:   prometheus.ExponentialBuckets(1e-5, 4, 10),
		}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dgramrt",
			Name:      "dtls_handshakes_total",
			Help:      "DTLS handshake outcomes.",
		}, []string{"outcome"}),
	}
}

// Register attaches every instrument to reg (prometheus.DefaultRegisterer
// when nil).
func (c *Collector) Register(reg prometheus.Registerer) error {
	if c == nil {
		return nil
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, col := range []prometheus.Collector{c.completions, c.failures, c.waits, c.handshakes} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// ObserveCompletion records one finished operation, successful or not.
func (c *Collector) ObserveCompletion(k opkind.Kind, err error) {
	if c == nil {
		return
	}
	c.completions.WithLabelValues(k.String()).Inc()
	if err != nil {
		kind, _ := sockerr.KindOf(err)
		c.failures.WithLabelValues(kind.String()).Inc()
	}
}

// ObserveWait records one kernel wait duration inside Run.
func (c *Collector) ObserveWait(d time.Duration) {
	if c == nil {
		return
	}
	c.waits.Observe(d.Seconds())
}

// ObserveHandshake records one handshake outcome ("ok", "failed",
// "cookie-rejected").
func (c *Collector) ObserveHandshake(outcome string) {
	if c == nil {
		return
	}
	c.handshakes.WithLabelValues(outcome).Inc()
}
