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

package socket

import (
	"github.com/sabouaram/dgramrt/buffer"
	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/logger"
	"github.com/sabouaram/dgramrt/metrics"
	"github.com/sabouaram/dgramrt/opkind"
)

// EventLoop is the single contract shared by the three backends (IOCP,
// io_uring, kqueue). Exactly one goroutine may be inside Run at a time;
// Stop is safe to call from any other goroutine, including from inside a
// completion callback running on the Run goroutine itself.
type EventLoop interface {
	// CreateUDPSocket allocates a kernel datagram endpoint bound to this
	// loop. The socket is usable immediately (Bind/Connect may be called)
	// but no operation completes until Run is entered.
	CreateUDPSocket(opts Options) (UDPSocket, error)

	// Run blocks until Stop is called. Re-entrance from a second goroutine
	// is a programmer error and is not defended against, matching the
	// single-threaded-run contract.
	Run() error

	// Stop unblocks a concurrent or future Run. Calling Stop when Run is
	// not executing simply arms the next Run call to return immediately.
	Stop()

	// Reopen recreates the loop's kernel event-notification object after a
	// fork. It is a no-op on the io_uring backend, whose rings are not
	// fork-inherited-safe by convention here: recreate the whole loop
	// instead.
	Reopen() error
}

// UDPSocket is the per-handle contract shared by every backend. All
// methods are safe to call only from the owning loop's Run goroutine once
// Run has been entered, except Close, which may be called from any thread
// to request a cancel-everything shutdown.
type UDPSocket interface {
	// Bind assigns the local endpoint. Must precede any send/receive.
	Bind(ep endpoint.Endpoint) error

	// Connect fixes the peer for AsyncSendTo's implicit destination check
	// and enables the kernel's connected-UDP ICMP error delivery; it does
	// not restrict AsyncReceiveFrom, which still reports whichever peer a
	// datagram actually arrived from.
	Connect(ep endpoint.Endpoint) error

	// AsyncSendTo schedules exactly one datagram send. At most one send
	// may be outstanding per socket at a time; a second concurrent call
	// fails fast with sockerr.KindInvalidState.
	AsyncSendTo(view buffer.View, dest endpoint.Endpoint, cb opkind.SendCallback) error

	// AsyncReceiveFrom schedules exactly one datagram receive.
	AsyncReceiveFrom(mut *buffer.Mutable, cb opkind.ReceiveCallback) error

	// Close cancels every in-flight operation on this socket with
	// sockerr.KindCancelled before returning, and is idempotent.
	Close() error

	// State reports the socket's current lifecycle state.
	State() State

	// LocalEndpoint reports the endpoint Bind assigned, or the zero value
	// before Bind.
	LocalEndpoint() endpoint.Endpoint
}

// New builds the platform's EventLoop implementation: io_uring on Linux,
// kqueue on BSD/macOS, IOCP on Windows.
func New() (EventLoop, error) {
	return NewWithObservers(nil, nil)
}

// NewWithObservers is New with an explicit logger and metrics sink. Both
// may be nil; a nil logger drops everything and a nil collector counts
// nothing.
func NewWithObservers(lg logger.Logger, mc *metrics.Collector) (EventLoop, error) {
	if lg == nil {
		lg = logger.Nil()
	}
	return newLoop(lg, mc)
}
