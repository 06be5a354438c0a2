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

// Package socket is the async UDP socket and its three interchangeable
// event-loop backends (IOCP, io_uring, kqueue), selected at compile time by
// GOOS. One Go file pair per backend implements the same EventLoop and
// UDPSocket contract; callers never see which backend is in effect.
package socket

import "time"

// Options are the recognised socket options of this runtime. An option not
// represented here has no caller-visible equivalent and is rejected by
// whatever entry point accepts option names as strings (see ApplyNamed).
type Options struct {
	// ReuseAddress sets SO_REUSEADDR before bind.
	ReuseAddress bool

	// Broadcast sets SO_BROADCAST; IPv4 only, silently ignored on a v6
	// socket since the kernel itself rejects it there.
	Broadcast bool

	// NoSigpipe suppresses SIGPIPE delivery on platforms where a UDP send
	// to a torn-down peer can raise it (notably BSD/macOS); a no-op on
	// platforms where it cannot occur.
	NoSigpipe bool

	// RecvBufferBytes sets SO_RCVBUF when non-zero.
	RecvBufferBytes int

	// SendBufferBytes sets SO_SNDBUF when non-zero.
	SendBufferBytes int

	// RecvTimeout bounds how long a pending async_receive_from may sit
	// without a datagram before completing with sockerr.KindTimedOut. Zero
	// means no timeout. Expressed as a Duration at this API boundary and
	// converted to the platform's native timeout unit (kqueue: Timespec,
	// io_uring: linked timeout SQE, IOCP: GetQueuedCompletionStatus
	// millisecond wait) by the backend.
	RecvTimeout time.Duration
}

// applyNamed applies a single named option to o. It returns a plain
// error; ApplyOption (in
// named_options.go) wraps it as a sockerr.KindInvalidOption.
func (o *Options) applyNamed(name string, value any) error {
	switch name {
	case "reuse-address":
		v, ok := value.(bool)
		if !ok {
			return errInvalidOptionValue
		}
		o.ReuseAddress = v
	case "broadcast":
		v, ok := value.(bool)
		if !ok {
			return errInvalidOptionValue
		}
		o.Broadcast = v
	case "no-sigpipe":
		v, ok := value.(bool)
		if !ok {
			return errInvalidOptionValue
		}
		o.NoSigpipe = v
	case "recv-buffer-bytes":
		v, ok := value.(int)
		if !ok {
			return errInvalidOptionValue
		}
		o.RecvBufferBytes = v
	case "send-buffer-bytes":
		v, ok := value.(int)
		if !ok {
			return errInvalidOptionValue
		}
		o.SendBufferBytes = v
	case "recv-timeout":
		v, ok := value.(time.Duration)
		if !ok {
			return errInvalidOptionValue
		}
		o.RecvTimeout = v
	default:
		return errUnknownOption
	}
	return nil
}

// State is the lifecycle of a UDPSocket.
type State uint8

const (
	StateNotOpened State = iota
	StateOpened
	StateBound
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNotOpened:
		return "not-opened"
	case StateOpened:
		return "opened"
	case StateBound:
		return "bound"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
