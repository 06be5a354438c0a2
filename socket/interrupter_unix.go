//go:build linux || darwin || dragonfly || freebsd || netbsd || openbsd

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
	"golang.org/x/sys/unix"

	"github.com/sabouaram/dgramrt/sockerr"
)

// interrupter is a pipe readable by the loop and writable from any thread:
// Stop() writes one byte, the loop's wait wakes on the
// read side becoming readable, and every wake drains the pipe completely
// so a second Stop() before the next wait does not relatch a stale wake.
type interrupter struct {
	r, w int
}

func newInterrupter() (*interrupter, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return nil, sockerr.Wrap(err)
	}
	return &interrupter{r: fds[0], w: fds[1]}, nil
}

// wake writes a single byte, waking a blocked wait. Writes are idempotent
// from the caller's point of view: a full pipe buffer (wake already
// pending) is not an error.
func (i *interrupter) wake() {
	var b [1]byte
	b[0] = 1
	_, err := unix.Write(i.w, b[:])
	if err != nil && err != unix.EAGAIN {
		_ = err // best-effort; a dropped wake byte on a saturated pipe still leaves one pending
	}
}

// drain reads every pending byte from the read side. Must be called after
// every wake the loop observes, before the next wait.
func (i *interrupter) drain() {
	var b [64]byte
	for {
		n, err := unix.Read(i.r, b[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

func (i *interrupter) fd() int { return i.r }

func (i *interrupter) close() {
	_ = unix.Close(i.r)
	_ = unix.Close(i.w)
}
