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

package sockerr

import (
	"errors"

	"golang.org/x/sys/unix"
)

// FromErrno maps a raw unix errno (as returned by a syscall, or the negated
// result of a completion ring entry) onto the closed taxonomy.
func FromErrno(errno unix.Errno) liberrKind {
	switch errno {
	case 0:
		return liberrKind{KindSystem, false}
	case unix.EAGAIN:
		return liberrKind{KindWouldBlock, true}
	case unix.ECONNREFUSED:
		return liberrKind{KindConnectionRefused, true}
	case unix.EADDRINUSE:
		return liberrKind{KindAddressInUse, true}
	case unix.EADDRNOTAVAIL:
		return liberrKind{KindAddressNotAvailable, true}
	case unix.EACCES, unix.EPERM:
		return liberrKind{KindPermissionDenied, true}
	case unix.EBADF, unix.ENOTSOCK, unix.EPIPE:
		return liberrKind{KindClosed, true}
	case unix.ECANCELED:
		return liberrKind{KindCancelled, true}
	case unix.EINVAL, unix.EAFNOSUPPORT, unix.EDESTADDRREQ:
		return liberrKind{KindInvalidEndpoint, true}
	case unix.ETIMEDOUT:
		return liberrKind{KindTimedOut, true}
	default:
		return liberrKind{KindSystem, true}
	}
}

// liberrKind is the intermediate result of a mapping lookup: the Kind it
// resolved to, and whether the errno was recognised at all (a false match
// still yields KindSystem, but callers may want to know they hit the
// catch-all).
type liberrKind struct {
	Kind    Kind
	Matched bool
}

// Wrap builds a liberr.Error of the mapped Kind, preserving err as the
// parent so the raw errno stays inspectable.
func Wrap(err error) error {
	if err == nil {
		return nil
	}

	var en unix.Errno
	if errors.As(err, &en) {
		k := FromErrno(en)
		return New(k.Kind, err)
	}

	return New(KindSystem, err)
}
