//go:build windows

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

	"golang.org/x/sys/windows"
)

// FromWinError maps a raw Windows error code (as surfaced by an overlapped
// completion or a direct Winsock call) onto the closed taxonomy.
func FromWinError(errno windows.Errno) Kind {
	switch errno {
	case 0:
		return KindSystem
	case windows.WSAEWOULDBLOCK, windows.ERROR_IO_PENDING:
		return KindWouldBlock
	case windows.WSAECONNREFUSED, windows.WSAECONNRESET:
		return KindConnectionRefused
	case windows.WSAEADDRINUSE:
		return KindAddressInUse
	case windows.WSAEADDRNOTAVAIL:
		return KindAddressNotAvailable
	case windows.WSAEACCES:
		return KindPermissionDenied
	case windows.ERROR_OPERATION_ABORTED, windows.WSAECONNABORTED:
		return KindCancelled
	case windows.WSAEINVAL, windows.WSAEAFNOSUPPORT, windows.WSAEDESTADDRREQ:
		return KindInvalidEndpoint
	case windows.WSAEMSGSIZE:
		return KindMessageTruncated
	case windows.WSAETIMEDOUT:
		return KindTimedOut
	case windows.ERROR_HANDLE_EOF, windows.ERROR_INVALID_HANDLE:
		return KindClosed
	default:
		return KindSystem
	}
}

// Wrap builds a liberr.Error of the mapped Kind, preserving err as the
// parent so the raw Windows error code stays inspectable.
func Wrap(err error) error {
	if err == nil {
		return nil
	}

	var en windows.Errno
	if errors.As(err, &en) {
		return New(FromWinError(en), err)
	}

	return New(KindSystem, err)
}
