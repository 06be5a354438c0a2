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

package errors

import (
	"sort"
	"strconv"
	"sync"
)

// CodeError is a numeric error code. Each package of this module reserves
// a block of codes (see modules.go) and registers its messages with
// RegisterIdFctMessage at init time.
type CodeError uint16

const (
	// UnknownError is the fallback code when none could be determined.
	UnknownError CodeError = 0

	// UnknownMessage is the message rendered for any unregistered code.
	UnknownMessage = "unknown error"
)

// Message resolves one code of a registered block to its message string.
type Message func(code CodeError) string

var (
	msgMu   sync.RWMutex
	msgFct  = map[CodeError]Message{}
	msgMins []CodeError
)

// RegisterIdFctMessage attaches fct to every code at or above minCode,
// up to the next registered block. Called from package init functions;
// later lookups only take the read lock.
func RegisterIdFctMessage(minCode CodeError, fct Message) {
	msgMu.Lock()
	defer msgMu.Unlock()

	msgFct[minCode] = fct
	msgMins = msgMins[:0]
	for c := range msgFct {
		msgMins = append(msgMins, c)
	}
	sort.Slice(msgMins, func(i, j int) bool { return msgMins[i] < msgMins[j] })
}

// ExistInMapMessage reports whether a block is registered exactly at code.
func ExistInMapMessage(code CodeError) bool {
	msgMu.RLock()
	defer msgMu.RUnlock()
	_, ok := msgFct[code]
	return ok
}

// blockOf finds the registered block owning code, or UnknownError.
func blockOf(code CodeError) CodeError {
	best := UnknownError
	for _, min := range msgMins {
		if min > code {
			break
		}
		best = min
	}
	return best
}

// Uint16 returns the raw numeric value of c.
func (c CodeError) Uint16() uint16 { return uint16(c) }

// Int returns the code as an int.
func (c CodeError) Int() int { return int(c) }

// String renders the numeric code.
func (c CodeError) String() string { return strconv.Itoa(c.Int()) }

// Message resolves the registered message for c, or UnknownMessage.
func (c CodeError) Message() string {
	if c == UnknownError {
		return UnknownMessage
	}

	msgMu.RLock()
	defer msgMu.RUnlock()

	min := blockOf(c)
	if fct, ok := msgFct[min]; ok && min != UnknownError {
		if m := fct(c); m != "" {
			return m
		}
	}
	return UnknownMessage
}

// Error builds an Error carrying c, its registered message and the given
// parents.
func (c CodeError) Error(p ...error) Error {
	return New(c.Uint16(), c.Message(), p...)
}
