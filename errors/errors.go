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

// Package errors provides coded error values with parent chains and a
// creation-site trace.
//
// Every subsystem of this module reserves a CodeError block (modules.go)
// and registers its messages at init time; the error kinds a caller
// observes from a completion callback are all built here, so one code is
// inspectable the same way whether it came from a backend's errno mapping,
// the session layer or configuration decoding. Values interoperate with
// the standard errors.Is/errors.As via Unwrap.
package errors

import (
	goerr "errors"
	"fmt"
	"runtime"
	"strings"
)

// Error is the coded error the rest of the module creates and inspects.
type Error interface {
	error

	// GetCode reports the code this error was created with.
	GetCode() CodeError

	// IsCode reports whether this error itself carries code.
	IsCode(code CodeError) bool

	// HasCode reports whether this error or any parent carries code.
	HasCode(code CodeError) bool

	// Add appends parents to the chain.
	Add(parent ...error)

	// HasParent reports whether any parent is attached.
	HasParent() bool

	// GetParent returns the flattened parent chain; withMainError
	// includes this error itself at the front.
	GetParent(withMainError bool) []error

	// GetTrace reports the file:line the error was created at.
	GetTrace() string

	// Unwrap exposes the parents to errors.Is / errors.As.
	Unwrap() []error
}

type ers struct {
	c CodeError
	e string
	p []error
	t string
}

// New builds an Error from a code, a message and optional parents; nil
// parents are dropped.
func New(code uint16, message string, parent ...error) Error {
	e := &ers{
		c: CodeError(code),
		e: message,
		t: trace(1),
	}
	e.Add(parent...)
	return e
}

// Get extracts the Error from err's chain, or nil when none is present.
func Get(err error) Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(Error); ok {
		return e
	}

	var e Error
	if goerr.As(err, &e) {
		return e
	}
	return nil
}

// Has reports whether err's chain carries the given code.
func Has(err error, code CodeError) bool {
	if e := Get(err); e != nil {
		return e.HasCode(code)
	}
	return false
}

// IsCode reports whether the Error in err's chain was created with code.
func IsCode(err error, code CodeError) bool {
	if e := Get(err); e != nil {
		return e.IsCode(code)
	}
	return false
}

func (e *ers) Error() string {
	if !e.HasParent() {
		return fmt.Sprintf("[Error #%d] %s", e.c.Uint16(), e.e)
	}

	s := make([]string, 0, len(e.p)+1)
	s = append(s, fmt.Sprintf("[Error #%d] %s", e.c.Uint16(), e.e))
	for _, p := range e.p {
		s = append(s, p.Error())
	}
	return strings.Join(s, ", ")
}

func (e *ers) GetCode() CodeError { return e.c }

func (e *ers) IsCode(code CodeError) bool { return e.c == code }

func (e *ers) HasCode(code CodeError) bool {
	if e.IsCode(code) {
		return true
	}
	for _, p := range e.p {
		if pe, ok := p.(Error); ok && pe.HasCode(code) {
			return true
		}
	}
	return false
}

func (e *ers) Add(parent ...error) {
	for _, p := range parent {
		if p != nil {
			e.p = append(e.p, p)
		}
	}
}

func (e *ers) HasParent() bool { return len(e.p) > 0 }

func (e *ers) GetParent(withMainError bool) []error {
	res := make([]error, 0, len(e.p)+1)
	if withMainError {
		res = append(res, e)
	}
	for _, p := range e.p {
		res = append(res, p)
		if pe, ok := p.(Error); ok {
			res = append(res, pe.GetParent(false)...)
		}
	}
	return res
}

func (e *ers) GetTrace() string { return e.t }

func (e *ers) Unwrap() []error { return e.p }

// trace captures the creation site, skipping this package's own frames.
func trace(skip int) string {
	_, self, _, _ := runtime.Caller(0)
	dir := self[:strings.LastIndexByte(self, '/')+1]

	for i := skip + 1; ; i++ {
		_, file, line, ok := runtime.Caller(i)
		if !ok {
			return ""
		}
		if strings.HasPrefix(file, dir) && !strings.HasSuffix(file, "_test.go") {
			continue
		}
		if j := strings.LastIndexByte(file, '/'); j >= 0 {
			file = file[j+1:]
		}
		return fmt.Sprintf("%s:%d", file, line)
	}
}
