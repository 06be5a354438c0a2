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

// Package buffer provides non-owning byte-range views over caller-supplied
// memory.
//
// Neither View nor Mutable ever copies or retains the backing array beyond
// what the caller already holds: a socket operation is handed a view into
// the caller's slice, writes the kernel back into that same slice, and the
// completion callback reports how much of it is now meaningful. Ownership
// of the underlying array never moves; only the bookkeeping of how much of
// it is valid does.
package buffer

// View is a read-only range over a caller-owned byte slice, used for send
// operations: the runtime never mutates or outlives the bytes it wraps.
type View struct {
	data []byte
}

// NewView wraps p without copying it. The caller must not mutate p while an
// operation holds the returned View.
func NewView(p []byte) View {
	return View{data: p}
}

// Bytes returns the wrapped slice.
func (v View) Bytes() []byte { return v.data }

// Len returns the number of bytes in the view.
func (v View) Len() int { return len(v.data) }

// Slice returns the sub-view [i:j), sharing the same backing array.
func (v View) Slice(i, j int) View { return View{data: v.data[i:j]} }

// Mutable is a write target over a caller-owned byte slice, used for
// receive operations: the kernel fills it in place and Valid reports how
// much of it the last completion wrote.
type Mutable struct {
	data  []byte
	valid int
}

// NewMutable wraps p as a write target. Cap() is len(p); Valid starts at 0.
func NewMutable(p []byte) *Mutable {
	return &Mutable{data: p}
}

// Bytes returns the full backing slice, regardless of how much is valid.
func (m *Mutable) Bytes() []byte { return m.data }

// Cap returns the capacity available for a single completion to fill.
func (m *Mutable) Cap() int { return len(m.data) }

// Valid returns the slice of data actually written by the last completed
// operation, i.e. data[:n] where n was passed to SetValid.
func (m *Mutable) Valid() []byte { return m.data[:m.valid] }

// SetValid records how many bytes of data a completion actually wrote. n
// must not exceed Cap(); callers that received KindMessageTruncated should
// still pass the clamped count, not the size of the original datagram.
func (m *Mutable) SetValid(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(m.data) {
		n = len(m.data)
	}
	m.valid = n
}

// Reset clears the valid-byte count without touching the backing array, so
// the same Mutable can be reused for the next receive.
func (m *Mutable) Reset() { m.valid = 0 }
