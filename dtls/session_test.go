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

package dtls

import (
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sabouaram/dgramrt/buffer"
	"github.com/sabouaram/dgramrt/endpoint"
	"github.com/sabouaram/dgramrt/opkind"
	"github.com/sabouaram/dgramrt/socket"
	"github.com/sabouaram/dgramrt/sockerr"
)

// scriptEngine replays a scripted sequence of Results per call and records
// what was fed and drained.
type scriptEngine struct {
	script []Result
	out    [][]byte
	fed    [][]byte
	closed bool
}

func (e *scriptEngine) next() Result {
	if len(e.script) == 0 {
		return Result{Want: WantNothing}
	}
	r := e.script[0]
	e.script = e.script[1:]
	return r
}

func (e *scriptEngine) Handshake(Role) Result { return e.next() }
func (e *scriptEngine) Read(p []byte) Result  { return e.next() }
func (e *scriptEngine) Write(p []byte) Result { return e.next() }
func (e *scriptEngine) Shutdown() Result      { return e.next() }

func (e *scriptEngine) FeedInput(p []byte) {
	cp := make([]byte, len(p))
	copy(cp, p)
	e.fed = append(e.fed, cp)
}

func (e *scriptEngine) DrainOutput() []byte {
	if len(e.out) == 0 {
		return nil
	}
	d := e.out[0]
	e.out = e.out[1:]
	return d
}

func (e *scriptEngine) Close() error { e.closed = true; return nil }

// memSocket is a loop-less UDPSocket double: sends succeed immediately and
// receives are served from a scripted inbox, both with inline callbacks
// (legal in tests, which stand in for the loop goroutine).
type memSocket struct {
	sent    [][]byte
	inbox   [][]byte
	recvErr error
	peer    endpoint.Endpoint
	state   socket.State
}

func (m *memSocket) Bind(ep endpoint.Endpoint) error    { m.state = socket.StateBound; return nil }
func (m *memSocket) Connect(ep endpoint.Endpoint) error { m.state = socket.StateConnected; return nil }

func (m *memSocket) AsyncSendTo(v buffer.View, _ endpoint.Endpoint, cb opkind.SendCallback) error {
	cp := make([]byte, v.Len())
	copy(cp, v.Bytes())
	m.sent = append(m.sent, cp)
	cb(nil, v.Len())
	return nil
}

func (m *memSocket) AsyncReceiveFrom(mut *buffer.Mutable, cb opkind.ReceiveCallback) error {
	if m.recvErr != nil {
		cb(m.recvErr, 0, endpoint.Endpoint{})
		return nil
	}
	if len(m.inbox) == 0 {
		cb(sockerr.New(sockerr.KindTimedOut), 0, endpoint.Endpoint{})
		return nil
	}
	d := m.inbox[0]
	m.inbox = m.inbox[1:]
	n := copy(mut.Bytes(), d)
	mut.SetValid(n)
	cb(nil, n, m.peer)
	return nil
}

func (m *memSocket) Close() error                    { m.state = socket.StateClosed; return nil }
func (m *memSocket) State() socket.State             { return m.state }
func (m *memSocket) LocalEndpoint() endpoint.Endpoint { return endpoint.Endpoint{} }

var testPeer = endpoint.New(net.ParseIP("127.0.0.1"), 4433)

var errBoom = plainErr("record engine exploded")

type plainErr string

func (e plainErr) Error() string { return string(e) }

var _ = Describe("[TC-SES] Session state machine", func() {
	It("[TC-SES-001] drives a handshake through output and input wants", func() {
		eng := &scriptEngine{
			script: []Result{
				{Want: WantOutputAndRetry},
				{Want: WantInputAndRetry},
				{Want: WantNothing},
			},
			out: [][]byte{[]byte("flight1")},
		}
		sock := &memSocket{inbox: [][]byte{[]byte("flight2")}, peer: testPeer}
		s := NewClient(sock, eng, testPeer, nil, nil)
		Expect(s.State()).To(Equal(StateFresh))

		var hsErr error
		called := false
		s.Handshake(func(err error) { called = true; hsErr = err })

		Expect(called).To(BeTrue())
		Expect(hsErr).ToNot(HaveOccurred())
		Expect(s.State()).To(Equal(StateConnected))
		Expect(sock.sent).To(Equal([][]byte{[]byte("flight1")}))
		Expect(eng.fed).To(Equal([][]byte{[]byte("flight2")}))
	})

	It("[TC-SES-002] a failed handshake collapses into handshake-failed", func() {
		eng := &scriptEngine{script: []Result{{Err: errBoom}}}
		s := NewClient(&memSocket{}, eng, testPeer, nil, nil)

		var hsErr error
		s.Handshake(func(err error) { hsErr = err })
		Expect(sockerr.Is(hsErr, sockerr.KindHandshakeFailed)).To(BeTrue())
		Expect(s.State()).To(Equal(StateHandshaking))
	})

	It("[TC-SES-003] read before connected is invalid-state", func() {
		s := NewClient(&memSocket{}, &scriptEngine{}, testPeer, nil, nil)
		var rdErr error
		s.Read(make([]byte, 16), func(err error, _ int) { rdErr = err })
		Expect(sockerr.Is(rdErr, sockerr.KindInvalidState)).To(BeTrue())
	})

	It("[TC-SES-004] read and write round-trip once connected", func() {
		eng := &scriptEngine{
			script: []Result{
				{Want: WantNothing}, // handshake
				{Want: WantNothing, N: 4}, // write
				{Want: WantInputAndRetry}, // read needs a record
				{Want: WantNothing, N: 4}, // read completes
			},
		}
		sock := &memSocket{inbox: [][]byte{[]byte("rec1")}, peer: testPeer}
		s := NewClient(sock, eng, testPeer, nil, nil)
		s.Handshake(func(error) {})
		Expect(s.State()).To(Equal(StateConnected))

		var wn int
		s.Write([]byte("ping"), func(err error, n int) {
			Expect(err).ToNot(HaveOccurred())
			wn = n
		})
		Expect(wn).To(Equal(4))

		var rn int
		s.Read(make([]byte, 64), func(err error, n int) {
			Expect(err).ToNot(HaveOccurred())
			rn = n
		})
		Expect(rn).To(Equal(4))
		Expect(eng.fed).To(Equal([][]byte{[]byte("rec1")}))
	})

	It("[TC-SES-005] a second shutdown is invalid-state", func() {
		eng := &scriptEngine{script: []Result{{Want: WantNothing}, {Want: WantNothing}}}
		s := NewClient(&memSocket{}, eng, testPeer, nil, nil)
		s.Handshake(func(error) {})

		s.Shutdown(func(err error) { Expect(err).ToNot(HaveOccurred()) })
		var second error
		s.Shutdown(func(err error) { second = err })
		Expect(sockerr.Is(second, sockerr.KindInvalidState)).To(BeTrue())
		Expect(s.State()).To(Equal(StateShuttingDown))
	})

	It("[TC-SES-006] shutdown that never hears close-notify reports timed-out", func() {
		eng := &scriptEngine{
			script: []Result{
				{Want: WantNothing},       // handshake
				{Want: WantOutputAndRetry}, // close-notify out
				{Want: WantInputAndRetry},  // waiting for peer's
			},
			out: [][]byte{[]byte("close-notify")},
		}
		sock := &memSocket{peer: testPeer} // empty inbox: receives time out
		s := NewClient(sock, eng, testPeer, nil, nil)
		s.Handshake(func(error) {})

		var shErr error
		s.Shutdown(func(err error) { shErr = err })
		Expect(sockerr.Is(shErr, sockerr.KindTimedOut)).To(BeTrue())
		Expect(sock.sent).To(Equal([][]byte{[]byte("close-notify")}))
	})

	It("[TC-SES-007] Close cancels and releases the engine", func() {
		eng := &scriptEngine{}
		sock := &memSocket{}
		s := NewClient(sock, eng, testPeer, nil, nil)
		Expect(s.Close()).To(Succeed())
		Expect(s.State()).To(Equal(StateClosed))
		Expect(eng.closed).To(BeTrue())
		Expect(sock.state).To(Equal(socket.StateClosed))

		// idempotent
		Expect(s.Close()).To(Succeed())
	})
})
