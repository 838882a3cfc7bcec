// The MIT License (MIT)
//
// # Copyright (c) 2016 xtaci
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package ioproposer

import (
	"errors"
	"log"
	"net"
	"runtime"
	"syscall"
)

// markedStream is the driver's per-connection bookkeeping record: the live
// TCP connection plus the four booleans that form the 2x2 interest lattice
// per direction. It is owned exclusively by the registry; once-tokens hold
// a pointer to it but check `removed` (set by the registry when the record
// is dropped) instead of relying on a weak reference, since Go has no
// portable equivalent of Rc<RefCell<_>>/Weak for this.
type markedStream struct {
	conn *net.TCPConn

	readOutstanding, readDiscarded   bool
	writeOutstanding, writeDiscarded bool

	removed bool
}

// managedStream is the shared handle the registry hands out: a marked
// stream plus its assigned registry token. It never itself grants I/O
// capability -- only writeOnce/readOnce do, and then only one at a time
// per direction.
type managedStream struct {
	shared *markedStream
	token  uint16
}

func newManagedStream(conn *net.TCPConn, token uint16) *managedStream {
	return &managedStream{
		shared: &markedStream{conn: conn},
		token:  token,
	}
}

func (m *managedStream) writeOnce() (WriteOnce, bool) {
	s := m.shared
	if s.writeOutstanding || s.writeDiscarded {
		return nil, false
	}
	s.writeOutstanding = true
	w := &tcpWriteOnce{shared: s}
	runtime.SetFinalizer(w, (*tcpWriteOnce).finalize)
	return w, true
}

func (m *managedStream) readOnce() (ReadOnce, bool) {
	s := m.shared
	if s.readOutstanding || s.readDiscarded {
		return nil, false
	}
	s.readOutstanding = true
	r := &tcpReadOnce{shared: s}
	runtime.SetFinalizer(r, (*tcpReadOnce).finalize)
	return r, true
}

// interests reports which directions should be registered with the poller.
// Readable/writable is offered iff that direction has no outstanding token
// and is not discarded.
func (m *managedStream) interests() (readable, writable bool) {
	s := m.shared
	readable = !s.readOutstanding && !s.readDiscarded
	writable = !s.writeOutstanding && !s.writeDiscarded
	return
}

func (m *managedStream) closed() bool {
	s := m.shared
	return s.readDiscarded && s.writeDiscarded
}

func (m *managedStream) setReadClosed()  { m.shared.readDiscarded = true }
func (m *managedStream) setWriteClosed() { m.shared.writeDiscarded = true }

// discard fully and idempotently shuts down both halves and marks the
// record removed, so any once-token still referencing it starts failing
// with Closed.
func (m *managedStream) discard() error {
	s := m.shared
	if s.removed {
		return nil
	}
	s.readDiscarded = true
	s.writeDiscarded = true
	s.removed = true
	return s.conn.Close()
}

// tcpReadOnce implements ReadOnce against a markedStream's TCP connection.
type tcpReadOnce struct {
	shared *markedStream
	done   bool
}

func (t *tcpReadOnce) Read(buf []byte) IoResult {
	if t.done {
		return IoResult{Closed: true}
	}
	t.done = true
	runtime.SetFinalizer(t, nil)

	s := t.shared
	s.readOutstanding = false
	if s.removed {
		s.readDiscarded = true
		return IoResult{Closed: true}
	}

	willClose := s.readDiscarded
	n, wouldBlock, err := rawRead(s.conn, buf)
	if err != nil {
		if wouldBlock {
			return IoResult{Length: 0, WillClose: willClose}
		}
		s.readDiscarded = true
		return IoResult{Closed: true}
	}
	return IoResult{Length: n, WillClose: willClose}
}

func (t *tcpReadOnce) Discard() {
	if t.done {
		return
	}
	t.done = true
	runtime.SetFinalizer(t, nil)
	t.finalize()
}

// finalize performs the "drop without a call" path: mark discarded and
// attempt a half-shutdown, tolerating "not connected". Reachable either via
// explicit Discard or, as a backstop, via the GC finalizer.
func (t *tcpReadOnce) finalize() {
	s := t.shared
	s.readOutstanding = false
	s.readDiscarded = true
	if s.removed {
		return
	}
	if err := s.conn.CloseRead(); err != nil && !isNotConnected(err) {
		log.Printf("ioproposer: read half-close: %v", err)
	}
}

// tcpWriteOnce implements WriteOnce against a markedStream's TCP connection.
type tcpWriteOnce struct {
	shared *markedStream
	done   bool
}

func (t *tcpWriteOnce) Write(data []byte) IoResult {
	if t.done {
		return IoResult{Closed: true}
	}
	t.done = true
	runtime.SetFinalizer(t, nil)

	s := t.shared
	s.writeOutstanding = false
	if s.removed {
		s.writeDiscarded = true
		return IoResult{Closed: true}
	}

	willClose := s.writeDiscarded
	n, wouldBlock, err := rawWrite(s.conn, data)
	if err != nil {
		if wouldBlock {
			return IoResult{Length: 0, WillClose: willClose}
		}
		s.writeDiscarded = true
		return IoResult{Closed: true}
	}
	return IoResult{Length: n, WillClose: willClose}
}

func (t *tcpWriteOnce) Discard() {
	if t.done {
		return
	}
	t.done = true
	runtime.SetFinalizer(t, nil)
	t.finalize()
}

func (t *tcpWriteOnce) finalize() {
	s := t.shared
	s.writeOutstanding = false
	s.writeDiscarded = true
	if s.removed {
		return
	}
	if err := s.conn.CloseWrite(); err != nil && !isNotConnected(err) {
		log.Printf("ioproposer: write half-close: %v", err)
	}
}

func isNotConnected(err error) bool {
	return errors.Is(err, syscall.ENOTCONN) || errors.Is(err, syscall.EPIPE) || errors.Is(err, net.ErrClosed)
}
