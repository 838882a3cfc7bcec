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
	"net"
	"testing"
	"time"
)

// loopbackPair returns two connected *net.TCPConn over the loopback
// interface, for exercising managedStream without a full Proposer.
func loopbackPair(t *testing.T) (client, server *net.TCPConn) {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan *net.TCPConn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := ln.AcceptTCP()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	c, err := net.DialTCP("tcp", nil, ln.Addr().(*net.TCPAddr))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case s := <-accepted:
		return c, s
	case err := <-acceptErr:
		t.Fatalf("accept: %v", err)
	case <-time.After(time.Second):
		t.Fatalf("accept timed out")
	}
	return nil, nil
}

func TestOnceTokenUniquenessPerDirection(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	ms := newManagedStream(client, 0)

	if _, ok := ms.writeOnce(); !ok {
		t.Fatalf("first writeOnce should succeed")
	}
	if _, ok := ms.writeOnce(); ok {
		t.Fatalf("second writeOnce while one is outstanding should fail")
	}
	if _, ok := ms.readOnce(); !ok {
		t.Fatalf("readOnce should be independent of the write direction")
	}
	if _, ok := ms.readOnce(); ok {
		t.Fatalf("second readOnce while one is outstanding should fail")
	}
}

func TestInterestLatticeTracksOutstandingAndDiscarded(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	ms := newManagedStream(client, 0)

	readable, writable := ms.interests()
	if !readable || !writable {
		t.Fatalf("fresh stream should offer both directions, got r=%v w=%v", readable, writable)
	}

	w, ok := ms.writeOnce()
	if !ok {
		t.Fatalf("writeOnce should succeed")
	}
	readable, writable = ms.interests()
	if !readable || writable {
		t.Fatalf("write direction should be withheld while outstanding, got r=%v w=%v", readable, writable)
	}

	w.Discard()
	readable, writable = ms.interests()
	if !readable || writable {
		t.Fatalf("a write half discarded by its token should stay withheld: r=%v w=%v", readable, writable)
	}
	if !ms.shared.writeDiscarded {
		t.Fatalf("Discard without a call should mark the half discarded")
	}

	if err := ms.discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if !ms.closed() {
		t.Fatalf("stream should be closed after discard()")
	}
	readable, writable = ms.interests()
	if readable || writable {
		t.Fatalf("closed stream should offer neither direction, got r=%v w=%v", readable, writable)
	}
}

func TestReadOnceAfterDiscardedStreamIsClosed(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	ms := newManagedStream(client, 0)
	if err := ms.discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}

	r, ok := ms.readOnce()
	if ok {
		res := r.Read(make([]byte, 16))
		if !res.Closed {
			t.Fatalf("read on a removed stream should report Closed, got %+v", res)
		}
	}
}

// TestReadOnHeldTokenAfterStreamRemovedIsClosed covers the other half of
// invariant 4: a token minted while the stream was still live must report
// Closed if the stream is torn down before the token is actually used, not
// just when minting is attempted after the fact.
func TestReadOnHeldTokenAfterStreamRemovedIsClosed(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	ms := newManagedStream(client, 0)
	r, ok := ms.readOnce()
	if !ok {
		t.Fatalf("readOnce should succeed on a fresh stream")
	}

	if err := ms.discard(); err != nil {
		t.Fatalf("discard: %v", err)
	}

	res := r.Read(make([]byte, 16))
	if !res.Closed {
		t.Fatalf("read on a token held across stream removal should report Closed, got %+v", res)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	writeSide := newManagedStream(client, 0)
	readSide := newManagedStream(server, 1)

	w, ok := writeSide.writeOnce()
	if !ok {
		t.Fatalf("writeOnce should succeed")
	}
	payload := []byte("hello, world!")
	res := w.Write(payload)
	if res.Closed || res.Length != len(payload) {
		t.Fatalf("unexpected write result: %+v", res)
	}

	deadline := time.Now().Add(time.Second)
	server.SetReadDeadline(deadline)

	buf := make([]byte, len(payload))
	var n int
	for n < len(payload) {
		rr, ok := readSide.readOnce()
		if !ok {
			t.Fatalf("readOnce should succeed once the previous token was consumed")
		}
		res := rr.Read(buf[n:])
		if res.Closed {
			t.Fatalf("unexpected close while reading")
		}
		n += res.Length
		if res.Length == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	if string(buf) != string(payload) {
		t.Fatalf("round trip mismatch: got %q want %q", buf, payload)
	}
}
