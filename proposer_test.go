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
	"math/rand"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"
)

// recordingState records every ProposalKind value it receives and calls a caller-supplied handler to build the Request.
type recordingState struct {
	kinds  []ProposalKind
	onKind func(p Proposal) Request
}

func (s *recordingState) Accept(p Proposal) Request {
	s.kinds = append(s.kinds, p.Kind)
	if s.onKind == nil {
		return Request{}
	}
	return s.onKind(p)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestWakeIsFirstProposal(t *testing.T) {
	state := &recordingState{}
	tt := NewTimeTracker(state, rand.New(rand.NewSource(1)))
	p, err := New(0, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if err := p.Run(tt, 10*time.Millisecond); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if len(state.kinds) != 1 {
		t.Fatalf("expected exactly one proposal on first Run, got %d", len(state.kinds))
	}
	if _, ok := state.kinds[0].(Wake); !ok {
		t.Fatalf("expected Wake first, got %T", state.kinds[0])
	}
}

func TestIdleOnQuiescence(t *testing.T) {
	state := &recordingState{}
	tt := NewTimeTracker(state, rand.New(rand.NewSource(1)))
	p, err := New(0, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if err := p.Run(tt, time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	state.kinds = nil

	if err := p.Run(tt, 20*time.Millisecond); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(state.kinds) != 1 {
		t.Fatalf("expected exactly one proposal, got %d: %v", len(state.kinds), state.kinds)
	}
	if _, ok := state.kinds[0].(Idle); !ok {
		t.Fatalf("expected Idle, got %T", state.kinds[0])
	}
}

func TestHelloHandshakeEndToEnd(t *testing.T) {
	port := freePort(t)

	responderState := &recordingState{}
	responderState.onKind = func(p Proposal) Request {
		switch k := p.Kind.(type) {
		case Wake:
			return Request{}.SetSource(SourcePort(uint16(port)))
		case OnReadable:
			buf := make([]byte, 32)
			res := k.Token.Read(buf)
			if res.Length != len("hello, world!") {
				t.Errorf("responder read %d bytes, want %d", res.Length, len("hello, world!"))
			}
		}
		return Request{}
	}
	responderTT := NewTimeTracker(responderState, rand.New(rand.NewSource(1)))
	responder, err := New(0, 8)
	if err != nil {
		t.Fatalf("New responder: %v", err)
	}
	defer responder.Close()

	initiatorState := &recordingState{}
	initiatorState.onKind = func(p Proposal) Request {
		switch k := p.Kind.(type) {
		case Wake:
			addr, _ := net.ResolveTCPAddr("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
			return Request{}.AddConnect(addr)
		case OnWritable:
			res := k.Token.Write([]byte("hello, world!"))
			if res.Closed {
				t.Errorf("initiator write closed unexpectedly")
			}
		}
		return Request{}
	}
	initiatorTT := NewTimeTracker(initiatorState, rand.New(rand.NewSource(2)))
	initiator, err := New(1, 8)
	if err != nil {
		t.Fatalf("New initiator: %v", err)
	}
	defer initiator.Close()

	// Iteration 0: Wake for both. The responder's bind and the initiator's
	// connect are only requested here; each is applied on that proposer's
	// next Run, and the responder runs first so its listener is live.
	if err := responder.Run(responderTT, time.Millisecond); err != nil {
		t.Fatalf("responder Run 0: %v", err)
	}
	if err := initiator.Run(initiatorTT, time.Millisecond); err != nil {
		t.Fatalf("initiator Run 0: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	gotRead, gotWrite := false, false
	for time.Now().Before(deadline) && !(gotRead && gotWrite) {
		if err := responder.Run(responderTT, 20*time.Millisecond); err != nil {
			t.Fatalf("responder Run: %v", err)
		}
		if err := initiator.Run(initiatorTT, 20*time.Millisecond); err != nil {
			t.Fatalf("initiator Run: %v", err)
		}
		for _, k := range responderState.kinds {
			if _, ok := k.(OnReadable); ok {
				gotRead = true
			}
		}
		for _, k := range initiatorState.kinds {
			if _, ok := k.(OnWritable); ok {
				gotWrite = true
			}
		}
	}
	if !gotRead {
		t.Fatalf("responder never saw OnReadable")
	}
	if !gotWrite {
		t.Fatalf("initiator never saw OnWritable")
	}
}

// TestPeerHalfCloseDeliversWillCloseThenNoMoreReadable drives a real peer
// half-close through Proposer.Run end to end: a bare TCP client connects,
// sends nothing, and closes its write half. On Linux EPOLLRDHUP arrives
// combined with EPOLLIN, and on kqueue EVFILT_READ+EV_EOF likewise arrive
// together, so the responder's very first OnReadable for this peer must
// carry WillClose without dispatch panicking. Once that direction is
// discarded, the registry must never mint (and therefore never deliver)
// another OnReadable for the same stream.
func TestPeerHalfCloseDeliversWillCloseThenNoMoreReadable(t *testing.T) {
	port := freePort(t)

	var mu sync.Mutex
	var results []IoResult

	responderState := &recordingState{}
	responderState.onKind = func(p Proposal) Request {
		switch k := p.Kind.(type) {
		case Wake:
			return Request{}.SetSource(SourcePort(uint16(port)))
		case OnReadable:
			res := k.Token.Read(make([]byte, 16))
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		}
		return Request{}
	}
	tt := NewTimeTracker(responderState, rand.New(rand.NewSource(4)))
	responder, err := New(0, 8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer responder.Close()

	if err := responder.Run(tt, time.Millisecond); err != nil {
		t.Fatalf("Run 0: %v", err)
	}

	peer, err := net.DialTCP("tcp", nil, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer peer.Close()
	if err := peer.CloseWrite(); err != nil {
		t.Fatalf("CloseWrite: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if err := responder.Run(tt, 20*time.Millisecond); err != nil {
			t.Fatalf("Run: %v", err)
		}
		mu.Lock()
		n := len(results)
		mu.Unlock()
		if n > 0 {
			break
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(results) == 0 {
		t.Fatalf("responder never observed a readable event for the half-closed peer")
	}
	first := results[0]
	if first.Closed {
		t.Fatalf("expected the half-close event itself to report Closed=false, got %+v", first)
	}
	if first.Length != 0 {
		t.Fatalf("peer sent no data, expected Length=0, got %+v", first)
	}
	if !first.WillClose {
		t.Fatalf("expected WillClose=true on a peer half-close readiness event, got %+v", first)
	}

	// Drive a few more iterations: the read direction is discarded, so no
	// further OnReadable should ever be minted for this stream.
	for i := 0; i < 5; i++ {
		mu.Unlock()
		if err := responder.Run(tt, 10*time.Millisecond); err != nil {
			t.Fatalf("Run: %v", err)
		}
		mu.Lock()
	}
	if len(results) != 1 {
		t.Fatalf("expected exactly one OnReadable for the half-closed stream, got %d: %+v", len(results), results)
	}
}
