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
	"strconv"
)

// sourceKind distinguishes an explicit "stop listening" source from a port
// source. The zero ConnectionSource is the same as SourceNone(); a Request
// with no source set holds a nil *ConnectionSource instead.
type sourceKind int

const (
	sourceNone sourceKind = iota
	sourcePort
)

// ConnectionSource chooses whether the proposer listens for inbound
// connections and on which port. Only one source is ever active; setting a
// new one deregisters the prior listener.
type ConnectionSource struct {
	kind sourceKind
	port uint16
}

// SourceNone disables the listening socket.
func SourceNone() ConnectionSource {
	return ConnectionSource{kind: sourceNone}
}

// SourcePort listens on 0.0.0.0:port.
func SourcePort(port uint16) ConnectionSource {
	return ConnectionSource{kind: sourcePort, port: port}
}

// Port reports the configured port and whether a port source was set.
func (s ConnectionSource) Port() (uint16, bool) {
	return s.port, s.kind == sourcePort
}

func (s ConnectionSource) String() string {
	if s.kind == sourcePort {
		return "port(" + strconv.Itoa(int(s.port)) + ")"
	}
	return "none"
}

// Request is the immutable batch of commands a State returns from a
// proposal. Zero value is an empty request. Mutators are additive and
// return a new value, mirroring the builder style of the state machine
// contract: a State never mutates a Request handed to it, it only builds
// one to return.
type Request struct {
	source    *ConnectionSource
	blacklist []*net.TCPAddr
	connect   []*net.TCPAddr
}

// SetSource records a new ConnectionSource. A later SetSource within the
// same Request overwrites an earlier one.
func (r Request) SetSource(source ConnectionSource) Request {
	r.source = &source
	return r
}

// AddToBlacklist appends a single peer to refuse/disconnect.
func (r Request) AddToBlacklist(addr *net.TCPAddr) Request {
	r.blacklist = append(r.blacklist, addr)
	return r
}

// AddBatchToBlacklist appends a batch of peers to refuse/disconnect.
func (r Request) AddBatchToBlacklist(addrs []*net.TCPAddr) Request {
	r.blacklist = append(r.blacklist, addrs...)
	return r
}

// AddConnect appends an outbound peer to connect to.
func (r Request) AddConnect(addr *net.TCPAddr) Request {
	r.connect = append(r.connect, addr)
	return r
}

// AddBatchConnect appends a batch of outbound peers to connect to.
func (r Request) AddBatchConnect(addrs []*net.TCPAddr) Request {
	r.connect = append(r.connect, addrs...)
	return r
}

// IsEmpty reports whether every field is still at its zero value.
func (r Request) IsEmpty() bool {
	return r.source == nil && len(r.blacklist) == 0 && len(r.connect) == 0
}

// TakeNewSource removes and returns the pending source, if any. Subsequent
// calls return nil until SetSource is called again.
func (r *Request) TakeNewSource() *ConnectionSource {
	s := r.source
	r.source = nil
	return s
}

// TakeBlacklist removes and returns the pending blacklist additions.
func (r *Request) TakeBlacklist() []*net.TCPAddr {
	b := r.blacklist
	r.blacklist = nil
	return b
}

// TakeConnects removes and returns the pending outbound connects.
func (r *Request) TakeConnects() []*net.TCPAddr {
	c := r.connect
	r.connect = nil
	return c
}

// Merge is the monoidal "+=": rhs's source only fills self if self's source
// is still empty (first-writer-wins), and the blacklist/connect sequences
// are concatenated preserving insertion order. The empty Request is both a
// left and right identity.
func (r Request) Merge(rhs Request) Request {
	if r.source == nil {
		r.source = rhs.source
	}
	r.blacklist = append(r.blacklist, rhs.blacklist...)
	r.connect = append(r.connect, rhs.connect...)
	return r
}
