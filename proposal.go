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
	"fmt"
	"math/rand"
	"net"
	"time"
)

// ConnectionID identifies a connection within one proposer instance: the
// proposer's own id plus a registry-local, monotonically assigned token.
// Stable for the life of a connection. Displayed as pppp.tttt hex.
type ConnectionID struct {
	PollID uint16
	Token  uint16
}

func (c ConnectionID) String() string {
	return fmt.Sprintf("%04x.%04x", c.PollID, c.Token)
}

// ProposalKind is the sealed set of inputs a State can receive. The
// concrete types are Wake, Idle, Connection, OnReadable, OnWritable and
// Custom.
type ProposalKind interface {
	isProposalKind()
}

// Wake is delivered exactly once, as the very first proposal any fresh
// Proposer ever sends.
type Wake struct{}

// Idle is delivered when an iteration's poll returned no events at all.
type Idle struct{}

// Connection announces a new TCP connection, inbound or outbound.
type Connection struct {
	Addr     net.Addr
	Incoming bool
	ID       ConnectionID
}

// OnReadable hands over a single-use read capability for a connection that
// is currently readable.
type OnReadable struct {
	ID    ConnectionID
	Token ReadOnce
}

// OnWritable hands over a single-use write capability for a connection that
// is currently writable.
type OnWritable struct {
	ID    ConnectionID
	Token WriteOnce
}

// Custom carries a user-defined, out-of-band event synthesized directly via
// TimeTracker.Send rather than produced by the network loop — e.g. a
// SIGINT-driven termination signal.
type Custom struct {
	Ext interface{}
}

func (Wake) isProposalKind()       {}
func (Idle) isProposalKind()       {}
func (Connection) isProposalKind() {}
func (OnReadable) isProposalKind() {}
func (OnWritable) isProposalKind() {}
func (Custom) isProposalKind()     {}

// Proposal is the single input to a State: a source of randomness, the wall
// time elapsed since the previous proposal delivered to this State, and the
// event itself.
type Proposal struct {
	Rng     *rand.Rand
	Elapsed time.Duration
	Kind    ProposalKind
}

func (p Proposal) String() string {
	return fmt.Sprintf("elapsed: %s, %v", p.Elapsed, p.Kind)
}
