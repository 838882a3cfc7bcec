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
	"time"
)

// State is the interface a caller implements to receive proposals and reply
// with requests. Accept must be deterministic in the sense described by the
// package doc: identical proposal sequences (including the randomness drawn
// from Proposal.Rng) produce identical request sequences.
type State interface {
	Accept(p Proposal) Request
}

// TimeTracker measures wall time elapsed between consecutive proposals and
// attaches the caller-owned randomness source to each one, before
// delivering it to a State. It is also the injection point for
// proposals synthesized outside the network loop, such as a signal-driven
// Custom event.
type TimeTracker struct {
	last  time.Time
	rng   *rand.Rand
	state State
}

// NewTimeTracker starts the clock at construction time. rng may be a fresh
// rand.New(rand.NewSource(seed)) for production use, or any deterministic
// source for replay.
func NewTimeTracker(state State, rng *rand.Rand) *TimeTracker {
	return &TimeTracker{last: time.Now(), rng: rng, state: state}
}

// Send stamps kind with the elapsed time since the previous Send and the
// tracker's own *rand.Rand as Proposal.Rng (the same generator on every
// call; Send draws nothing from it), delivers it to the State, and returns
// the Request
// produced. The caller merges the result into the proposer's pending
// request buffer.
func (t *TimeTracker) Send(kind ProposalKind) Request {
	now := time.Now()
	elapsed := now.Sub(t.last)
	t.last = now
	return t.state.Accept(Proposal{Rng: t.rng, Elapsed: elapsed, Kind: kind})
}
