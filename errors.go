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

import "strings"

// ProposerError aggregates the recoverable failures observed during one
// Run iteration. A connection-scoped failure never aborts the iteration --
// it is recorded here and the loop proceeds with the rest of its work; only
// invariant violations (poller registration/deregistration failures, a
// readiness event with no token left to mint, token space exhaustion -- bugs,
// never expected in practice) panic instead of being collected.
type ProposerError struct {
	ListenErr      error
	ConnectErrs    []error
	DisconnectErrs []error
	AcceptErr      error
	PollErr        error
}

func (e *ProposerError) isEmpty() bool {
	return e.ListenErr == nil && len(e.ConnectErrs) == 0 && len(e.DisconnectErrs) == 0 &&
		e.AcceptErr == nil && e.PollErr == nil
}

func (e *ProposerError) Error() string {
	var parts []string
	if e.ListenErr != nil {
		parts = append(parts, "listen: "+e.ListenErr.Error())
	}
	for _, err := range e.ConnectErrs {
		parts = append(parts, "connect: "+err.Error())
	}
	for _, err := range e.DisconnectErrs {
		parts = append(parts, "disconnect: "+err.Error())
	}
	if e.AcceptErr != nil {
		parts = append(parts, "accept: "+e.AcceptErr.Error())
	}
	if e.PollErr != nil {
		parts = append(parts, "poll: "+e.PollErr.Error())
	}
	return strings.Join(parts, "; ")
}
