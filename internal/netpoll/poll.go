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

// Package netpoll is the non-blocking readiness reactor behind
// ioproposer.Proposer: one epoll (linux) or kqueue (bsd/darwin) instance,
// registering raw file descriptors pulled out of the standard net package
// via SyscallConn, and returning a fixed-capacity batch of readiness events
// per Wait call. It is the direct analogue of mio::Poll in the Rust
// original this package was distilled from, and is shaped the same way the
// pack's evio/gaio reactors are (see DESIGN.md).
package netpoll

import (
	"syscall"
	"time"

	"github.com/pkg/errors"
)

// Event reports one fd's readiness. Token is whatever opaque value was
// passed to Add/Modify for that fd -- the poller never interprets it.
type Event struct {
	Token       uint16
	Readable    bool
	Writable    bool
	ReadClosed  bool
	WriteClosed bool
}

// Poller is the minimal readiness-multiplexer contract the registry needs.
// Implementations are not safe for concurrent use; ioproposer is
// single-threaded per instance by design (spec §5).
type Poller interface {
	// Add registers fd for the given interest set under token.
	Add(fd int, token uint16, readable, writable bool) error
	// Modify changes fd's registered interest set.
	Modify(fd int, token uint16, readable, writable bool) error
	// Remove deregisters fd. Registration/deregistration failures are
	// invariant violations per spec §4.4 -- callers should treat a
	// non-nil error here as a bug, not a recoverable condition.
	Remove(fd int) error
	// Wait blocks for up to timeout for at least one event, filling
	// events and returning the count written. Interrupted syscalls are
	// retried transparently; everything else is returned to the caller.
	Wait(timeout time.Duration, events []Event) (int, error)
	Close() error
}

// FD extracts the raw, OS-level file descriptor backing a *net.TCPConn or
// *net.TCPListener without taking ownership away from the net package --
// the connection keeps working normally through net.Conn/net.Listener
// afterwards, it is simply also visible to our own poller.
func FD(sc syscall.Conn) (int, error) {
	rc, err := sc.SyscallConn()
	if err != nil {
		return -1, errors.Wrap(err, "SyscallConn")
	}
	var fd int
	cerr := rc.Control(func(f uintptr) {
		fd = int(f)
	})
	if cerr != nil {
		return -1, errors.Wrap(cerr, "Control")
	}
	return fd, nil
}
