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
	"syscall"
)

// rawRead and rawWrite issue exactly one non-blocking read(2)/write(2)
// against a TCP connection's underlying file descriptor, bypassing the
// runtime netpoller's own retry-on-EAGAIN loop. The proposer's own poller
// (internal/netpoll) is what decided this fd was ready; once-tokens must
// perform at most one syscall per readiness event (spec invariant), so
// neither helper may block or retry.
//
// The RawConn.Read/Write callback contract is: returning true tells the
// runtime "don't wait and retry, I'm done" -- exactly the single-attempt
// semantics we need. We always return true and report WouldBlock through
// the named return values instead.
func rawRead(conn *net.TCPConn, buf []byte) (n int, wouldBlock bool, err error) {
	rc, rcErr := conn.SyscallConn()
	if rcErr != nil {
		return 0, false, rcErr
	}
	cerr := rc.Read(func(fd uintptr) bool {
		n, err = syscall.Read(int(fd), buf)
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			wouldBlock = true
			err = nil
		}
		return true
	})
	if cerr != nil {
		return 0, false, cerr
	}
	return n, wouldBlock, err
}

func rawWrite(conn *net.TCPConn, data []byte) (n int, wouldBlock bool, err error) {
	rc, rcErr := conn.SyscallConn()
	if rcErr != nil {
		return 0, false, rcErr
	}
	cerr := rc.Write(func(fd uintptr) bool {
		n, err = syscall.Write(int(fd), data)
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			wouldBlock = true
			err = nil
		}
		return true
	})
	if cerr != nil {
		return 0, false, cerr
	}
	return n, wouldBlock, err
}
