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
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// rawAccept pulls one pending connection off a listener without letting the
// call block: accept4(2) is issued directly against the listener's raw fd,
// with SOCK_NONBLOCK set on the new socket so it starts life ready for our
// own poller rather than the runtime's. wouldBlock=true is the accept-loop
// terminator the registry uses to know it has drained the backlog.
func rawAccept(ln *net.TCPListener) (conn *net.TCPConn, wouldBlock bool, err error) {
	rc, rcErr := ln.SyscallConn()
	if rcErr != nil {
		return nil, false, errors.Wrap(rcErr, "SyscallConn")
	}
	var nfd int
	var acceptErr error
	cerr := rc.Read(func(fd uintptr) bool {
		nfd, _, acceptErr = syscall.Accept4(int(fd), syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC)
		if acceptErr == syscall.EAGAIN || acceptErr == syscall.EWOULDBLOCK {
			wouldBlock = true
			acceptErr = nil
		}
		return true
	})
	if cerr != nil {
		return nil, false, errors.Wrap(cerr, "Read")
	}
	if acceptErr != nil {
		return nil, false, errors.Wrap(acceptErr, "accept4")
	}
	if wouldBlock {
		return nil, true, nil
	}
	f := os.NewFile(uintptr(nfd), "")
	defer f.Close()
	c, fcErr := net.FileConn(f)
	if fcErr != nil {
		return nil, false, errors.Wrap(fcErr, "FileConn")
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		c.Close()
		return nil, false, errors.New("rawAccept: accepted connection is not TCP")
	}
	return tc, false, nil
}

// dialNonblocking initiates a TCP connect without waiting for it to finish:
// the socket is created and set non-blocking before connect(2) is issued
// once. A connect that cannot complete synchronously yields a *net.TCPConn
// immediately; its writable readiness (reported later by the poller) is
// what tells the caller the handshake finished, one way or another.
func dialNonblocking(addr *net.TCPAddr) (*net.TCPConn, error) {
	domain := syscall.AF_INET
	if addr.IP.To4() == nil {
		domain = syscall.AF_INET6
	}
	sa, saErr := tcpSockaddr(addr)
	if saErr != nil {
		return nil, saErr
	}
	fd, sErr := syscall.Socket(domain, syscall.SOCK_STREAM|syscall.SOCK_NONBLOCK|syscall.SOCK_CLOEXEC, syscall.IPPROTO_TCP)
	if sErr != nil {
		return nil, errors.Wrap(sErr, "socket")
	}
	connErr := syscall.Connect(fd, sa)
	if connErr != nil && connErr != syscall.EINPROGRESS {
		syscall.Close(fd)
		return nil, errors.Wrap(connErr, "connect")
	}
	f := os.NewFile(uintptr(fd), addr.String())
	defer f.Close()
	c, fcErr := net.FileConn(f)
	if fcErr != nil {
		return nil, errors.Wrap(fcErr, "FileConn")
	}
	tc, ok := c.(*net.TCPConn)
	if !ok {
		c.Close()
		return nil, errors.New("dialNonblocking: dialed connection is not TCP")
	}
	return tc, nil
}

func tcpSockaddr(addr *net.TCPAddr) (syscall.Sockaddr, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		sa := &syscall.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, nil
	}
	ip6 := addr.IP.To16()
	if ip6 == nil {
		return nil, errors.Errorf("tcpSockaddr: invalid address %s", addr)
	}
	sa := &syscall.SockaddrInet6{Port: addr.Port}
	copy(sa.Addr[:], ip6)
	return sa, nil
}
