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

//go:build darwin || dragonfly || freebsd || netbsd || openbsd

package netpoll

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// setUdata/udataToken stash our uint16 token in a Kevent_t's Udata field the
// same way poll_linux.go repurposes EpollEvent.Fd -- kqueue's own Ident
// carries the real fd, Udata is free for the caller to use as identity.
func setUdata(ev *unix.Kevent_t, token uint16) {
	ev.Udata = (*byte)(unsafe.Pointer(uintptr(token)))
}

func udataToken(ev *unix.Kevent_t) uint16 {
	return uint16(uintptr(unsafe.Pointer(ev.Udata)))
}
