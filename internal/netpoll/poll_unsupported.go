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

//go:build !linux && !darwin && !dragonfly && !freebsd && !netbsd && !openbsd

package netpoll

import (
	"time"

	"github.com/pkg/errors"
)

// unsupportedPoller exists so this package still compiles on platforms with
// no epoll/kqueue backend (e.g. windows); New() always returns an error
// there. The ioproposer package itself does not build on windows: its raw
// socket helpers use syscall.Accept4 and SOCK_NONBLOCK.
type unsupportedPoller struct{}

func New() (Poller, error) {
	return nil, errors.New("netpoll: no readiness backend for this platform")
}

func (unsupportedPoller) Add(fd int, token uint16, readable, writable bool) error { return nil }
func (unsupportedPoller) Modify(fd int, token uint16, readable, writable bool) error {
	return nil
}
func (unsupportedPoller) Remove(fd int) error                          { return nil }
func (unsupportedPoller) Wait(time.Duration, []Event) (int, error)     { return 0, nil }
func (unsupportedPoller) Close() error                                 { return nil }
