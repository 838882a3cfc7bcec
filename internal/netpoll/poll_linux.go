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

//go:build linux

package netpoll

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type epollPoller struct {
	epfd int
}

// New creates the OS-backed poller. Failure here is the one place
// ioproposer.New can fail (spec §6: "construction ... may fail if
// the OS poll set cannot be created").
func New() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "epoll_create1")
	}
	return &epollPoller{epfd: epfd}, nil
}

func eventMask(readable, writable bool) uint32 {
	var mask uint32 = unix.EPOLLRDHUP
	if readable {
		mask |= unix.EPOLLIN
	}
	if writable {
		mask |= unix.EPOLLOUT
	}
	return mask
}

func (p *epollPoller) Add(fd int, token uint16, readable, writable bool) error {
	// ev.Fd carries the caller's token, not the real fd -- mirroring how
	// mio stores an arbitrary Token in epoll_data instead of deriving one
	// from the fd. epoll_ctl's own fd argument is the real fd below.
	ev := unix.EpollEvent{Events: eventMask(readable, writable), Fd: int32(token)}
	return errors.Wrap(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev), "epoll_ctl add")
}

func (p *epollPoller) Modify(fd int, token uint16, readable, writable bool) error {
	ev := unix.EpollEvent{Events: eventMask(readable, writable), Fd: int32(token)}
	return errors.Wrap(unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev), "epoll_ctl mod")
}

func (p *epollPoller) Remove(fd int) error {
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	if err != nil && err != unix.ENOENT {
		return errors.Wrap(err, "epoll_ctl del")
	}
	return nil
}

func (p *epollPoller) Wait(timeout time.Duration, events []Event) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	for {
		n, err := unix.EpollWait(p.epfd, raw, ms)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "epoll_wait")
		}
		for i := 0; i < n; i++ {
			e := raw[i]
			events[i] = Event{
				Token:       uint16(e.Fd),
				Readable:    e.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0,
				Writable:    e.Events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0,
				ReadClosed:  e.Events&(unix.EPOLLRDHUP|unix.EPOLLHUP) != 0,
				WriteClosed: e.Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0,
			}
		}
		return n, nil
	}
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
