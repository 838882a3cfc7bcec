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
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq int
}

func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, errors.Wrap(err, "kqueue")
	}
	return &kqueuePoller{kq: kq}, nil
}

func (p *kqueuePoller) changeBoth(fd int, token uint16, readable, writable bool) error {
	changes := make([]unix.Kevent_t, 0, 2)
	readFlag := uint16(unix.EV_DELETE)
	if readable {
		readFlag = unix.EV_ADD | unix.EV_ENABLE
	}
	writeFlag := uint16(unix.EV_DELETE)
	if writable {
		writeFlag = unix.EV_ADD | unix.EV_ENABLE
	}
	changes = append(changes,
		unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: readFlag},
		unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: writeFlag},
	)
	for i := range changes {
		setUdata(&changes[i], token)
	}
	_, err := unix.Kevent(p.kq, changes, nil, nil)
	if err != nil && err != unix.ENOENT {
		return errors.Wrap(err, "kevent change")
	}
	return nil
}

func (p *kqueuePoller) Add(fd int, token uint16, readable, writable bool) error {
	return p.changeBoth(fd, token, readable, writable)
}

func (p *kqueuePoller) Modify(fd int, token uint16, readable, writable bool) error {
	return p.changeBoth(fd, token, readable, writable)
}

func (p *kqueuePoller) Remove(fd int) error {
	return p.changeBoth(fd, 0, false, false)
}

func (p *kqueuePoller) Wait(timeout time.Duration, events []Event) (int, error) {
	raw := make([]unix.Kevent_t, len(events))
	ts := unix.NsecToTimespec(int64(timeout))
	for {
		n, err := unix.Kevent(p.kq, nil, raw, &ts)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return 0, errors.Wrap(err, "kevent wait")
		}
		merged := map[uint16]*Event{}
		order := make([]uint16, 0, n)
		for i := 0; i < n; i++ {
			e := raw[i]
			tok := udataToken(&e)
			ev, ok := merged[tok]
			if !ok {
				ev = &Event{Token: tok}
				merged[tok] = ev
				order = append(order, tok)
			}
			switch e.Filter {
			case unix.EVFILT_READ:
				ev.Readable = true
				if e.Flags&unix.EV_EOF != 0 {
					ev.ReadClosed = true
				}
			case unix.EVFILT_WRITE:
				ev.Writable = true
				if e.Flags&unix.EV_EOF != 0 {
					ev.WriteClosed = true
				}
			}
		}
		count := 0
		for _, tok := range order {
			if count >= len(events) {
				break
			}
			events[count] = *merged[tok]
			count++
		}
		return count, nil
	}
}

func (p *kqueuePoller) Close() error {
	return unix.Close(p.kq)
}
