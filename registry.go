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
	"log"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/ioproposer/internal/netpoll"
)

// listenerToken is the reserved registry token standing in for the listening
// socket, analogous to Token(usize::MAX) in the original.
const listenerToken uint16 = 0xFFFF

// streamRegistry owns the listener, the live connection table, the
// blacklist, and the in-progress set of tokens armed in the poller but not
// yet delivered for the current iteration.
type streamRegistry struct {
	poller netpoll.Poller

	listener   *net.TCPListener
	listenerFD int

	byAddr  map[string]*managedStream
	byToken map[uint16]*managedStream

	// inProgress tracks tokens currently armed in the poller: an event for
	// a token is only valid to dispatch once per iteration, and takeStream
	// removes the token so a stale re-delivery cannot surface twice without
	// first going back through reregister.
	inProgress map[uint16]bool

	blacklist map[string]struct{}

	lastToken uint16
}

func newStreamRegistry(poller netpoll.Poller) *streamRegistry {
	return &streamRegistry{
		poller:     poller,
		byAddr:     make(map[string]*managedStream),
		byToken:    make(map[uint16]*managedStream),
		inProgress: make(map[uint16]bool),
		blacklist:  make(map[string]struct{}),
	}
}

func (r *streamRegistry) nextToken() uint16 {
	t := r.lastToken
	r.lastToken++
	if r.lastToken == listenerToken {
		log.Panicf("ioproposer: registry token space exhausted")
	}
	return t
}

// setSource replaces the listener. Deregistering the old one is treated as
// infallible; binding the new one can fail and is surfaced as a
// listen_error rather than panicking.
func (r *streamRegistry) setSource(src ConnectionSource) error {
	if r.listener != nil {
		if err := r.poller.Remove(r.listenerFD); err != nil {
			log.Panicf("ioproposer: deregister listener: %v", err)
		}
		if err := r.listener.Close(); err != nil {
			log.Panicf("ioproposer: close listener: %v", err)
		}
		r.listener = nil
	}

	port, ok := src.Port()
	if !ok {
		return nil
	}

	ln, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4zero, Port: int(port)})
	if err != nil {
		return errors.Wrapf(err, "listen on port %d", port)
	}
	fd, fdErr := netpoll.FD(ln)
	if fdErr != nil {
		ln.Close()
		return errors.Wrap(fdErr, "listener fd")
	}
	if err := r.poller.Add(fd, listenerToken, true, false); err != nil {
		log.Panicf("ioproposer: register listener: %v", err)
	}
	r.listener = ln
	r.listenerFD = fd
	return nil
}

// blacklistPeer records the peer's IP and tears down any live connection to
// it. Per spec the blacklist is keyed by IP only, not by port.
func (r *streamRegistry) blacklistPeer(addr *net.TCPAddr) error {
	r.blacklist[addr.IP.String()] = struct{}{}

	ms, ok := r.byAddr[addr.String()]
	if !ok {
		return nil
	}
	delete(r.byAddr, addr.String())
	delete(r.byToken, ms.token)
	delete(r.inProgress, ms.token)

	fd, fdErr := netpoll.FD(ms.shared.conn)
	if fdErr == nil {
		if err := r.poller.Remove(fd); err != nil {
			log.Panicf("ioproposer: deregister blacklisted stream: %v", err)
		}
	}
	if err := ms.discard(); err != nil {
		return errors.Wrapf(err, "disconnect %s", addr)
	}
	return nil
}

// connectPeer initiates a non-blocking outbound connect and arms it for
// writable readiness. A peer already present in the table is a no-op
// reported via the inserted return value.
func (r *streamRegistry) connectPeer(addr *net.TCPAddr) (token uint16, inserted bool, err error) {
	key := addr.String()
	if _, exists := r.byAddr[key]; exists {
		return 0, false, nil
	}

	conn, dialErr := dialNonblocking(addr)
	if dialErr != nil {
		return 0, false, errors.Wrapf(dialErr, "connect %s", addr)
	}

	tok := r.nextToken()
	ms := newManagedStream(conn, tok)

	fd, fdErr := netpoll.FD(conn)
	if fdErr != nil {
		conn.Close()
		return 0, false, errors.Wrapf(fdErr, "connect %s", addr)
	}
	if err := r.poller.Add(fd, tok, false, true); err != nil {
		log.Panicf("ioproposer: register outbound stream: %v", err)
	}

	r.byAddr[key] = ms
	r.byToken[tok] = ms
	r.inProgress[tok] = true
	return tok, true, nil
}

// reregister purges closed streams and rearms the poller for every
// remaining stream's current interests, plus the listener. It runs once per
// iteration, immediately before polling.
func (r *streamRegistry) reregister() {
	for addr, ms := range r.byAddr {
		if ms.closed() {
			ms.shared.removed = true
			delete(r.byAddr, addr)
			delete(r.byToken, ms.token)
			delete(r.inProgress, ms.token)
			continue
		}
		readable, writable := ms.interests()
		fd, fdErr := netpoll.FD(ms.shared.conn)
		if fdErr != nil {
			log.Panicf("ioproposer: stream fd vanished: %v", fdErr)
		}
		if !readable && !writable {
			continue
		}
		if err := r.poller.Modify(fd, ms.token, readable, writable); err != nil {
			log.Panicf("ioproposer: rearm stream: %v", err)
		}
		r.inProgress[ms.token] = true
	}
	if r.listener != nil {
		if err := r.poller.Modify(r.listenerFD, listenerToken, true, false); err != nil {
			log.Panicf("ioproposer: rearm listener: %v", err)
		}
	}
}

// acceptedPeer is one successfully accepted, non-blacklisted connection.
type acceptedPeer struct {
	addr  net.Addr
	token uint16
}

// drainAccepts pops every pending connection off the listener. Blacklisted
// peers are discarded immediately and not returned. WouldBlock ends the
// loop normally; any other OS error is surfaced as an accept_error.
func (r *streamRegistry) drainAccepts() ([]acceptedPeer, error) {
	if r.listener == nil {
		return nil, nil
	}
	var out []acceptedPeer
	for {
		conn, wouldBlock, err := rawAccept(r.listener)
		if err != nil {
			return out, errors.Wrap(err, "accept")
		}
		if wouldBlock {
			return out, nil
		}

		remote := conn.RemoteAddr().(*net.TCPAddr)
		if _, blocked := r.blacklist[remote.IP.String()]; blocked {
			conn.Close()
			continue
		}

		tok := r.nextToken()
		ms := newManagedStream(conn, tok)
		fd, fdErr := netpoll.FD(conn)
		if fdErr != nil {
			log.Panicf("ioproposer: accepted stream fd: %v", fdErr)
		}
		if err := r.poller.Add(fd, tok, true, false); err != nil {
			log.Panicf("ioproposer: register accepted stream: %v", err)
		}

		r.byAddr[remote.String()] = ms
		r.byToken[tok] = ms
		r.inProgress[tok] = true
		out = append(out, acceptedPeer{addr: remote, token: tok})
	}
}

// takeStream claims a stream armed for the current iteration's event,
// removing it from inProgress so the same readiness cannot be redelivered
// without passing back through reregister.
func (r *streamRegistry) takeStream(token uint16) (*managedStream, bool) {
	if !r.inProgress[token] {
		return nil, false
	}
	delete(r.inProgress, token)
	ms, ok := r.byToken[token]
	return ms, ok
}

func (r *streamRegistry) poll(events []netpoll.Event, timeout time.Duration) (int, error) {
	n, err := r.poller.Wait(timeout, events)
	if err != nil {
		return 0, errors.Wrap(err, "poll")
	}
	return n, nil
}

func (r *streamRegistry) String() string {
	return fmt.Sprintf("streamRegistry{streams:%d, blacklist:%d}", len(r.byAddr), len(r.blacklist))
}
