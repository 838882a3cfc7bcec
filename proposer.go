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
	"log"
	"time"

	"github.com/pkg/errors"
	"github.com/xtaci/ioproposer/internal/netpoll"
)

// Proposer is the per-iteration driver: it owns the registry, the reusable
// event buffer, and the pending Request accumulated from every proposal
// delivered since the last call to Run. It is not safe for concurrent use --
// exactly one goroutine should ever call Run on a given Proposer.
type Proposer struct {
	id      uint16
	started bool
	pending Request

	registry *streamRegistry
	poller   netpoll.Poller
	events   []netpoll.Event
}

// New constructs a Proposer bound to poll_id id, with a reusable readiness
// event buffer of the given capacity. The only failure mode is the OS
// readiness backend (epoll/kqueue) refusing to be created.
func New(id uint16, eventsCapacity int) (*Proposer, error) {
	poller, err := netpoll.New()
	if err != nil {
		return nil, errors.Wrap(err, "create poller")
	}
	return &Proposer{
		id:       id,
		registry: newStreamRegistry(poller),
		poller:   poller,
		events:   make([]netpoll.Event, eventsCapacity),
	}, nil
}

// Close releases the OS poll set. It does not close any live connections;
// callers that want a clean shutdown should blacklist/discard first.
func (p *Proposer) Close() error {
	return p.poller.Close()
}

// MergeRequest folds an externally produced Request (typically the result
// of the caller driving TimeTracker.Send with a Custom proposal, e.g. for a
// signal-driven event) into the request the next Run will apply.
func (p *Proposer) MergeRequest(req Request) {
	p.pending = p.pending.Merge(req)
}

// Run executes exactly one iteration. The very first call emits a single
// Wake proposal and does no registry or polling work at all. Every
// subsequent call executes, in order: apply pending source change, apply
// pending blacklist entries, reregister live streams and the listener,
// apply pending connects (emitting Connection{incoming:false} for each),
// poll for up to timeout, and dispatch whatever readiness events (or a
// single Idle) resulted.
func (p *Proposer) Run(tt *TimeTracker, timeout time.Duration) error {
	if !p.started {
		p.started = true
		p.pending = p.pending.Merge(tt.Send(Wake{}))
		return nil
	}

	var perr ProposerError

	if src := p.pending.TakeNewSource(); src != nil {
		if err := p.registry.setSource(*src); err != nil {
			perr.ListenErr = err
		}
	}

	for _, addr := range p.pending.TakeBlacklist() {
		if err := p.registry.blacklistPeer(addr); err != nil {
			perr.DisconnectErrs = append(perr.DisconnectErrs, err)
		}
	}

	p.registry.reregister()

	for _, addr := range p.pending.TakeConnects() {
		tok, inserted, err := p.registry.connectPeer(addr)
		if err != nil {
			perr.ConnectErrs = append(perr.ConnectErrs, err)
			continue
		}
		if !inserted {
			continue
		}
		id := ConnectionID{PollID: p.id, Token: tok}
		p.pending = p.pending.Merge(tt.Send(Connection{Addr: addr, Incoming: false, ID: id}))
	}

	n, err := p.registry.poll(p.events, timeout)
	if err != nil {
		perr.PollErr = err
	}

	if n == 0 {
		p.pending = p.pending.Merge(tt.Send(Idle{}))
	} else {
		for i := 0; i < n; i++ {
			p.dispatch(tt, p.events[i], &perr)
		}
	}

	if perr.isEmpty() {
		return nil
	}
	return &perr
}

func (p *Proposer) dispatch(tt *TimeTracker, ev netpoll.Event, perr *ProposerError) {
	if ev.Token == listenerToken {
		peers, err := p.registry.drainAccepts()
		if err != nil {
			perr.AcceptErr = err
		}
		for _, peer := range peers {
			id := ConnectionID{PollID: p.id, Token: peer.token}
			p.pending = p.pending.Merge(tt.Send(Connection{Addr: peer.addr, Incoming: true, ID: id}))
		}
		return
	}

	ms, ok := p.registry.takeStream(ev.Token)
	if !ok {
		return
	}
	id := ConnectionID{PollID: p.id, Token: ev.Token}

	// Writable before readable: either order is spec-legal, but one
	// implementation must be stable, and this is ours. Mint first, mark
	// closed after: a half-close is delivered as Readable+ReadClosed (or
	// Writable+WriteClosed) together, and the mint must see the direction
	// as still open so this iteration's token is actually handed out; the
	// discarded flag only needs to take effect for the *next* reregister.
	if ev.Writable {
		w, ok := ms.writeOnce()
		if !ok {
			log.Panicf("ioproposer: polled writable on %s with no write capacity to mint", id)
		}
		if ev.WriteClosed {
			ms.setWriteClosed()
		}
		p.pending = p.pending.Merge(tt.Send(OnWritable{ID: id, Token: w}))
	}
	if ev.Readable {
		r, ok := ms.readOnce()
		if !ok {
			log.Panicf("ioproposer: polled readable on %s with no read capacity to mint", id)
		}
		if ev.ReadClosed {
			ms.setReadClosed()
		}
		p.pending = p.pending.Merge(tt.Send(OnReadable{ID: id, Token: r}))
	}
}
