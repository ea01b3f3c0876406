package client

import (
	"sync"
	"time"

	"winerp/message"
)

type result struct {
	payload message.Payload
	err     error
}

type waiter struct {
	ch       chan result // buffered, receives exactly one result
	deadline time.Time
}

// pendingTable correlates outgoing requests with their replies.
// LoadAndDelete makes resolve, remove and failAll race safely: whoever
// deletes the entry is the only one to settle it.
type pendingTable struct {
	waiters sync.Map // id -> *waiter
}

func (p *pendingTable) add(id string, deadline time.Time) (<-chan result, bool) {
	w := &waiter{ch: make(chan result, 1), deadline: deadline}
	if _, loaded := p.waiters.LoadOrStore(id, w); loaded {
		return nil, false
	}
	return w.ch, true
}

// resolve settles the waiter for a response or error message.
func (p *pendingTable) resolve(msg *message.Message) bool {
	v, ok := p.waiters.LoadAndDelete(msg.ID)
	if !ok {
		return false
	}
	w := v.(*waiter)
	if msg.Kind == message.KindError {
		w.ch <- result{err: msg.Err()}
	} else {
		w.ch <- result{payload: msg.Payload}
	}
	return true
}

// remove drops the entry without settling it. It reports false if something else got there first.
func (p *pendingTable) remove(id string) bool {
	_, ok := p.waiters.LoadAndDelete(id)
	return ok
}

func (p *pendingTable) failAll(err error) int {
	n := 0
	p.waiters.Range(func(key, _ any) bool {
		if v, ok := p.waiters.LoadAndDelete(key); ok {
			v.(*waiter).ch <- result{err: err}
			n++
		}
		return true
	})
	return n
}

func (p *pendingTable) len() int {
	n := 0
	p.waiters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
