package client

import (
	"fmt"
	"sync"

	"winerp/message"
)

type routeTable struct {
	mu     sync.RWMutex
	routes map[string]Handler
}

func newRouteTable() *routeTable {
	return &routeTable{routes: make(map[string]Handler)}
}

func (t *routeTable) add(name string, h Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.routes[name]; ok {
		return fmt.Errorf("%w: route %q already registered", message.ErrDuplicateName, name)
	}
	t.routes[name] = h
	return nil
}

func (t *routeTable) lookup(name string) (Handler, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.routes[name]
	return h, ok
}
