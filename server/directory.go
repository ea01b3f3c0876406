package server

import (
	"fmt"
	"slices"
	"sync"

	"winerp/message"
)

// directory maps identity names to live sessions. No two live sessions share a name.
type directory struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newDirectory() *directory {
	return &directory{sessions: make(map[string]*session)}
}

func (d *directory) register(s *session) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, taken := d.sessions[s.name]; taken {
		return fmt.Errorf("%w: %q is already connected", message.ErrDuplicateName, s.name)
	}
	d.sessions[s.name] = s
	return nil
}

func (d *directory) lookup(name string) (*session, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.sessions[name]
	return s, ok
}

// remove deletes the entry only while it still points at s, so a late
// cleanup never evicts a newer session that reused the name.
func (d *directory) remove(s *session) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sessions[s.name] != s {
		return false
	}
	delete(d.sessions, s.name)
	return true
}

func (d *directory) names() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.sessions))
	for name := range d.sessions {
		names = append(names, name)
	}
	d.mu.RUnlock()
	slices.Sort(names)
	return names
}
