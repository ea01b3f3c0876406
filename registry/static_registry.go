package registry

import (
	"context"
	"slices"
	"sync"
)

// StaticRegistry is an in-process Registry. It serves a fixed broker list from
// configuration, and doubles as a registry for tests. TTLs are ignored.
type StaticRegistry struct {
	mu        sync.Mutex
	instances map[string][]ServiceInstance
	watchers  map[string][]chan []ServiceInstance
}

// NewStaticRegistry registers addrs under serviceName with weight 1.
func NewStaticRegistry(serviceName string, addrs ...string) *StaticRegistry {
	r := &StaticRegistry{
		instances: make(map[string][]ServiceInstance),
		watchers:  make(map[string][]chan []ServiceInstance),
	}
	for _, addr := range addrs {
		r.instances[serviceName] = append(r.instances[serviceName], ServiceInstance{Addr: addr, Weight: 1})
	}
	return r
}

func (r *StaticRegistry) Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	insts := slices.DeleteFunc(r.instances[serviceName], func(i ServiceInstance) bool { return i.Addr == instance.Addr })
	r.instances[serviceName] = append(insts, instance)
	r.notifyLocked(serviceName)
	return nil
}

func (r *StaticRegistry) Deregister(ctx context.Context, serviceName string, addr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[serviceName] = slices.DeleteFunc(r.instances[serviceName], func(i ServiceInstance) bool { return i.Addr == addr })
	r.notifyLocked(serviceName)
	return nil
}

func (r *StaticRegistry) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.instances[serviceName]), nil
}

// Watch emits the current list right away and again after every change.
func (r *StaticRegistry) Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance {
	ch := make(chan []ServiceInstance, 1)
	r.mu.Lock()
	r.watchers[serviceName] = append(r.watchers[serviceName], ch)
	ch <- slices.Clone(r.instances[serviceName])
	r.mu.Unlock()

	go func() {
		<-ctx.Done()
		r.mu.Lock()
		defer r.mu.Unlock()
		r.watchers[serviceName] = slices.DeleteFunc(r.watchers[serviceName], func(w chan []ServiceInstance) bool { return w == ch })
		close(ch)
	}()
	return ch
}

// notifyLocked replaces any unread snapshot with the latest one.
func (r *StaticRegistry) notifyLocked(serviceName string) {
	snapshot := r.instances[serviceName]
	for _, ch := range r.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		ch <- slices.Clone(snapshot)
	}
}
