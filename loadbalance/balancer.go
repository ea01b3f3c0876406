// Package loadbalance picks which broker a client connects to.
//
// Two strategies are implemented:
//   - RoundRobin:     rotate through brokers; each reconnect tries the next one
//   - WeightedRandom: favour brokers with more capacity
package loadbalance

import (
	"fmt"

	"winerp/registry"
)

// Balancer is the interface for broker selection strategies.
type Balancer interface {
	// Pick selects one instance from the available list. Must be goroutine-safe.
	Pick(instances []registry.ServiceInstance) (*registry.ServiceInstance, error)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}

// ByName returns the balancer configured as "round_robin" or "weighted_random".
func ByName(name string) (Balancer, error) {
	switch name {
	case "", "round_robin", "RoundRobin":
		return &RoundRobinBalancer{}, nil
	case "weighted_random", "WeightedRandom":
		return &WeightedRandomBalancer{}, nil
	}
	return nil, fmt.Errorf("unknown balancer %q", name)
}

var errNoInstances = fmt.Errorf("no broker instances available")
