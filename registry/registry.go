// Package registry lets brokers advertise themselves and peers find them.
//
// Peers talk to each other only through a shared broker, so discovery is about
// finding a broker to connect to, never about routing between brokers.
package registry

import "context"

// DefaultService is the service name brokers register under.
const DefaultService = "winerp"

type ServiceInstance struct {
	Addr    string `json:"addr"`              // tcp host:port or ws:// URL
	Weight  int    `json:"weight,omitempty"`  // Weight for load balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, serviceName string, instance ServiceInstance, ttl int64) error
	Deregister(ctx context.Context, serviceName string, addr string) error
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
	Watch(ctx context.Context, serviceName string) <-chan []ServiceInstance
}
