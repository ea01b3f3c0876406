// Package config loads broker and peer settings from WINERP_* environment
// variables and turns them into server.Options and client.Options.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"winerp/client"
	"winerp/codec"
	"winerp/loadbalance"
	"winerp/registry"
	"winerp/server"
)

// DefaultAddr is the broker address used when nothing else is configured.
const DefaultAddr = "127.0.0.1:13254"

type ServerConfig struct {
	Addr             string        `env:"WINERP_SERVER_ADDR"           envDefault:"127.0.0.1:13254"`
	WSAddr           string        `env:"WINERP_SERVER_WS_ADDR"`
	Secret           string        `env:"WINERP_SERVER_SECRET"`
	SecretHash       string        `env:"WINERP_SERVER_SECRET_HASH"`
	Codec            string        `env:"WINERP_CODEC"                 envDefault:"json"`
	Heartbeat        time.Duration `env:"WINERP_HEARTBEAT_INTERVAL"    envDefault:"30s"`
	HandshakeTimeout time.Duration `env:"WINERP_HANDSHAKE_TIMEOUT"     envDefault:"10s"`
	QueueSize        int           `env:"WINERP_SERVER_QUEUE_SIZE"     envDefault:"256"`
	ForwardRate      float64       `env:"WINERP_SERVER_FORWARD_RATE"`
	ForwardBurst     int           `env:"WINERP_SERVER_FORWARD_BURST"  envDefault:"64"`
	EtcdEndpoints    []string      `env:"WINERP_ETCD_ENDPOINTS"        envSeparator:","`
	AdvertiseAddr    string        `env:"WINERP_SERVER_ADVERTISE_ADDR"`
	Service          string        `env:"WINERP_SERVICE"               envDefault:"winerp"`
	LogLevel         string        `env:"WINERP_LOG_LEVEL"             envDefault:"info"`
}

type ClientConfig struct {
	Name              string        `env:"WINERP_CLIENT_NAME"`
	Addr              string        `env:"WINERP_CLIENT_ADDR"`
	Secret            string        `env:"WINERP_CLIENT_SECRET"`
	Codec             string        `env:"WINERP_CODEC"                      envDefault:"json"`
	RequestTimeout    time.Duration `env:"WINERP_REQUEST_TIMEOUT"            envDefault:"60s"`
	Heartbeat         time.Duration `env:"WINERP_HEARTBEAT_INTERVAL"         envDefault:"30s"`
	Reconnect         bool          `env:"WINERP_CLIENT_RECONNECT"`
	ReconnectInterval time.Duration `env:"WINERP_CLIENT_RECONNECT_INTERVAL"  envDefault:"2s"`
	Brokers           []string      `env:"WINERP_BROKERS"                    envSeparator:","`
	EtcdEndpoints     []string      `env:"WINERP_ETCD_ENDPOINTS"             envSeparator:","`
	Balancer          string        `env:"WINERP_BALANCER"                   envDefault:"round_robin"`
	Service           string        `env:"WINERP_SERVICE"                    envDefault:"winerp"`
	LogLevel          string        `env:"WINERP_LOG_LEVEL"                  envDefault:"info"`
}

// LoadServerConfig parses the environment. Flags may override fields afterwards;
// call Validate once they have.
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadClientConfig() (*ClientConfig, error) {
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ServerConfig) Validate() error {
	var errs []error
	if c.Addr == "" && c.WSAddr == "" {
		errs = append(errs, errors.New("no listen address"))
	}
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if c.Secret != "" && c.SecretHash != "" {
		errs = append(errs, errors.New("set either the secret or its hash, not both"))
	}
	if c.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("negative queue size %d", c.QueueSize))
	}
	if c.ForwardRate < 0 {
		errs = append(errs, fmt.Errorf("negative forward rate %v", c.ForwardRate))
	}
	if len(c.EtcdEndpoints) > 0 {
		if c.AdvertiseAddr == "" {
			errs = append(errs, errors.New("etcd endpoints set without an advertise address"))
		}
		if c.Addr == "" {
			errs = append(errs, errors.New("etcd advertising needs a TCP listen address"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *ClientConfig) Validate() error {
	var errs []error
	if c.Name == "" {
		errs = append(errs, errors.New("client name is required"))
	}
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		errs = append(errs, err)
	}
	if _, err := loadbalance.ByName(c.Balancer); err != nil {
		errs = append(errs, err)
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Authenticator picks the credential check for the broker.
func (c *ServerConfig) Authenticator() (server.Authenticator, error) {
	switch {
	case c.SecretHash != "":
		return server.NewHashedSecretAuthenticator(c.SecretHash)
	case c.Secret != "":
		return server.NewSecretAuthenticator(c.Secret)
	}
	return server.AllowAll{}, nil
}

// ServerOptions builds the broker options; reg may be nil.
func (c *ServerConfig) ServerOptions(reg registry.Registry, logger *zap.Logger) (server.Options, error) {
	ct, err := codec.ParseCodecType(c.Codec)
	if err != nil {
		return server.Options{}, err
	}
	auth, err := c.Authenticator()
	if err != nil {
		return server.Options{}, err
	}
	return server.Options{
		Codec:            ct,
		Heartbeat:        c.Heartbeat,
		HandshakeTimeout: c.HandshakeTimeout,
		QueueSize:        c.QueueSize,
		ForwardRate:      c.ForwardRate,
		ForwardBurst:     c.ForwardBurst,
		Authenticator:    auth,
		Registry:         reg,
		Service:          c.Service,
		AdvertiseAddr:    c.AdvertiseAddr,
		Logger:           logger,
	}, nil
}

// ClientOptions builds peer options. With no address, broker list or etcd
// endpoints, the peer dials DefaultAddr.
func (c *ClientConfig) ClientOptions(reg registry.Registry, logger *zap.Logger) (client.Options, error) {
	ct, err := codec.ParseCodecType(c.Codec)
	if err != nil {
		return client.Options{}, err
	}
	bal, err := loadbalance.ByName(c.Balancer)
	if err != nil {
		return client.Options{}, err
	}
	addr := c.Addr
	if addr == "" && reg == nil {
		addr = DefaultAddr
	}
	return client.Options{
		Name:              c.Name,
		Addr:              addr,
		Secret:            c.Secret,
		Codec:             ct,
		RequestTimeout:    c.RequestTimeout,
		Heartbeat:         c.Heartbeat,
		Reconnect:         c.Reconnect,
		ReconnectInterval: c.ReconnectInterval,
		Registry:          reg,
		Service:           c.Service,
		Balancer:          bal,
		Logger:            logger,
	}, nil
}

// OpenRegistry returns an etcd registry when endpoints are given, a static one
// over brokers otherwise, or nil when neither is set. The returned close func is never nil.
func OpenRegistry(endpoints, brokers []string, service string, logger *zap.Logger) (registry.Registry, func() error, error) {
	nop := func() error { return nil }
	switch {
	case len(endpoints) > 0:
		reg, err := registry.NewEtcdRegistry(endpoints, logger)
		if err != nil {
			return nil, nop, fmt.Errorf("connect etcd %s: %w", strings.Join(endpoints, ","), err)
		}
		return reg, reg.Close, nil
	case len(brokers) > 0:
		return registry.NewStaticRegistry(service, brokers...), nop, nil
	}
	return nil, nop, nil
}
