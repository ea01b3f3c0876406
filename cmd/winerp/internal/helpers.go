package internal

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"winerp/client"
	"winerp/config"
)

var (
	version   = "dev"
	gitCommit string
)

// FormatVersion returns the version string with optional git commit.
func FormatVersion() string {
	v := version
	if gitCommit != "" {
		v += fmt.Sprintf(" (git: %s)", gitCommit)
	}
	return v + " " + runtime.Version()
}

// SignalContext is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Peer holds a started client and what must be released with it.
type Peer struct {
	Client        *client.Client
	Logger        *zap.Logger
	closeRegistry func() error
}

func (p *Peer) Close() {
	p.Client.Close()
	p.closeRegistry()
	p.Logger.Sync()
}

// NewPeer builds a client from cfg without starting it.
func NewPeer(cfg *config.ClientConfig) (*Peer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	reg, closeReg, err := config.OpenRegistry(cfg.EtcdEndpoints, cfg.Brokers, cfg.Service, logger)
	if err != nil {
		return nil, err
	}
	opts, err := cfg.ClientOptions(reg, logger)
	if err != nil {
		closeReg()
		return nil, err
	}
	c, err := client.NewClient(opts)
	if err != nil {
		closeReg()
		return nil, err
	}
	return &Peer{Client: c, Logger: logger, closeRegistry: closeReg}, nil
}
