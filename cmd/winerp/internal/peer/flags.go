package peer

import (
	"github.com/spf13/cobra"

	"winerp/config"
)

// peerFlags are the connection flags shared by every peer command.
type peerFlags struct {
	name     string
	addr     string
	secret   string
	codec    string
	logLevel string
}

func (f *peerFlags) register(cmd *cobra.Command, defaultName string) {
	cmd.Flags().StringVarP(&f.name, "name", "n", defaultName, "Identity to register under")
	cmd.Flags().StringVarP(&f.addr, "addr", "a", "", "Broker address (tcp host:port or ws:// URL)")
	cmd.Flags().StringVar(&f.secret, "secret", "", "Shared secret")
	cmd.Flags().StringVar(&f.codec, "codec", "json", "Codec: json or msgpack")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "info", "Log level")
}

// load reads WINERP_CLIENT_* variables and applies the flags that were set.
// The name flag also applies when only its default is available.
func (f *peerFlags) load(cmd *cobra.Command) (*config.ClientConfig, error) {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("name") || cfg.Name == "" {
		cfg.Name = f.name
	}
	if flags.Changed("addr") {
		cfg.Addr = f.addr
	}
	if flags.Changed("secret") {
		cfg.Secret = f.secret
	}
	if flags.Changed("codec") {
		cfg.Codec = f.codec
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}
	return cfg, nil
}
