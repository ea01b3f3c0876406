package broker

import (
	"github.com/spf13/cobra"

	"winerp/config"
)

func NewServerCommand() *cobra.Command {
	var (
		addr     string
		wsAddr   string
		codec    string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:     "server",
		Aliases: []string{"s"},
		Short:   "Run the winerp broker",
		Long:    "Run the broker. Settings come from WINERP_SERVER_* variables; flags override them.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadServerConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = addr
			}
			if flags.Changed("ws-addr") {
				cfg.WSAddr = wsAddr
			}
			if flags.Changed("codec") {
				cfg.Codec = codec
			}
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			return serve(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", config.DefaultAddr, "TCP listen address (empty to disable)")
	cmd.Flags().StringVar(&wsAddr, "ws-addr", "", "WebSocket listen address")
	cmd.Flags().StringVar(&codec, "codec", "json", "Codec for outbound frames: json or msgpack")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level")

	return cmd
}
