package main

import (
	"os"

	"github.com/spf13/cobra"

	"winerp/cmd/winerp/internal/broker"
	"winerp/cmd/winerp/internal/discovery"
	"winerp/cmd/winerp/internal/peer"
	"winerp/cmd/winerp/internal/secret"
	"winerp/cmd/winerp/internal/version"
)

func NewWinerpCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "winerp",
		Short:        "Request/response broker between named processes",
		Example:      "winerp server --addr 127.0.0.1:13254",
		SilenceUsage: true,
	}

	cmd.AddCommand(
		broker.NewServerCommand(),
		peer.NewCallCommand(),
		peer.NewEchoCommand(),
		peer.NewPeersCommand(),
		discovery.NewBrokersCommand(),
		secret.NewHashSecretCommand(),
		version.NewVersionCommand(),
	)

	return cmd
}

func main() {
	cmd := NewWinerpCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
