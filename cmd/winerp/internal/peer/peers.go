package peer

import (
	"fmt"

	"github.com/spf13/cobra"

	"winerp/cmd/winerp/internal"
)

func NewPeersCommand() *cobra.Command {
	var pf peerFlags

	cmd := &cobra.Command{
		Use:   "peers",
		Short: "List peers connected to the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := pf.load(cmd)
			if err != nil {
				return err
			}
			p, err := internal.NewPeer(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := internal.SignalContext(cmd.Context())
			defer stop()
			if err := p.Client.Start(ctx); err != nil {
				return err
			}
			rtt, err := p.Client.Ping(ctx)
			if err != nil {
				return err
			}
			peers, err := p.Client.Peers(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, name := range peers {
				if name == p.Client.Name() {
					continue
				}
				fmt.Fprintln(out, name)
			}
			fmt.Fprintf(out, "broker round trip: %s\n", rtt)
			return nil
		},
	}

	pf.register(cmd, "winerp-peers")
	return cmd
}
