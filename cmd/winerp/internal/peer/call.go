package peer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"winerp/cmd/winerp/internal"
	"winerp/codec"
	"winerp/message"
)

func NewCallCommand() *cobra.Command {
	var (
		pf      peerFlags
		to      string
		route   string
		data    string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:     "call",
		Short:   "Send one request to a peer and print the reply",
		Example: `winerp call --to worker --route ping --data '{"x": 1}'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload := message.Payload{}
			if data != "" {
				if err := codec.GetCodec(codec.CodecTypeJSON).Decode([]byte(data), &payload); err != nil {
					return fmt.Errorf("--data: %w", err)
				}
			}

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
			reply, err := p.Client.Request(ctx, route, to, timeout, payload)
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(reply, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	pf.register(cmd, "winerp-call")
	cmd.Flags().StringVar(&to, "to", "", "Destination peer")
	cmd.Flags().StringVarP(&route, "route", "r", "", "Route on the destination")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON object payload")
	cmd.Flags().DurationVarP(&timeout, "timeout", "t", 0, "Reply timeout (default WINERP_REQUEST_TIMEOUT)")
	cmd.MarkFlagRequired("to")
	cmd.MarkFlagRequired("route")

	return cmd
}
