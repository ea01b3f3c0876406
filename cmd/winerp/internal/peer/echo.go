package peer

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"winerp/cmd/winerp/internal"
	"winerp/message"
	"winerp/middleware"
)

func echo(ctx context.Context, payload message.Payload) (message.Payload, error) {
	return payload, nil
}

func ping(ctx context.Context, payload message.Payload) (message.Payload, error) {
	return message.Payload{"pong": true}, nil
}

func NewEchoCommand() *cobra.Command {
	var (
		pf        peerFlags
		rateLimit float64
		burst     int
	)

	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run a peer serving the echo and ping routes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := pf.load(cmd)
			if err != nil {
				return err
			}
			cfg.Reconnect = true
			p, err := internal.NewPeer(cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			c := p.Client
			if err := c.HandleFunc("", echo); err != nil {
				return err
			}
			if err := c.HandleFunc("", ping); err != nil {
				return err
			}
			c.Use(middleware.LoggingMiddleware(p.Logger))
			if rateLimit > 0 {
				c.Use(middleware.RateLimitMiddleware(rateLimit, burst))
			}

			ctx, stop := internal.SignalContext(cmd.Context())
			defer stop()
			if err := c.Start(ctx); err != nil {
				return err
			}
			p.Logger.Info("serving", zap.String("name", c.Name()))
			<-ctx.Done()
			return nil
		},
	}

	pf.register(cmd, "echo")
	cmd.Flags().Float64Var(&rateLimit, "rate", 0, "Max requests per second served (0 for unlimited)")
	cmd.Flags().IntVar(&burst, "burst", 10, "Burst for --rate")

	return cmd
}
