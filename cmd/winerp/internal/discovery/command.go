package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"winerp/cmd/winerp/internal"
	"winerp/config"
	"winerp/registry"
)

func NewBrokersCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "brokers",
		Short: "List brokers advertised in the registry",
		Long:  "List brokers from WINERP_ETCD_ENDPOINTS (or the static WINERP_BROKERS list).",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadClientConfig()
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			reg, closeReg, err := config.OpenRegistry(cfg.EtcdEndpoints, cfg.Brokers, cfg.Service, logger)
			if err != nil {
				return err
			}
			defer closeReg()
			if reg == nil {
				return errors.New("no registry: set WINERP_ETCD_ENDPOINTS or WINERP_BROKERS")
			}

			ctx, stop := internal.SignalContext(cmd.Context())
			defer stop()
			out := cmd.OutOrStdout()
			if !watch {
				instances, err := reg.Discover(ctx, cfg.Service)
				if err != nil {
					return err
				}
				printInstances(out, instances)
				return nil
			}
			return watchInstances(ctx, out, reg, cfg.Service)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep printing the list as it changes")
	return cmd
}

func watchInstances(ctx context.Context, out io.Writer, reg registry.Registry, service string) error {
	for instances := range reg.Watch(ctx, service) {
		fmt.Fprintln(out, "---")
		printInstances(out, instances)
	}
	return nil
}

func printInstances(out io.Writer, instances []registry.ServiceInstance) {
	for _, inst := range instances {
		fmt.Fprintf(out, "%s\tweight=%d\n", inst.Addr, inst.Weight)
		if inst.Version != "" {
			fmt.Fprintf(out, "\tversion=%s\n", inst.Version)
		}
	}
}
