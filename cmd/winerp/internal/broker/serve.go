package broker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"winerp/cmd/winerp/internal"
	"winerp/config"
	"winerp/server"
)

const shutdownTimeout = 10 * time.Second

func serve(ctx context.Context, cfg *config.ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	reg, closeReg, err := config.OpenRegistry(cfg.EtcdEndpoints, nil, cfg.Service, logger)
	if err != nil {
		return err
	}
	defer closeReg()

	opts, err := cfg.ServerOptions(reg, logger)
	if err != nil {
		return err
	}
	srv := server.NewServer(opts)

	ctx, stop := internal.SignalContext(ctx)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	if cfg.Addr != "" {
		ln, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Serve(ln) })
	}

	var httpSrv *http.Server
	if cfg.WSAddr != "" {
		httpSrv = &http.Server{Addr: cfg.WSAddr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}
		g.Go(func() error {
			logger.Info("websocket listening", zap.String("addr", cfg.WSAddr))
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		// Sessions first: hijacked WebSocket conns are not closed by http.Server.Shutdown.
		err := srv.Shutdown(sctx)
		if httpSrv != nil {
			err = errors.Join(err, httpSrv.Shutdown(sctx))
		}
		return err
	})

	return g.Wait()
}
