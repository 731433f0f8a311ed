package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/feedscrape/internal/server"
	"github.com/sells-group/feedscrape/internal/service"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		svc, err := service.FromConfig(cfg)
		if err != nil {
			return eris.Wrap(err, "serve: build service")
		}

		srv := newHTTPServer(svc, cfg.Server.Port, cfg.Server.CORSOrigins)
		return run(ctx, srv, svc, cfg.Server.ShutdownTimeout())
	},
}

func newHTTPServer(core server.Core, port int, origins []string) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.New(core, server.Options{CORSOrigins: origins}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// lifecycle is what run needs from the service besides HTTP handling.
type lifecycle interface {
	Reap(ctx context.Context) error
	Close(ctx context.Context) error
}

// run serves srv and the session reaper until ctx is cancelled or either
// fails, then shuts both down and closes the browser session.
func run(ctx context.Context, srv *http.Server, svc lifecycle, shutdownTimeout time.Duration) error {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zap.L().Info("starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	})

	g.Go(func() error {
		return svc.Reap(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if cerr := svc.Close(cctx); cerr != nil {
		zap.L().Warn("session cleanup on shutdown", zap.Error(cerr))
	}
	return err
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
