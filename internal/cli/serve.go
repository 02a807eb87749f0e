package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	httpx "lotledger/internal/infra/http"
	"lotledger/pkg/domain"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve health and metrics endpoints",
		Long: `Serve opens the configured store and exposes /health, /ready and, when
metrics are enabled, /metrics until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, rootOpts)
			if err != nil {
				return reportError(out, err, "serve failed")
			}
			defer a.Close()

			if addr == "" {
				addr = a.cfg.HTTP.Addr
			}
			var gatherer prometheus.Gatherer
			if a.cfg.Metrics.Enabled {
				gatherer = a.registry
			}
			ready := func(ctx context.Context) error {
				return a.store.View(ctx, func(domain.TransactionView) error { return nil })
			}
			srv := httpx.New(addr, gatherer, ready)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()
			a.log.Info("server started", "addr", addr, "driver", a.cfg.Storage.Driver, "metrics", a.cfg.Metrics.Enabled)

			select {
			case err := <-errCh:
				if err != nil {
					return reportError(out, WrapExitError(ExitCommandError, "server failed", err), "")
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.log.Error("shutdown failed", "err", err)
				return reportError(out, WrapExitError(ExitFailure, "shutdown failed", err), "")
			}
			a.log.Info("server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from http.addr)")

	return cmd
}
