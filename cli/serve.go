package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/perkins/api"
	"github.com/use-agent/perkins/cache"
)

// ledgerCheckInterval is how often the API re-stats the ledger file.
const ledgerCheckInterval = 2 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the ledger over a read-only HTTP API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg

			cc := cache.New(cfg.Paths.LedgerPath(), ledgerCheckInterval)
			router := api.NewRouter(cfg.Server, cc, time.Now())

			addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			srv := &http.Server{
				Addr:    addr,
				Handler: router,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				slog.Info("HTTP server listening", "addr", addr, "ledger", cc.Path(), "auth", len(cfg.Server.APIKeys) > 0)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				slog.Info("shutdown signal received")
			}

			// Give in-flight requests 5 seconds to complete.
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("HTTP server forced shutdown", "error", err)
				return err
			}
			slog.Info("HTTP server drained gracefully")
			return nil
		},
	}
}
