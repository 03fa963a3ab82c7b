package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/bcnelson/firewall-policy-manager/internal/api"
	"github.com/bcnelson/firewall-policy-manager/internal/metrics"
	"github.com/bcnelson/firewall-policy-manager/internal/service"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Apply pending database migrations and serve the HTTP API until
interrupted. SIGINT and SIGTERM trigger a graceful shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := openStore(ctx, &cfg.Database, true)
			if err != nil {
				return err
			}
			defer store.Close()

			reg := metrics.New()
			svc := service.New(store,
				service.WithLogger(logger),
				service.WithMetrics(reg),
				service.WithBootstrapKey(cfg.Auth.APIKey),
			)
			router := api.NewRouter(svc, api.Options{
				Logger:  logger,
				Metrics: reg,
			})

			server := &http.Server{
				Addr:              cfg.Server.Addr(),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
				ReadTimeout:       30 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
			}

			if n, err := store.CountAPIKeys(ctx); err != nil {
				return fmt.Errorf("counting api keys: %w", err)
			} else if n == 0 && cfg.Auth.APIKey == "" {
				logger.Warn("no API keys stored and API_KEY is not set; the API accepts unauthenticated requests")
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("starting server", "addr", server.Addr, "driver", cfg.Database.Driver)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})

			if err := g.Wait(); err != nil {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
}
