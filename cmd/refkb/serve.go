package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "refkb/internal/http"
	"refkb/internal/platform/httpserver"
	platformmetrics "refkb/internal/platform/metrics"
	"refkb/internal/suggestion/handler"
	"refkb/internal/suggestion/metrics"
)

var serveMigrate bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the admin HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, log, appOptions{notifiers: true, metrics: metrics.New()})
		if err != nil {
			return err
		}
		defer a.Close()

		if serveMigrate {
			if err := a.store.Migrate(ctx); err != nil {
				return err
			}
		}
		if cfg.Server.AdminToken == "" {
			log.Warn("no admin token configured; admin routes will reject every request")
		}

		checks := map[string]httpapi.HealthCheck{"database": a.db.Health}
		if a.redis != nil {
			checks["redis"] = a.redis.Health
		}
		if a.kafka != nil {
			checks["kafka"] = a.kafka.Ping
		}
		router := httpapi.NewRouter(httpapi.Deps{
			Logger:       log,
			Metrics:      platformmetrics.New(),
			HealthChecks: checks,
		}, handler.New(a.service, log, cfg.Server.AdminToken))
		srv := httpserver.New(cfg.Server.Addr, router)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("starting refkb", "addr", cfg.Server.Addr, "database", a.db.Dialect)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			log.Info("shutting down")
			return srv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "Apply the schema before serving")
}
