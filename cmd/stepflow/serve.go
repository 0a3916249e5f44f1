package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aretw0/stepflow/internal/cli"
	httpAdapter "github.com/aretw0/stepflow/pkg/adapters/http"
	"github.com/aretw0/stepflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:         "serve [catalog]",
	Short:       "Start the HTTP server",
	Long:        `Starts the stepflow engine as a JSON API over HTTP, with server-sent events for session lifecycle and catalog reloads.`,
	Args:        cobra.MaximumNArgs(1),
	Annotations: catalogArg,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = settings.Addr
		}
		watch, _ := cmd.Flags().GetBool("watch")

		streams := httpAdapter.NewStreamManager()
		rt, err := openRuntime(cli.EngineOptions{
			Hooks:      []domain.LifecycleHooks{streams.Hooks()},
			Registerer: prometheus.DefaultRegisterer,
		})
		if err != nil {
			return err
		}
		defer rt.Close()

		sigCtx := cli.NewSignalContext(cmd.Context())
		defer sigCtx.Cancel()

		opts := []httpAdapter.Option{
			httpAdapter.WithStreams(streams),
			httpAdapter.WithLogger(logger),
		}
		if settings.Metrics {
			opts = append(opts, httpAdapter.WithMetrics(promhttp.Handler()))
		}
		if watch {
			reloader := cli.NewReloader(rt, logger)
			opts = append(opts, httpAdapter.WithWatcher(reloader))
			go func() {
				if err := reloader.Run(sigCtx); err != nil {
					logger.Error("catalog watcher stopped", "err", err)
				}
			}()
		}

		srv := &http.Server{
			Addr:              addr,
			Handler:           httpAdapter.NewHandler(rt.Engine.Manager(), opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)
		go func() {
			logger.Info("starting stepflow server", "addr", srv.Addr, "catalog", settings.Catalog, "watch", watch)
			serverErrors <- srv.ListenAndServe()
		}()

		select {
		case err := <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("server error: %w", err)

		case <-sigCtx.Done():
			logger.Info("shutting down", "signal", sigCtx.Signal())

			// Give outstanding requests a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "err", err)
				if err := srv.Close(); err != nil {
					return fmt.Errorf("error killing server: %w", err)
				}
			}
			logger.Info("stepflow server stopped gracefully")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (default $STEPFLOW_ADDR or :8080)")
	serveCmd.Flags().Bool("watch", false, "Reload the catalog when its files change")
}
