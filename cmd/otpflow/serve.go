package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/otpflow"
	"github.com/MrEthical07/otpflow/httpapi"
	"github.com/MrEthical07/otpflow/metrics/export/prometheus"
)

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the flow API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := otpflow.LoadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg otpflow.Config) error {
	logger := otpflow.NewLogger(cfg.Logging, os.Stdout)
	gin.SetMode(cfg.HTTP.Mode)

	b, err := newBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	engine, err := otpflow.New().
		WithConfig(cfg).
		WithAuthService(b.svc).
		WithLogger(logger).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	srv, err := httpapi.NewServer(httpapi.Options{
		Engine:   engine,
		Resetter: b.svc,
		Metrics:  prometheus.NewPrometheusExporter(engine).Handler(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer srv.Registry().CloseAll()
	go srv.Registry().Run(ctx)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
