package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/triage-ai/catalog/internal/api"
	"github.com/triage-ai/catalog/internal/auth"
	"github.com/triage-ai/catalog/internal/chread"
	"github.com/triage-ai/catalog/internal/config"
	"github.com/triage-ai/catalog/internal/server"
	"github.com/triage-ai/catalog/internal/store"
	"github.com/triage-ai/catalog/internal/telemetry"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and gRPC health service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			catalog, err := a.catalog()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, a.cfg, catalog, a.logger)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config, catalog *store.SensitivityCatalogStore, logger *zap.Logger) error {
	logger.Info("starting catalog server",
		zap.String("version", version),
		zap.String("target", catalog.Target()),
		zap.String("http_port", cfg.HTTP.Port),
		zap.String("grpc_port", cfg.GRPC.Port),
	)

	// Tracing
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		ServiceName:    "catalog-server",
		ServiceVersion: version,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
	})
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown error", zap.Error(err))
		}
	}()

	// The store connects per operation; a failed ping here is reported by
	// the health service rather than stopping startup.
	if err := catalog.Ping(ctx); err != nil {
		logger.Warn("catalog database unreachable at startup", zap.Error(err))
	}

	// Audit storage: ClickHouse or LogWriter fallback
	writer := newEventWriter(cfg, logger)
	defer writer.Close()

	deps := &api.Dependencies{
		Catalog: catalog,
		Writer:  writer,
		Logger:  logger,
		Auth: auth.NewHashAuthenticator(auth.HashAuthConfig{
			APIKeyHash: cfg.Auth.APIKeyHash,
			CacheTTL:   cfg.Auth.CacheTTL,
			Logger:     logger,
		}),
	}
	if cfg.Auth.APIKeyHash == "" {
		logger.Warn("no auth.api_key_hash set, catalog writes are disabled")
	}

	// ClickHouse reader (for the audit endpoints)
	if cfg.ClickHouse.DSN != "" {
		chReader, err := chread.NewReader(cfg.ClickHouse.DSN, logger)
		if err != nil {
			logger.Warn("clickhouse reader connection failed", zap.Error(err))
		} else {
			defer func() { _ = chReader.Close() }()
			deps.Reader = chReader
			logger.Info("clickhouse reader connected")
		}
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, server.NewHealthServer(catalog, logger))

	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		return fmt.Errorf("serve: grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}

	logger.Info("catalog server stopped")
	return runErr
}
