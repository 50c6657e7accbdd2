// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rapid Connect Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/auth"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/config"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/httpapi"
	"github.com/AnShIkA-TrIpAtHi-2022/backend/internal/observability"
)

// serveAddrs reports the bound listener addresses once serve is ready.
type serveAddrs struct {
	HTTP    string
	GRPC    string
	Metrics string
}

// serveHooks lets tests observe and stop a running server.
type serveHooks struct {
	// Ready is called once every listener is bound.
	Ready func(serveAddrs)

	// Signals replaces SIGINT/SIGTERM delivery.
	Signals <-chan os.Signal
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the registration and login API. A gRPC listener with the
standard health service and a metrics server are started when configured.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, true)
			if err != nil {
				return oops.Wrapf(err, "invalid configuration")
			}
			logger, err := setupLogging(cfg)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, logger, nil)
		},
	}
	config.BindFlags(cmd.Flags())
	return cmd
}

// runServe starts every listener and blocks until a signal arrives, ctx is
// cancelled or a server fails.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, hooks *serveHooks) error {
	if hooks == nil {
		hooks = &serveHooks{}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting backend",
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"store_driver", cfg.Store.Driver,
	)

	repo, closeRepo, err := openRepository(ctx, cfg.Store, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	credentials, err := newCredentialStore(repo, cfg, logger)
	if err != nil {
		return err
	}

	secret := []byte(cfg.Auth.SigningSecret)
	revocations := auth.NewMemoryRevocationList(auth.DefaultRevocationCleanupInterval, nil)
	defer revocations.Close()

	issuer, err := auth.NewTokenIssuer(secret, cfg.Auth.MaxTTL)
	if err != nil {
		return err
	}
	verifier, err := auth.NewTokenVerifier(secret, auth.WithRevocations(revocations))
	if err != nil {
		return err
	}

	var obsServer *observability.Server
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = observability.NewServer(cfg.Metrics.Addr, credentials.Ping, logger)
		auth.RegisterMetrics(obsServer.Registry())
		metrics = obsServer.Metrics()
	}

	var limiterReg prometheus.Registerer
	if obsServer != nil {
		limiterReg = obsServer.Registry()
	}
	limiter := auth.NewLoginLimiter(auth.LoginLimiterConfig{
		Burst:     cfg.Auth.LoginRate.Burst,
		PerSecond: cfg.Auth.LoginRate.PerSecond,
	}, limiterReg)
	defer limiter.Close()

	svc, err := auth.NewAuthService(credentials, issuer, auth.ServiceConfig{
		DefaultCapabilities: cfg.Auth.DefaultCapabilities,
		DefaultTTL:          cfg.Auth.DefaultTTL,
	},
		auth.WithLoginLimiter(limiter),
		auth.WithRevocation(verifier, revocations),
		auth.WithServiceLogger(logger),
	)
	if err != nil {
		return err
	}

	addrs := serveAddrs{}

	if obsServer != nil {
		obsErrCh, startErr := obsServer.Start()
		if startErr != nil {
			return oops.Code("SERVER_START_FAILED").With("server", "observability").Wrap(startErr)
		}
		defer stopWithTimeout(cfg.Server.ShutdownTimeout, "observability", obsServer.Stop)
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
		addrs.Metrics = obsServer.Addr()
		logger.Info("observability server started", "addr", addrs.Metrics)
	}

	handler := httpapi.NewHandler(httpapi.Options{
		Service:    svc,
		Verifier:   verifier,
		CookieName: cfg.Auth.CookieName,
		Metrics:    metrics,
		Logger:     logger,
	})

	httpListener, err := net.Listen("tcp", cfg.Server.HTTPAddr)
	if err != nil {
		return oops.Code("SERVER_START_FAILED").With("server", "http").With("addr", cfg.Server.HTTPAddr).Wrap(err)
	}
	httpServer := &http.Server{
		Handler:           otelhttp.NewHandler(handler, "backend"),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}
	httpErrCh := make(chan error, 1)
	go func() {
		defer close(httpErrCh)
		if serveErr := httpServer.Serve(httpListener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			httpErrCh <- serveErr
		}
	}()
	defer stopWithTimeout(cfg.Server.ShutdownTimeout, "http", httpServer.Shutdown)
	go monitorServerErrors(ctx, cancel, httpErrCh, "http")
	addrs.HTTP = httpListener.Addr().String()
	logger.Info("http server listening", "addr", addrs.HTTP)

	if cfg.Server.GRPCAddr != "" {
		grpcServer, grpcListener, err := startGRPC(ctx, cancel, cfg.Server.GRPCAddr, verifier, logger)
		if err != nil {
			return err
		}
		defer grpcServer.GracefulStop()
		addrs.GRPC = grpcListener.Addr().String()
		logger.Info("grpc server listening", "addr", addrs.GRPC)
	}

	signals := hooks.Signals
	if signals == nil {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		signals = sigChan
	}

	logger.Info("backend ready")
	if hooks.Ready != nil {
		hooks.Ready(addrs)
	}

	select {
	case sig := <-signals:
		logger.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}
	logger.Info("shutting down...")
	return nil
}

// startGRPC serves the gRPC health service behind the token interceptor.
// Health checks are public; every other method needs a valid token.
func startGRPC(ctx context.Context, cancel context.CancelFunc, addr string, verifier auth.Verifier, logger *slog.Logger) (*grpc.Server, net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, oops.Code("SERVER_START_FAILED").With("server", "grpc").With("addr", addr).Wrap(err)
	}

	server := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryServerInterceptor(verifier, auth.GRPCPolicy{
		Public: []string{
			healthpb.Health_Check_FullMethodName,
			healthpb.Health_List_FullMethodName,
		},
	}, logger)))
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, healthServer)

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := server.Serve(listener); serveErr != nil {
			errCh <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, errCh, "grpc")
	return server, listener, nil
}

// stopWithTimeout stops a server, bounding the wait by timeout.
func stopWithTimeout(timeout time.Duration, name string, stop func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := stop(ctx); err != nil {
		slog.Warn("error stopping server", "server", name, "error", err)
	}
}

// monitorServerErrors cancels ctx when a server reports an error. It returns
// when errCh closes or ctx is done.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
