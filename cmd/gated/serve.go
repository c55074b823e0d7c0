package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/muse-gate/internal/api/grpcapi"
	"github.com/danielpatrickdp/muse-gate/internal/api/httpapi"
	"github.com/danielpatrickdp/muse-gate/internal/classifier"
	"github.com/danielpatrickdp/muse-gate/internal/config"
	"github.com/danielpatrickdp/muse-gate/internal/evaluator"
	"github.com/danielpatrickdp/muse-gate/internal/gate"
	"github.com/danielpatrickdp/muse-gate/internal/logging"
	"github.com/danielpatrickdp/muse-gate/internal/store"
	"github.com/danielpatrickdp/muse-gate/internal/telemetry"
)

const shutdownGrace = 10 * time.Second

var (
	httpAddr string
	grpcAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the gate over HTTP and gRPC",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&httpAddr, "http-addr", "", "HTTP listen address (default: MUSE_GATE_HTTP_ADDR or :8080)")
	serveCmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC listen address (default: MUSE_GATE_GRPC_ADDR or :9090)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("http-addr") {
		cfg.HTTPAddr = httpAddr
	}
	if cmd.Flags().Changed("grpc-addr") {
		cfg.GRPCAddr = grpcAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "muse-gate")
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Warn("[SERVE] telemetry shutdown", zap.Error(err))
		}
	}()

	st, err := store.NewStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer st.Close()

	dispatcher, closeSinks, err := newDispatcher(cfg, st)
	if err != nil {
		return err
	}
	defer closeSinks()

	eval := evaluator.NewClient(cfg.Evaluator(), evaluator.WithLogger(logger))
	g := gate.New(eval,
		gate.WithClassifier(classifier.New(cfg.Classifier())),
		gate.WithAuditor(dispatcher),
		gate.WithLogger(logger))

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(g, st, httpapi.WithJWTSecret(cfg.JWTSecret), httpapi.WithLogger(logger)).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	grpcSrv := grpcapi.NewServer(g, logger)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.GRPCAddr, err)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		logger.Info("[HTTP] listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	eg.Go(func() error {
		return grpcSrv.Serve(egCtx, lis)
	})

	serveErr := eg.Wait()

	// In-flight decisions have returned; flush their audit records.
	dctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := dispatcher.Close(dctx); err != nil {
		logger.Warn("[AUDIT] drain incomplete", zap.Error(err))
	}
	logger.Info("[SERVE] stopped",
		zap.Int64("audit_dropped", dispatcher.Dropped()),
		zap.Int64("audit_failed", dispatcher.Failed()))
	return serveErr
}

// newDispatcher builds the audit dispatcher over the configured sinks.
func newDispatcher(cfg config.Config, st *store.Store) (*logging.Dispatcher, func(), error) {
	var sinks []logging.Sink
	closeSinks := func() {}

	if cfg.HasSink(config.SinkSQLite) {
		sinks = append(sinks, logging.NewSQLiteSink(st.DB()))
	}
	if cfg.HasSink(config.SinkRedis) {
		client, err := logging.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, logging.NewRedisSink(client, cfg.RedisStream, cfg.RedisMaxLen))
		closeSinks = func() { _ = client.Close() }
	}
	return logging.NewDispatcher(logger, cfg.Dispatcher(), sinks...), closeSinks, nil
}
