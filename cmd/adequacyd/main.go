package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoSim-25-26J-441/adequacy-core/internal/cluster"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/metrics"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/simd"
	"github.com/GoSim-25-26J-441/adequacy-core/internal/store"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/config"
	"github.com/GoSim-25-26J-441/adequacy-core/pkg/logger"
)

func main() {
	var grpcAddr string
	var httpAddr string
	var logLevel string
	var systemDir string
	var storeCfg config.StoreConfig

	flag.StringVar(&grpcAddr, "grpc-addr", ":50051", "gRPC listen address (gather service for remote workers)")
	flag.StringVar(&httpAddr, "http-addr", ":8080", "HTTP listen address")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.StringVar(&systemDir, "system-dir", "config", "directory that system_file references are resolved against")
	flag.StringVar(&storeCfg.Driver, "store-driver", "", "run database driver (sqlite, postgres); empty disables persistence")
	flag.StringVar(&storeCfg.DSN, "store-dsn", "", "run database DSN (sqlite file path or postgres URL)")
	flag.Parse()

	logger.SetDefault(logger.New(logLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var db *store.Store
	if storeCfg.Driver != "" || storeCfg.DSN != "" {
		var err error
		if db, err = store.Open(ctx, storeCfg); err != nil {
			logger.Error("failed to open store", "driver", storeCfg.Driver, "error", err)
			stop()
			os.Exit(1)
		}
		defer db.Close()
		logger.Info("run store opened", "driver", db.Driver())
	}

	collector := metrics.NewCollector()
	gather := cluster.NewGatherServer(nil, "")
	notifier := simd.NewNotifier()

	runs := simd.NewRunStore()
	executor := simd.NewRunExecutor(runs, simd.ExecutorOptions{
		Metrics:  collector,
		DB:       db,
		Gather:   gather,
		Notifier: notifier,
	})

	// TODO: Configure gRPC server security (e.g., TLS, authentication, rate limiting)
	// before using this service in a production environment.
	grpcServer, health := simd.NewGRPCServer(gather)

	grpcLis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		logger.Error("failed to listen for gRPC", "addr", grpcAddr, "error", err)
		stop()
		os.Exit(1)
	}

	httpSrv := &http.Server{
		Addr: httpAddr,
		Handler: simd.NewHTTPServer(runs, executor, simd.HTTPOptions{
			Metrics:   collector.Handler(),
			SystemDir: systemDir,
			DB:        db,
		}).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	// Start servers.
	go func() {
		logger.Info("gRPC server listening", "addr", grpcAddr)
		if err := grpcServer.Serve(grpcLis); err != nil {
			logger.Error("gRPC server error", "error", err)
			stop()
		}
	}()

	go func() {
		logger.Info("HTTP server listening", "addr", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown requested")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health.Shutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown error", "error", err)
	}
	executor.StopAll()
	executor.Wait()
	grpcServer.GracefulStop()
}
