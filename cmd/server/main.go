// HTTP API всех сервисов + gRPC health
package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glkeru/amperequest/internal/api"
	"github.com/glkeru/amperequest/internal/app"
	"github.com/glkeru/amperequest/internal/auth"
	"github.com/glkeru/amperequest/internal/config"
	db "github.com/glkeru/amperequest/internal/db"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	tracing "github.com/glkeru/amperequest/observability/otel"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	// config
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	// log
	logger, err := app.NewLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// tracing
	if cfg.OTLP != "" {
		shutdown, err := tracing.InitTracer(ctx, cfg.OTLP, "amperequest", logger)
		if err != nil {
			logger.Error("Tracer is not started", zap.Error(err))
		} else {
			defer shutdown()
		}
	}

	// services
	platform, err := app.NewPlatform(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Platform init", zap.Error(err))
	}
	defer platform.Close()

	tokens, err := auth.NewTokens(cfg.Token.Secret, cfg.Token.TTL)
	if err != nil {
		logger.Fatal("Tokens init", zap.Error(err))
	}

	// journal
	var journal interf.JournalStorage
	if cfg.Mongo.URI != "" {
		j, err := db.NewJournalDB(cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			logger.Error("Journal is not available", zap.Error(err))
		} else {
			journal = j
			defer j.Close(context.Background())
		}
	}

	// api handlers
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.PathPrefix("/").Handler(api.NewHandler(platform.Platform, tokens, journal, logger.Named("api")))
	srv := &http.Server{
		Handler:      otelhttp.NewHandler(router, "amperequest"),
		Addr:         ":" + cfg.HTTPPort,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	go func() {
		logger.Info("HTTP server started", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			stop()
		}
	}()

	// health
	lis, err := net.Listen("tcp", "0.0.0.0:"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("gRPC listen", zap.Error(err))
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("amperequest", healthpb.HealthCheckResponse_SERVING)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server failed", zap.Error(err))
			stop()
		}
	}()

	// shutdown
	<-ctx.Done()
	healthServer.Shutdown()
	grpcServer.GracefulStop()
	timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(timeout); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
