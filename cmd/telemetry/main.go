// Job - показания счетчиков из Kafka -> обновление и завершение сессий
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/glkeru/amperequest/internal/app"
	"github.com/glkeru/amperequest/internal/config"
	"github.com/glkeru/amperequest/internal/external/kafka"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/glkeru/amperequest/internal/services"
	"go.uber.org/zap"
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

	// kafka
	reader, err := kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.TelemetryTopic, cfg.Kafka.GroupID+"_telemetry")
	if err != nil {
		logger.Fatal("Kafka reader", zap.Error(err))
	}
	defer reader.Close()

	// services
	platform, err := app.NewPlatform(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Platform init", zap.Error(err))
	}
	defer platform.Close()

	// workers: показания одной сессии - в один воркер, по порядку.
	// Воркеры дорабатывают принятые показания и после сигнала остановки
	dispatcher := services.NewReadingDispatcher(context.WithoutCancel(ctx), platform.Ledger, cfg.Workers, logger)
	defer func() {
		dispatcher.Close()
		logger.Info("Telemetry stopped", zap.Uint64("rejected", dispatcher.Failed()))
	}()

	for {
		msg, err := reader.GetNewMessage(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Kafka read", zap.Error(err))
			}
			return
		}
		if err := dispatcher.Dispatch(ctx, msg); err != nil {
			if errors.Is(err, model.ErrInvalidInput) {
				logger.Warn("Meter reading rejected", zap.Error(err), zap.ByteString("message", msg))
				continue
			}
			return
		}
	}
}
