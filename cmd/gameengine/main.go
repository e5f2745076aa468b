// Игровой движок: запросы виртуальных сессий из NATS -> record_session от имени движка
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/glkeru/amperequest/internal/app"
	"github.com/glkeru/amperequest/internal/config"
	"github.com/glkeru/amperequest/internal/external/nats"
	model "github.com/glkeru/amperequest/internal/models"
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

	// services
	platform, err := app.NewPlatform(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Platform init", zap.Error(err))
	}
	defer platform.Close()

	// запись движка создается один раз
	_, err = platform.Engine.Initialize(ctx)
	if err != nil && !errors.Is(err, model.ErrAlreadyExists) {
		logger.Fatal("Game engine init", zap.Error(err))
	}

	// nats
	queue, err := nats.NewSessionQueue(cfg.NATS.URL, cfg.NATS.Subject, logger)
	if err != nil {
		logger.Fatal("NATS", zap.Error(err))
	}
	defer queue.Close()

	logger.Info("Game engine started", zap.String("authority", platform.Engine.Identity().String()))
	if err := queue.Subscribe(ctx, "game_engine", platform.Engine.HandleRequest); err != nil {
		logger.Error("NATS subscribe", zap.Error(err))
	}
}
