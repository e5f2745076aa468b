// Job - погашение ваучеров по запросам из RabbitMQ, результат в очередь подтверждений
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/glkeru/amperequest/internal/app"
	"github.com/glkeru/amperequest/internal/config"
	rabbit "github.com/glkeru/amperequest/internal/external/rabbitmq"
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

	// rabbitmq
	reader, err := rabbit.NewRabbitConsumer(cfg.Rabbit.URL, cfg.Workers)
	if err != nil {
		logger.Fatal("RabbitMQ", zap.Error(err))
	}
	defer reader.Close()

	// services
	platform, err := app.NewPlatform(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Platform init", zap.Error(err))
	}
	defer platform.Close()

	// workers
	wg := &sync.WaitGroup{}
	wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go worker(ctx, platform.Ledger, wg, logger, reader)
	}
	wg.Wait()
}

// worker for rabbitmq messages
func worker(ctx context.Context, ledger *services.SessionLedger, wg *sync.WaitGroup, logger *zap.Logger, reader *rabbit.RabbitConsumer) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-reader.Msg:
			if !ok {
				return
			}
			confirm, err := ledger.RedeemFromQueue(ctx, msg.Body)
			if errors.Is(err, model.ErrConflict) {
				// гонка записи, запрос вернется в очередь
				_ = msg.Nack(false, true)
				continue
			}
			if err != nil {
				logger.Warn("Redeem rejected", zap.Error(err))
			}
			if confirm != nil {
				if err := reader.Processed(ctx, confirm); err != nil {
					// повторная доставка подтвердит уже проведенное погашение
					logger.Error("Confirm publish", zap.Error(err))
					_ = msg.Nack(false, true)
					continue
				}
			}
			_ = msg.Ack(false)
		}
	}
}
