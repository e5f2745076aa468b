// Job - события журнала из Kafka -> MongoDB
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/glkeru/amperequest/internal/app"
	"github.com/glkeru/amperequest/internal/config"
	db "github.com/glkeru/amperequest/internal/db"
	"github.com/glkeru/amperequest/internal/external/kafka"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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
	reader, err := kafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.GroupID+"_journal")
	if err != nil {
		logger.Fatal("Kafka reader", zap.Error(err))
	}
	defer reader.Close()

	// mongo
	journal, err := db.NewJournalDB(cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logger.Fatal("Journal", zap.Error(err))
	}
	defer journal.Close(context.Background())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for {
		msg, err := reader.GetNewMessage(gctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Kafka read", zap.Error(err))
			}
			break
		}
		g.Go(func() error {
			event, err := kafka.DecodeEvent(msg)
			if err != nil {
				logger.Warn("Skip event", zap.Error(err), zap.ByteString("message", msg))
				return nil
			}
			// повторная доставка не создает дубликат
			if err := journal.SaveEvent(gctx, event); err != nil {
				logger.Error("Save event", zap.Error(err), zap.String("id", event.ID))
			}
			return nil
		})
	}
	_ = g.Wait()
}
