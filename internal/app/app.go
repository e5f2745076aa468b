// Сборка процесса: логгер, хранилище, кэш, публикация событий и сервисы
package app

import (
	"context"
	"fmt"

	"github.com/glkeru/amperequest/internal/config"
	db "github.com/glkeru/amperequest/internal/db"
	"github.com/glkeru/amperequest/internal/external/bank"
	"github.com/glkeru/amperequest/internal/external/kafka"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	"github.com/glkeru/amperequest/internal/services"
	"go.uber.org/zap"
)

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Logging == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Хранилище записей по store.driver
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (interf.RecordStore, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("Using in-memory store, data is lost on restart")
		return db.NewMemoryDB(logger), nil
	case config.DriverPostgres:
		pg, err := db.NewPostgresDB(ctx, cfg.Store.DSN, logger)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		return pg, nil
	case config.DriverSQLite:
		return db.NewSQLiteDB(ctx, cfg.Store.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

type Platform struct {
	*services.Platform
	Store   interf.RecordStore
	closers []func()
}

func (p *Platform) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

// Сервисы с необязательной инфраструктурой: кэш, Kafka и внешний банк
// подключаются только если настроены
func NewPlatform(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Platform, error) {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	p := &Platform{Store: store, closers: []func(){store.Close}}

	var cache interf.CacheStorage
	if cfg.Cache.Addr != "" {
		c, err := db.NewCacheService(ctx, db.CacheOptions{
			Addr:     cfg.Cache.Addr,
			Username: cfg.Cache.Username,
			Password: cfg.Cache.Password,
			DB:       cfg.Cache.DB,
		})
		if err != nil {
			logger.Error("Cache is not available", zap.Error(err))
		} else {
			cache = c
			p.closers = append(p.closers, func() { c.Close() })
		}
	}

	var events interf.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		w, err := kafka.NewEventWriter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		if err != nil {
			p.Close()
			return nil, err
		}
		events = w
		p.closers = append(p.closers, func() { w.Close() })
	}

	var transfer interf.Transferer
	if cfg.Bank.URL != "" {
		b, err := bank.NewClient(cfg.Bank.URL, cfg.Bank.Timeout, logger.Named("bank"))
		if err != nil {
			p.Close()
			return nil, err
		}
		transfer = b
	}

	p.Platform = services.NewPlatform(logger, store, transfer, cache, events)
	return p, nil
}
