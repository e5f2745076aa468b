// Симулятор: по расписанию публикует виртуальные сессии на участках в NATS
package main

import (
	"context"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/glkeru/amperequest/internal/app"
	"github.com/glkeru/amperequest/internal/config"
	"github.com/glkeru/amperequest/internal/external/nats"
	"github.com/glkeru/amperequest/internal/identity"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/robfig/cron/v3"
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

	if len(cfg.Simulator.Plots) == 0 || len(cfg.Simulator.Payers) == 0 {
		logger.Fatal("env AMPERE_SIMULATOR_PLOTS and AMPERE_SIMULATOR_PAYERS are not set")
	}
	if cfg.Simulator.Revenue == 0 {
		logger.Fatal("env AMPERE_SIMULATOR_REVENUE must be positive")
	}
	payers := make([]identity.Identity, 0, len(cfg.Simulator.Payers))
	for _, p := range cfg.Simulator.Payers {
		id, err := identity.Parse(p)
		if err != nil {
			logger.Fatal("Simulator payer", zap.String("payer", p), zap.Error(err))
		}
		payers = append(payers, id)
	}

	// nats
	queue, err := nats.NewSessionQueue(cfg.NATS.URL, cfg.NATS.Subject, logger)
	if err != nil {
		logger.Fatal("NATS", zap.Error(err))
	}
	defer queue.Close()

	c := cron.New()
	_, err = c.AddFunc(cfg.Simulator.Schedule, func() {
		req := model.VirtualSessionRequest{
			Payer:   payers[rand.IntN(len(payers))],
			Plot:    identity.Plot(cfg.Simulator.Plots[rand.IntN(len(cfg.Simulator.Plots))]),
			Revenue: 1 + rand.Uint64N(cfg.Simulator.Revenue),
		}
		if err := queue.Publish(req); err != nil {
			logger.Error("Publish virtual session", zap.Error(err))
			return
		}
		logger.Debug("Virtual session published", zap.String("plot", req.Plot.String()), zap.Uint64("revenue", req.Revenue))
	})
	if err != nil {
		logger.Fatal("Simulator schedule", zap.String("schedule", cfg.Simulator.Schedule), zap.Error(err))
	}
	c.Start()
	logger.Info("Simulator started", zap.String("schedule", cfg.Simulator.Schedule))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	<-c.Stop().Done()
}
