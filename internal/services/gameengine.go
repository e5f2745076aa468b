package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"go.uber.org/zap"
)

const gameEngineName = "game_engine"

// Игровой движок: записывает виртуальные сессии в реестр участков от своего имени.
// Своего учета не ведет
type GameEngine struct {
	logger   *zap.Logger
	db       interf.RecordStore
	plots    interf.SessionRecorder
	identity identity.Identity
	now      func() time.Time
}

func NewGameEngine(logger *zap.Logger, db interf.RecordStore, plots interf.SessionRecorder) *GameEngine {
	return &GameEngine{
		logger:   logger,
		db:       db,
		plots:    plots,
		identity: identity.ServiceGameEngine,
		now:      time.Now,
	}
}

func (e *GameEngine) Identity() identity.Identity {
	return e.identity
}

// Однократная инициализация записи движка
func (e *GameEngine) Initialize(ctx context.Context) (rec model.GameEngineAuthority, err error) {
	defer func() { observe(gameEngineName, "initialize", err) }()
	rec = model.GameEngineAuthority{
		Authority: e.identity,
		CreatedAt: e.now().Unix(),
	}
	err = e.db.Atomic(ctx, func(tx interf.Tx) error {
		return tx.Create(ctx, identity.GameEngine(), &rec)
	})
	if err != nil {
		return model.GameEngineAuthority{}, err
	}
	e.logger.Info("Game engine initialized", zap.String("authority", e.identity.String()))
	return rec, nil
}

// Делегированный вызов record_session с удостоверением движка
func (e *GameEngine) RecordVirtualSession(ctx context.Context, payer identity.Identity, plotRef identity.Identity, revenue uint64) (err error) {
	defer func() { observe(gameEngineName, "record_virtual_session", err) }()
	err = e.db.Atomic(ctx, func(tx interf.Tx) error {
		var rec model.GameEngineAuthority
		if err := tx.Get(ctx, identity.GameEngine(), &rec); err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return model.ErrGameEngineNotInitialized
			}
			return err
		}
		if rec.Authority != e.identity {
			return fmt.Errorf("game engine record belongs to %s: %w", rec.Authority, model.ErrUnauthorized)
		}
		return e.plots.RecordSessionTx(ctx, tx, plotRef, payer, revenue, e.identity)
	})
	if err != nil {
		e.logger.Warn("Virtual session rejected",
			zap.String("plot", plotRef.String()),
			zap.String("payer", payer.String()),
			zap.Error(err),
		)
		return err
	}
	return nil
}
