package services

import (
	interf "github.com/glkeru/amperequest/internal/interfaces"
	"go.uber.org/zap"
)

// Все сервисы в одном процессе поверх общего хранилища
type Platform struct {
	Ledger    *SessionLedger
	Market    *Marketplace
	Plots     *PlotRegistry
	Engine    *GameEngine
	Value     *ValueLedger
	Analytics *Analytics
}

// transfer == nil - переводы через ValueLedger в том же хранилище
func NewPlatform(logger *zap.Logger, db interf.RecordStore, transfer interf.Transferer, cache interf.CacheStorage, events interf.Publisher) *Platform {
	value := NewValueLedger(logger.Named("value"), db)
	if transfer == nil {
		transfer = value
	}
	ledger := NewSessionLedger(logger.Named("ledger"), db, cache, events)
	market := NewMarketplace(logger.Named("marketplace"), db, transfer, ledger, events)
	ledger.UseVoucherRegistry(market)
	plots := NewPlotRegistry(logger.Named("plots"), db, transfer, events)
	engine := NewGameEngine(logger.Named("engine"), db, plots)

	return &Platform{
		Ledger:    ledger,
		Market:    market,
		Plots:     plots,
		Engine:    engine,
		Value:     value,
		Analytics: NewAnalytics(db),
	}
}
