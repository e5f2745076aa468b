package services

import (
	"context"
	"fmt"
	"time"

	"github.com/glkeru/amperequest/internal/checked"
	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"go.uber.org/zap"
)

// координаты в градусах * 1_000_000
const (
	MaxLatitude  = 90_000_000
	MaxLongitude = 180_000_000
)

const plotRegistryName = "plot_registry"

var validChargerPowers = map[uint32]struct{}{3: {}, 7: {}, 11: {}, 22: {}, 30: {}}

func ValidChargerPower(powerKW uint32) bool {
	_, ok := validChargerPowers[powerKW]
	return ok
}

// Реестр виртуальных участков
type PlotRegistry struct {
	logger   *zap.Logger
	db       interf.RecordStore
	transfer interf.Transferer
	notifier notifier
	identity identity.Identity
	now      func() time.Time
}

func NewPlotRegistry(logger *zap.Logger, db interf.RecordStore, transfer interf.Transferer, events interf.Publisher) *PlotRegistry {
	return &PlotRegistry{
		logger:   logger,
		db:       db,
		transfer: transfer,
		notifier: notifier{logger: logger, events: events},
		identity: identity.ServiceVirtualPlot,
		now:      time.Now,
	}
}

// Покупка участка, повторная покупка того же plot_id отклоняется хранилищем
func (p *PlotRegistry) PurchasePlot(ctx context.Context, buyer identity.Identity, plotID uint32, latitude, longitude int32, price uint64) (id identity.Identity, plot model.VirtualPlot, err error) {
	defer func() { observe(plotRegistryName, "purchase_plot", err) }()
	if buyer.IsNil() {
		return identity.Nil, plot, fmt.Errorf("buyer is empty: %w", model.ErrInvalidInput)
	}
	if latitude < -MaxLatitude || latitude > MaxLatitude || longitude < -MaxLongitude || longitude > MaxLongitude {
		return identity.Nil, plot, fmt.Errorf("coordinates (%d, %d) out of range: %w", latitude, longitude, model.ErrInvalidInput)
	}
	id = identity.Plot(plotID)
	plot = model.VirtualPlot{
		Owner:         buyer,
		PlotID:        plotID,
		Latitude:      latitude,
		Longitude:     longitude,
		PurchasePrice: price,
	}
	err = p.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := tx.Create(ctx, id, &plot); err != nil {
			return err
		}
		if err := p.transfer.Transfer(ctx, tx, buyer, identity.Treasury(), price); err != nil {
			return err
		}
		p.notifier.publish(tx, newEvent(model.EventPlotPurchased, id, buyer, price, p.now()))
		return nil
	})
	if err != nil {
		return identity.Nil, model.VirtualPlot{}, err
	}
	p.logger.Info("Plot purchased",
		zap.Uint32("plot", plotID),
		zap.Int32("latitude", latitude),
		zap.Int32("longitude", longitude),
		zap.Uint64("price", price),
	)
	return id, plot, nil
}

// Установка зарядки на своем участке
func (p *PlotRegistry) InstallCharger(ctx context.Context, owner identity.Identity, plotRef identity.Identity, powerKW uint32, cost uint64) (plot model.VirtualPlot, err error) {
	defer func() { observe(plotRegistryName, "install_charger", err) }()
	if !ValidChargerPower(powerKW) {
		return plot, fmt.Errorf("%d kW: %w", powerKW, model.ErrInvalidChargerPower)
	}
	err = p.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := p.ownedPlot(ctx, tx, owner, plotRef, &plot); err != nil {
			return err
		}
		plot.ChargerPowerKW = powerKW
		plot.Operational = true
		if err := tx.Put(ctx, plotRef, &plot); err != nil {
			return err
		}
		if err := p.transfer.Transfer(ctx, tx, owner, identity.Treasury(), cost); err != nil {
			return err
		}
		p.notifier.publish(tx, newEvent(model.EventChargerInstalled, plotRef, owner, cost, p.now()))
		return nil
	})
	if err != nil {
		return model.VirtualPlot{}, err
	}
	p.logger.Info("Charger installed", zap.Uint32("plot", plot.PlotID), zap.Uint32("power_kw", powerKW))
	return plot, nil
}

// Апгрейд только на большую мощность
func (p *PlotRegistry) UpgradeCharger(ctx context.Context, owner identity.Identity, plotRef identity.Identity, newPowerKW uint32, cost uint64) (plot model.VirtualPlot, err error) {
	defer func() { observe(plotRegistryName, "upgrade_charger", err) }()
	var oldPower uint32
	err = p.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := p.ownedPlot(ctx, tx, owner, plotRef, &plot); err != nil {
			return err
		}
		if plot.ChargerPowerKW == 0 {
			return fmt.Errorf("plot %d: %w", plot.PlotID, model.ErrNoChargerInstalled)
		}
		if newPowerKW <= plot.ChargerPowerKW {
			return fmt.Errorf("%d kW -> %d kW: %w", plot.ChargerPowerKW, newPowerKW, model.ErrInvalidUpgrade)
		}
		if !ValidChargerPower(newPowerKW) {
			return fmt.Errorf("%d kW: %w", newPowerKW, model.ErrInvalidChargerPower)
		}
		oldPower = plot.ChargerPowerKW
		plot.ChargerPowerKW = newPowerKW
		if err := tx.Put(ctx, plotRef, &plot); err != nil {
			return err
		}
		if err := p.transfer.Transfer(ctx, tx, owner, identity.Treasury(), cost); err != nil {
			return err
		}
		p.notifier.publish(tx, newEvent(model.EventChargerUpgraded, plotRef, owner, cost, p.now()))
		return nil
	})
	if err != nil {
		return model.VirtualPlot{}, err
	}
	p.logger.Info("Charger upgraded",
		zap.Uint32("plot", plot.PlotID),
		zap.Uint32("from_kw", oldPower),
		zap.Uint32("to_kw", newPowerKW),
	)
	return plot, nil
}

// Выручка с сессии, только от игрового движка
func (p *PlotRegistry) RecordSession(ctx context.Context, plotRef identity.Identity, payer identity.Identity, revenue uint64, authority identity.Identity) (err error) {
	defer func() { observe(plotRegistryName, "record_session", err) }()
	return p.db.Atomic(ctx, func(tx interf.Tx) error {
		return p.RecordSessionTx(ctx, tx, plotRef, payer, revenue, authority)
	})
}

func (p *PlotRegistry) RecordSessionTx(ctx context.Context, tx interf.Tx, plotRef identity.Identity, payer identity.Identity, revenue uint64, authority identity.Identity) error {
	if err := identity.SessionRecorders.Verify(authority); err != nil {
		unauthorizedCallsTotal.WithLabelValues(identity.SessionRecorders.Name()).Inc()
		p.logger.Warn("Unauthorized caller",
			zap.String("operation", "record_session"),
			zap.String("caller", authority.String()),
		)
		return err
	}
	var plot model.VirtualPlot
	if err := tx.Get(ctx, plotRef, &plot); err != nil {
		return err
	}
	if !plot.Operational {
		return fmt.Errorf("plot %d: %w", plot.PlotID, model.ErrPlotNotOperational)
	}
	var err error
	if plot.TotalRevenue, err = checked.Add(plot.TotalRevenue, revenue); err != nil {
		return fmt.Errorf("plot revenue: %w", err)
	}
	if plot.TotalSessions, err = checked.Add(plot.TotalSessions, 1); err != nil {
		return fmt.Errorf("plot sessions: %w", err)
	}
	if err := tx.Put(ctx, plotRef, &plot); err != nil {
		return err
	}
	// выручка копится на балансе самого участка
	if err := p.transfer.Transfer(ctx, tx, payer, plotRef, revenue); err != nil {
		return err
	}
	p.notifier.publish(tx, newEvent(model.EventPlotSessionRecorded, plotRef, payer, revenue, p.now()))
	tx.OnCommit(func() {
		p.logger.Info("Plot session recorded",
			zap.Uint32("plot", plot.PlotID),
			zap.Uint64("revenue", revenue),
			zap.Uint64("total_revenue", plot.TotalRevenue),
		)
	})
	return nil
}

// Вывод накопленной выручки владельцу
func (p *PlotRegistry) WithdrawRevenue(ctx context.Context, owner identity.Identity, plotRef identity.Identity, amount uint64) (plot model.VirtualPlot, err error) {
	defer func() { observe(plotRegistryName, "withdraw_revenue", err) }()
	err = p.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := p.ownedPlot(ctx, tx, owner, plotRef, &plot); err != nil {
			return err
		}
		if plot.TotalRevenue < amount {
			return fmt.Errorf("plot %d has %d, requested %d: %w", plot.PlotID, plot.TotalRevenue, amount, model.ErrInsufficientRevenue)
		}
		revenue, err := checked.Sub(plot.TotalRevenue, amount)
		if err != nil {
			return fmt.Errorf("plot revenue: %w", err)
		}
		plot.TotalRevenue = revenue
		if err := tx.Put(ctx, plotRef, &plot); err != nil {
			return err
		}
		if err := p.transfer.Transfer(ctx, tx, plotRef, owner, amount); err != nil {
			return err
		}
		p.notifier.publish(tx, newEvent(model.EventRevenueWithdrawn, plotRef, owner, amount, p.now()))
		return nil
	})
	if err != nil {
		return model.VirtualPlot{}, err
	}
	p.logger.Info("Revenue withdrawn", zap.Uint32("plot", plot.PlotID), zap.Uint64("amount", amount))
	return plot, nil
}

func (p *PlotRegistry) ownedPlot(ctx context.Context, tx interf.Tx, owner identity.Identity, plotRef identity.Identity, plot *model.VirtualPlot) error {
	if err := tx.Get(ctx, plotRef, plot); err != nil {
		return err
	}
	if plot.Owner != owner {
		return fmt.Errorf("plot %d: %w", plot.PlotID, model.ErrNotOwner)
	}
	return nil
}

func (p *PlotRegistry) GetPlot(ctx context.Context, plotRef identity.Identity) (plot model.VirtualPlot, err error) {
	err = p.db.Read(ctx, plotRef, &plot)
	return plot, err
}
