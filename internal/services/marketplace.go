package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glkeru/amperequest/internal/checked"
	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"go.uber.org/zap"
)

const (
	DefaultPricePerPoint       = 1_000_000
	MarketplaceDiscountPercent = 50
)

const marketplaceName = "marketplace"

// Маркетплейс баллов: продажа, объявления, ваучеры
type Marketplace struct {
	logger   *zap.Logger
	db       interf.RecordStore
	transfer interf.Transferer
	ledger   interf.PointsLedger
	notifier notifier
	identity identity.Identity
	now      func() time.Time
}

func NewMarketplace(logger *zap.Logger, db interf.RecordStore, transfer interf.Transferer, ledger interf.PointsLedger, events interf.Publisher) *Marketplace {
	return &Marketplace{
		logger:   logger,
		db:       db,
		transfer: transfer,
		ledger:   ledger,
		notifier: notifier{logger: logger, events: events},
		identity: identity.ServiceMarketplace,
		now:      time.Now,
	}
}

func (m *Marketplace) Identity() identity.Identity {
	return m.identity
}

// Создание маркетплейса с начальной ценой, однократно
func (m *Marketplace) InitMarketplace(ctx context.Context, authority identity.Identity) (market model.Marketplace, err error) {
	defer func() { observe(marketplaceName, "init_marketplace", err) }()
	if authority.IsNil() {
		return market, fmt.Errorf("marketplace authority is empty: %w", model.ErrInvalidInput)
	}
	market = model.Marketplace{
		Authority:     authority,
		PricePerPoint: DefaultPricePerPoint,
	}
	err = m.db.Atomic(ctx, func(tx interf.Tx) error {
		return tx.Create(ctx, identity.Marketplace(), &market)
	})
	if err != nil {
		return model.Marketplace{}, err
	}
	m.logger.Info("Marketplace initialized", zap.Uint64("price_per_point", market.PricePerPoint))
	return market, nil
}

// Объявление о продаже. Баллы продавца не проверяются и не резервируются,
// списание происходит при покупке
func (m *Marketplace) CreateListing(ctx context.Context, seller identity.Identity, pointsAmount uint64, pricePerPoint uint64, timestamp int64) (id identity.Identity, listing model.PointsListing, err error) {
	defer func() { observe(marketplaceName, "create_listing", err) }()
	if seller.IsNil() || pointsAmount == 0 || pricePerPoint == 0 {
		return identity.Nil, listing, fmt.Errorf("listing needs a seller, points and price: %w", model.ErrInvalidInput)
	}
	id = identity.Listing(seller, timestamp)
	listing = model.PointsListing{
		Issuer:        m.identity,
		Seller:        seller,
		PointsAmount:  pointsAmount,
		PricePerPoint: pricePerPoint,
		Active:        true,
		CreatedAt:     timestamp,
	}
	err = m.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := tx.Create(ctx, id, &listing); err != nil {
			return err
		}
		m.notifier.publish(tx, newEvent(model.EventListingCreated, id, seller, pointsAmount, m.now()))
		return nil
	})
	if err != nil {
		return identity.Nil, model.PointsListing{}, err
	}
	m.logger.Info("Listing created",
		zap.String("listing", id.String()),
		zap.String("seller", seller.String()),
		zap.Uint64("points", pointsAmount),
	)
	return id, listing, nil
}

// Покупка у маркетплейса со скидкой 50%
func (m *Marketplace) BuyFromMarketplace(ctx context.Context, buyer identity.Identity, pointsAmount uint64, timestamp int64) (id identity.Identity, voucher model.PointsVoucher, err error) {
	defer func() { observe(marketplaceName, "buy_from_marketplace", err) }()
	if buyer.IsNil() || pointsAmount == 0 {
		return identity.Nil, voucher, fmt.Errorf("purchase needs a buyer and points: %w", model.ErrInvalidInput)
	}
	id = identity.Voucher(buyer, timestamp)
	var price uint64
	err = m.db.Atomic(ctx, func(tx interf.Tx) error {
		var market model.Marketplace
		if err := tx.Get(ctx, identity.Marketplace(), &market); err != nil {
			return err
		}
		// переполнение отменяет покупку до перевода
		full, err := checked.Mul(market.PricePerPoint, pointsAmount)
		if err != nil {
			return fmt.Errorf("full price: %w", err)
		}
		price, err = checked.Percent(full, 100-MarketplaceDiscountPercent)
		if err != nil {
			return fmt.Errorf("discounted price: %w", err)
		}
		if market.TotalPointsSold, err = checked.Add(market.TotalPointsSold, pointsAmount); err != nil {
			return fmt.Errorf("points sold: %w", err)
		}
		if market.TotalRevenue, err = checked.Add(market.TotalRevenue, price); err != nil {
			return fmt.Errorf("revenue: %w", err)
		}

		voucher = model.PointsVoucher{
			Issuer:       m.identity,
			Buyer:        buyer,
			PointsAmount: pointsAmount,
			CreatedAt:    timestamp,
		}
		if err := tx.Create(ctx, id, &voucher); err != nil {
			return err
		}
		if err := tx.Put(ctx, identity.Marketplace(), &market); err != nil {
			return err
		}
		// перевод последним шагом
		if err := m.transfer.Transfer(ctx, tx, buyer, identity.Marketplace(), price); err != nil {
			return err
		}
		m.notifier.publish(tx, newEvent(model.EventVoucherIssued, id, buyer, pointsAmount, m.now()))
		return nil
	})
	if err != nil {
		return identity.Nil, model.PointsVoucher{}, err
	}
	m.logger.Info("Points sold",
		zap.String("voucher", id.String()),
		zap.String("buyer", buyer.String()),
		zap.Uint64("points", pointsAmount),
		zap.Uint64("price", price),
	)
	return id, voucher, nil
}

// Покупка по объявлению. Списание баллов продавца, выпуск ваучера, закрытие
// объявления и перевод продавцу - одна транзакция
func (m *Marketplace) BuyFromListing(ctx context.Context, buyer identity.Identity, listingID identity.Identity, timestamp int64) (id identity.Identity, voucher model.PointsVoucher, err error) {
	defer func() { observe(marketplaceName, "buy_from_listing", err) }()
	if buyer.IsNil() {
		return identity.Nil, voucher, fmt.Errorf("buyer is empty: %w", model.ErrInvalidInput)
	}
	id = identity.Voucher(buyer, timestamp)
	var listing model.PointsListing
	var total uint64
	err = m.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := tx.Get(ctx, listingID, &listing); err != nil {
			return err
		}
		if !listing.Active {
			return fmt.Errorf("listing %s: %w", listingID, model.ErrListingNotActive)
		}
		if listing.Seller == buyer {
			return fmt.Errorf("seller cannot buy own listing: %w", model.ErrInvalidInput)
		}
		var err error
		total, err = checked.Mul(listing.PricePerPoint, listing.PointsAmount)
		if err != nil {
			return fmt.Errorf("listing price: %w", err)
		}

		voucher = model.PointsVoucher{
			Issuer:       m.identity,
			Buyer:        buyer,
			PointsAmount: listing.PointsAmount,
			CreatedAt:    timestamp,
		}
		if err := tx.Create(ctx, id, &voucher); err != nil {
			return err
		}
		listing.Active = false
		if err := tx.Put(ctx, listingID, &listing); err != nil {
			return err
		}
		if err := m.ledger.DebitPointsTx(ctx, tx, listing.Seller, listing.PointsAmount, m.identity); err != nil {
			return err
		}
		if err := m.transfer.Transfer(ctx, tx, buyer, listing.Seller, total); err != nil {
			return err
		}
		m.notifier.publish(tx,
			newEvent(model.EventListingSold, listingID, buyer, listing.PointsAmount, m.now()),
			newEvent(model.EventVoucherIssued, id, buyer, listing.PointsAmount, m.now()),
		)
		return nil
	})
	if err != nil {
		return identity.Nil, model.PointsVoucher{}, err
	}
	m.logger.Info("Listing sold",
		zap.String("listing", listingID.String()),
		zap.String("voucher", id.String()),
		zap.String("buyer", buyer.String()),
		zap.String("seller", listing.Seller.String()),
		zap.Uint64("price", total),
	)
	return id, voucher, nil
}

// Отмена объявления продавцом
func (m *Marketplace) CancelListing(ctx context.Context, seller identity.Identity, listingID identity.Identity) (err error) {
	defer func() { observe(marketplaceName, "cancel_listing", err) }()
	err = m.db.Atomic(ctx, func(tx interf.Tx) error {
		var listing model.PointsListing
		if err := tx.Get(ctx, listingID, &listing); err != nil {
			return err
		}
		if !listing.Active {
			return fmt.Errorf("listing %s: %w", listingID, model.ErrListingNotActive)
		}
		if listing.Seller != seller {
			return fmt.Errorf("listing %s: %w", listingID, model.ErrNotOwner)
		}
		listing.Active = false
		if err := tx.Put(ctx, listingID, &listing); err != nil {
			return err
		}
		m.notifier.publish(tx, newEvent(model.EventListingCancelled, listingID, seller, 0, m.now()))
		return nil
	})
	if err != nil {
		return err
	}
	m.logger.Info("Listing cancelled", zap.String("listing", listingID.String()))
	return nil
}

// Отметка о погашении, только от учета сессий. Ставится только при наличии записи
// о погашении: учет сессий делает это в транзакции погашения
func (m *Marketplace) MarkVoucherRedeemed(ctx context.Context, voucher identity.Identity, caller identity.Identity) (err error) {
	defer func() { observe(marketplaceName, "mark_voucher_redeemed", err) }()
	return m.db.Atomic(ctx, func(tx interf.Tx) error {
		return m.MarkVoucherRedeemedTx(ctx, tx, voucher, caller)
	})
}

func (m *Marketplace) MarkVoucherRedeemedTx(ctx context.Context, tx interf.Tx, voucher identity.Identity, caller identity.Identity) error {
	if err := identity.VoucherRedeemers.Verify(caller); err != nil {
		unauthorizedCallsTotal.WithLabelValues(identity.VoucherRedeemers.Name()).Inc()
		m.logger.Warn("Unauthorized caller",
			zap.String("operation", "mark_voucher_redeemed"),
			zap.String("caller", caller.String()),
		)
		return err
	}
	var v model.PointsVoucher
	if err := tx.Get(ctx, voucher, &v); err != nil {
		return err
	}
	if v.Redeemed {
		return fmt.Errorf("voucher %s: %w", voucher, model.ErrVoucherAlreadyRedeemed)
	}
	// отметка не расходится с записью о погашении
	var redemption model.VoucherRedemption
	if err := tx.Get(ctx, identity.Redemption(voucher), &redemption); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("voucher %s: %w", voucher, model.ErrRedemptionMissing)
		}
		return err
	}
	v.Redeemed = true
	return tx.Put(ctx, voucher, &v)
}

func (m *Marketplace) GetMarketplace(ctx context.Context) (market model.Marketplace, err error) {
	err = m.db.Read(ctx, identity.Marketplace(), &market)
	return market, err
}

func (m *Marketplace) GetListing(ctx context.Context, id identity.Identity) (listing model.PointsListing, err error) {
	err = m.db.Read(ctx, id, &listing)
	return listing, err
}

func (m *Marketplace) GetVoucher(ctx context.Context, id identity.Identity) (voucher model.PointsVoucher, err error) {
	err = m.db.Read(ctx, id, &voucher)
	return voucher, err
}
