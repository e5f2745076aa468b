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
	MaxChargerCodeLen = 20
	WhPerPoint        = 100  // 1 балл за 100 Вт*ч
	WhPerKWh          = 1000 // остаток ниже 1 кВт*ч отбрасывается
)

const sessionLedgerName = "session_ledger"

// Учет сессий зарядки и счетов баллов
type SessionLedger struct {
	logger   *zap.Logger
	db       interf.RecordStore
	cache    interf.CacheStorage
	notifier notifier
	vouchers interf.VoucherRegistry
	identity identity.Identity
	now      func() time.Time
}

func NewSessionLedger(logger *zap.Logger, db interf.RecordStore, cache interf.CacheStorage, events interf.Publisher) *SessionLedger {
	return &SessionLedger{
		logger:   logger,
		db:       db,
		cache:    cache,
		notifier: notifier{logger, cache, events},
		identity: identity.ServiceSessionLedger,
		now:      time.Now,
	}
}

// Реестр ваучеров маркетплейса, вызывается при погашении
func (s *SessionLedger) UseVoucherRegistry(vouchers interf.VoucherRegistry) {
	s.vouchers = vouchers
}

func (s *SessionLedger) Identity() identity.Identity {
	return s.identity
}

// Создание счета пользователя, повторный вызов - ошибка
func (s *SessionLedger) InitUser(ctx context.Context, authority identity.Identity) (acc model.UserAccount, err error) {
	defer func() { observe(sessionLedgerName, "init_user", err) }()
	if authority.IsNil() {
		return acc, fmt.Errorf("user authority is empty: %w", model.ErrInvalidInput)
	}
	acc = model.UserAccount{Authority: authority}
	err = s.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := tx.Create(ctx, identity.UserAccount(authority), &acc); err != nil {
			return err
		}
		s.notifier.publish(tx, newEvent(model.EventUserInitialized, authority, authority, 0, s.now()))
		return nil
	})
	if err != nil {
		return model.UserAccount{}, err
	}
	s.logger.Info("User initialized", zap.String("user", authority.String()))
	return acc, nil
}

// Начало сессии. Ключ (владелец, время, nonce), чтобы сессии в одну секунду не пересекались
func (s *SessionLedger) StartSession(ctx context.Context, owner identity.Identity, chargerCode string, powerKW uint32, pricePerKWh uint64, timestamp int64, nonce uint32) (id identity.Identity, session model.ChargingSession, err error) {
	defer func() { observe(sessionLedgerName, "start_session", err) }()
	if owner.IsNil() {
		return identity.Nil, session, fmt.Errorf("session owner is empty: %w", model.ErrInvalidInput)
	}
	if chargerCode == "" || len(chargerCode) > MaxChargerCodeLen {
		return identity.Nil, session, fmt.Errorf("charger code must be 1..%d bytes: %w", MaxChargerCodeLen, model.ErrInvalidInput)
	}

	id = identity.Session(owner, timestamp, nonce)
	session = model.ChargingSession{
		Owner:          owner,
		ChargerCode:    chargerCode,
		ChargerPowerKW: powerKW,
		PricePerKWh:    pricePerKWh,
		StartTime:      timestamp,
		Nonce:          nonce,
		Active:         true,
	}
	err = s.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := tx.Create(ctx, id, &session); err != nil {
			return err
		}
		s.notifier.publish(tx, newEvent(model.EventSessionStarted, id, owner, 0, s.now()))
		return nil
	})
	if err != nil {
		return identity.Nil, model.ChargingSession{}, err
	}
	s.logger.Info("Session started",
		zap.String("session", id.String()),
		zap.String("charger", chargerCode),
		zap.Uint32("nonce", nonce),
	)
	return id, session, nil
}

// Показания счетчика. Дробная часть ниже 100 Вт*ч не переносится
func (s *SessionLedger) UpdateSession(ctx context.Context, owner identity.Identity, id identity.Identity, energyWhDelta uint64) (session model.ChargingSession, err error) {
	defer func() { observe(sessionLedgerName, "update_session", err) }()
	err = s.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := s.activeSession(ctx, tx, owner, id, &session); err != nil {
			return err
		}
		energy, err := checked.Add(session.EnergyWh, energyWhDelta)
		if err != nil {
			return fmt.Errorf("session energy: %w", err)
		}
		points, err := checked.Add(session.PointsEarned, energyWhDelta/WhPerPoint)
		if err != nil {
			return fmt.Errorf("session points: %w", err)
		}
		session.EnergyWh = energy
		session.PointsEarned = points
		if err := tx.Put(ctx, id, &session); err != nil {
			return err
		}
		s.notifier.publish(tx, newEvent(model.EventSessionUpdated, id, owner, energyWhDelta, s.now()))
		return nil
	})
	if err != nil {
		return model.ChargingSession{}, err
	}
	s.logger.Debug("Session updated",
		zap.String("session", id.String()),
		zap.Uint64("energy_wh", session.EnergyWh),
		zap.Uint64("points", session.PointsEarned),
	)
	return session, nil
}

// Завершение сессии: баллы переносятся на счет пользователя, сессия больше не меняется
func (s *SessionLedger) EndSession(ctx context.Context, owner identity.Identity, id identity.Identity) (session model.ChargingSession, acc model.UserAccount, err error) {
	defer func() { observe(sessionLedgerName, "end_session", err) }()
	err = s.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := s.activeSession(ctx, tx, owner, id, &session); err != nil {
			return err
		}
		if err := tx.Get(ctx, identity.UserAccount(session.Owner), &acc); err != nil {
			return err
		}

		var err error
		if acc.TotalPoints, err = checked.Add(acc.TotalPoints, session.PointsEarned); err != nil {
			return fmt.Errorf("total points: %w", err)
		}
		if acc.AvailablePoints, err = checked.Add(acc.AvailablePoints, session.PointsEarned); err != nil {
			return fmt.Errorf("available points: %w", err)
		}
		if acc.TotalEnergyKWh, err = checked.Add(acc.TotalEnergyKWh, session.EnergyWh/WhPerKWh); err != nil {
			return fmt.Errorf("total energy: %w", err)
		}
		if acc.TotalSessions, err = checked.Add(acc.TotalSessions, 1); err != nil {
			return fmt.Errorf("total sessions: %w", err)
		}
		session.Active = false
		session.EndTime = s.now().Unix()

		if err := tx.Put(ctx, id, &session); err != nil {
			return err
		}
		if err := tx.Put(ctx, identity.UserAccount(session.Owner), &acc); err != nil {
			return err
		}
		s.notifier.invalidate(tx, session.Owner)
		s.notifier.publish(tx, newEvent(model.EventSessionEnded, id, owner, session.PointsEarned, s.now()))
		return nil
	})
	if err != nil {
		return model.ChargingSession{}, model.UserAccount{}, err
	}
	pointsMovedTotal.WithLabelValues("credit").Add(float64(session.PointsEarned))
	s.logger.Info("Session ended",
		zap.String("session", id.String()),
		zap.String("user", session.Owner.String()),
		zap.Uint64("energy_wh", session.EnergyWh),
		zap.Uint64("points", session.PointsEarned),
	)
	return session, acc, nil
}

func (s *SessionLedger) activeSession(ctx context.Context, tx interf.Tx, owner identity.Identity, id identity.Identity, session *model.ChargingSession) error {
	if err := tx.Get(ctx, id, session); err != nil {
		return err
	}
	if session.Owner != owner {
		return fmt.Errorf("session %s: %w", id, model.ErrNotOwner)
	}
	if !session.Active {
		return fmt.Errorf("session %s: %w", id, model.ErrSessionNotActive)
	}
	return nil
}

// Начисление баллов доверенным сервисом
func (s *SessionLedger) CreditPoints(ctx context.Context, user identity.Identity, amount uint64, caller identity.Identity) (err error) {
	defer func() { observe(sessionLedgerName, "credit_points", err) }()
	return s.db.Atomic(ctx, func(tx interf.Tx) error {
		return s.CreditPointsTx(ctx, tx, user, amount, caller)
	})
}

func (s *SessionLedger) CreditPointsTx(ctx context.Context, tx interf.Tx, user identity.Identity, amount uint64, caller identity.Identity) error {
	if err := s.verify(identity.PointsWriters, caller, "credit_points"); err != nil {
		return err
	}
	var acc model.UserAccount
	if err := tx.Get(ctx, identity.UserAccount(user), &acc); err != nil {
		return err
	}
	total, err := checked.Add(acc.TotalPoints, amount)
	if err != nil {
		return fmt.Errorf("total points: %w", err)
	}
	available, err := checked.Add(acc.AvailablePoints, amount)
	if err != nil {
		return fmt.Errorf("available points: %w", err)
	}
	acc.TotalPoints = total
	acc.AvailablePoints = available
	if err := tx.Put(ctx, identity.UserAccount(user), &acc); err != nil {
		return err
	}
	s.notifier.invalidate(tx, user)
	s.notifier.publish(tx, newEvent(model.EventPointsCredited, user, caller, amount, s.now()))
	tx.OnCommit(func() {
		pointsMovedTotal.WithLabelValues("credit").Add(float64(amount))
		s.logger.Info("Points credited",
			zap.String("user", user.String()),
			zap.String("caller", caller.String()),
			zap.Uint64("points", amount),
		)
	})
	return nil
}

// Списание только из доступных баллов, всего начислено не меняется
func (s *SessionLedger) DebitPoints(ctx context.Context, user identity.Identity, amount uint64, caller identity.Identity) (err error) {
	defer func() { observe(sessionLedgerName, "debit_points", err) }()
	return s.db.Atomic(ctx, func(tx interf.Tx) error {
		return s.DebitPointsTx(ctx, tx, user, amount, caller)
	})
}

func (s *SessionLedger) DebitPointsTx(ctx context.Context, tx interf.Tx, user identity.Identity, amount uint64, caller identity.Identity) error {
	if err := s.verify(identity.PointsWriters, caller, "debit_points"); err != nil {
		return err
	}
	var acc model.UserAccount
	if err := tx.Get(ctx, identity.UserAccount(user), &acc); err != nil {
		return err
	}
	if acc.AvailablePoints < amount {
		return fmt.Errorf("user %s has %d, requested %d: %w", user, acc.AvailablePoints, amount, model.ErrInsufficientPoints)
	}
	available, err := checked.Sub(acc.AvailablePoints, amount)
	if err != nil {
		return fmt.Errorf("available points: %w", err)
	}
	acc.AvailablePoints = available
	if err := tx.Put(ctx, identity.UserAccount(user), &acc); err != nil {
		return err
	}
	s.notifier.invalidate(tx, user)
	s.notifier.publish(tx, newEvent(model.EventPointsDebited, user, caller, amount, s.now()))
	tx.OnCommit(func() {
		pointsMovedTotal.WithLabelValues("debit").Add(float64(amount))
		s.logger.Info("Points debited",
			zap.String("user", user.String()),
			zap.String("caller", caller.String()),
			zap.Uint64("points", amount),
		)
	})
	return nil
}

// Погашение ваучера. Запись о погашении, начисление и отметка в маркетплейсе
// выполняются в одной транзакции; повторное создание записи отклоняется хранилищем
func (s *SessionLedger) RedeemVoucher(ctx context.Context, user identity.Identity, voucher identity.Identity) (redemption model.VoucherRedemption, err error) {
	defer func() { observe(sessionLedgerName, "redeem_voucher", err) }()
	if s.vouchers == nil {
		return redemption, fmt.Errorf("voucher registry is not configured")
	}
	err = s.db.Atomic(ctx, func(tx interf.Tx) error {
		var v model.PointsVoucher
		if err := tx.Get(ctx, voucher, &v); err != nil {
			if errors.Is(err, model.ErrInvalidInput) {
				return fmt.Errorf("%w: %v", model.ErrInvalidVoucherData, err)
			}
			return err
		}
		if v.Issuer != identity.ServiceMarketplace {
			return fmt.Errorf("voucher %s issued by %s: %w", voucher, v.Issuer, model.ErrInvalidVoucherProgram)
		}
		if v.PointsAmount == 0 || v.Buyer.IsNil() {
			return fmt.Errorf("voucher %s: %w", voucher, model.ErrInvalidVoucherData)
		}

		var acc model.UserAccount
		if err := tx.Get(ctx, identity.UserAccount(user), &acc); err != nil {
			return err
		}
		if v.Buyer != acc.Authority {
			return fmt.Errorf("voucher %s: %w", voucher, model.ErrUnauthorizedVoucher)
		}

		redemption = model.VoucherRedemption{
			Voucher:      voucher,
			User:         acc.Authority,
			PointsAmount: v.PointsAmount,
			RedeemedAt:   s.now().Unix(),
		}
		if err := tx.Create(ctx, identity.Redemption(voucher), &redemption); err != nil {
			return err
		}

		var err error
		if acc.TotalPoints, err = checked.Add(acc.TotalPoints, v.PointsAmount); err != nil {
			return fmt.Errorf("total points: %w", err)
		}
		if acc.AvailablePoints, err = checked.Add(acc.AvailablePoints, v.PointsAmount); err != nil {
			return fmt.Errorf("available points: %w", err)
		}
		if err := tx.Put(ctx, identity.UserAccount(user), &acc); err != nil {
			return err
		}

		if err := s.vouchers.MarkVoucherRedeemedTx(ctx, tx, voucher, s.identity); err != nil {
			return err
		}
		s.notifier.invalidate(tx, user)
		s.notifier.publish(tx, newEvent(model.EventVoucherRedeemed, voucher, user, v.PointsAmount, s.now()))
		return nil
	})
	if err != nil {
		s.logger.Warn("Voucher redemption rejected",
			zap.String("voucher", voucher.String()),
			zap.String("user", user.String()),
			zap.Error(err),
		)
		return model.VoucherRedemption{}, err
	}
	pointsMovedTotal.WithLabelValues("credit").Add(float64(redemption.PointsAmount))
	s.logger.Info("Voucher redeemed",
		zap.String("voucher", voucher.String()),
		zap.String("user", user.String()),
		zap.Uint64("points", redemption.PointsAmount),
	)
	return redemption, nil
}

func (s *SessionLedger) verify(list identity.AllowList, caller identity.Identity, operation string) error {
	if err := list.Verify(caller); err != nil {
		unauthorizedCallsTotal.WithLabelValues(list.Name()).Inc()
		s.logger.Warn("Unauthorized caller",
			zap.String("operation", operation),
			zap.String("caller", caller.String()),
		)
		return err
	}
	return nil
}

func (s *SessionLedger) GetUser(ctx context.Context, user identity.Identity) (acc model.UserAccount, err error) {
	err = s.db.Read(ctx, identity.UserAccount(user), &acc)
	return acc, err
}

func (s *SessionLedger) GetSession(ctx context.Context, id identity.Identity) (session model.ChargingSession, err error) {
	err = s.db.Read(ctx, id, &session)
	return session, err
}

func (s *SessionLedger) GetRedemption(ctx context.Context, voucher identity.Identity) (redemption model.VoucherRedemption, err error) {
	err = s.db.Read(ctx, identity.Redemption(voucher), &redemption)
	return redemption, err
}

// Получить баланс, сначала из кэша
func (s *SessionLedger) Balance(ctx context.Context, user identity.Identity) (balance model.Balance, err error) {
	if s.cache != nil {
		balance, err = s.cache.GetBalance(ctx, user.String())
		if err == nil {
			return balance, nil
		}
		if !errors.Is(err, model.ErrNotFound) {
			s.logger.Error("Get cache error", zap.Error(err), zap.String("user", user.String()))
		}
	}

	acc, err := s.GetUser(ctx, user)
	if err != nil {
		return model.Balance{}, err
	}
	balance = model.Balance{Total: acc.TotalPoints, Available: acc.AvailablePoints}

	if s.cache != nil {
		if err := s.cache.SetBalance(ctx, user.String(), balance); err != nil {
			s.logger.Error("Set cache error", zap.Error(err), zap.String("user", user.String()))
		}
	}
	return balance, nil
}
