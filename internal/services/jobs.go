package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	model "github.com/glkeru/amperequest/internal/models"
	"go.uber.org/zap"
)

// повторов при проигранной гонке записи
const conflictRetries = 5

func parseReading(payload []byte) (reading model.MeterReading, err error) {
	if err := json.Unmarshal(payload, &reading); err != nil {
		return reading, fmt.Errorf("meter reading: %v: %w", err, model.ErrInvalidInput)
	}
	if reading.Owner.IsNil() || reading.Session.IsNil() {
		return reading, fmt.Errorf("meter reading: owner and session are required: %w", model.ErrInvalidInput)
	}
	return reading, nil
}

// Обработка показания счетчика: прирост энергии, при final - завершение сессии
func (s *SessionLedger) ApplyReading(ctx context.Context, payload []byte) error {
	reading, err := parseReading(payload)
	if err != nil {
		return err
	}
	return s.applyReading(ctx, reading)
}

// Каждый шаг повторяется отдельно: при ErrConflict транзакция ничего не применила,
// а повтор всего показания после успешного UpdateSession удвоил бы энергию
func (s *SessionLedger) applyReading(ctx context.Context, reading model.MeterReading) error {
	if reading.EnergyWh > 0 {
		err := retryConflict(ctx, func() error {
			_, err := s.UpdateSession(ctx, reading.Owner, reading.Session, reading.EnergyWh)
			return err
		})
		if err != nil {
			return err
		}
	}
	if reading.Final {
		return retryConflict(ctx, func() error {
			_, _, err := s.EndSession(ctx, reading.Owner, reading.Session)
			return err
		})
	}
	return nil
}

func retryConflict(ctx context.Context, op func() error) (err error) {
	for attempt := 0; attempt < conflictRetries; attempt++ {
		if err = op(); !errors.Is(err, model.ErrConflict) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// Погашение по запросу из очереди. Возвращает подтверждение и для отказа,
// если запрос удалось разобрать. Повторная доставка уже погашенного этим
// пользователем ваучера подтверждается как успех
func (s *SessionLedger) RedeemFromQueue(ctx context.Context, payload []byte) (confirm *model.RedeemConfirm, err error) {
	var req model.RedeemRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("redeem request: %v: %w", err, model.ErrInvalidInput)
	}
	if req.Voucher.IsNil() {
		return nil, fmt.Errorf("redeem request: voucher is required: %w", model.ErrInvalidInput)
	}
	confirm = &model.RedeemConfirm{Voucher: req.Voucher, User: req.User}
	redemption, err := s.RedeemVoucher(ctx, req.User, req.Voucher)
	if errors.Is(err, model.ErrAlreadyExists) {
		if prev, rerr := s.GetRedemption(ctx, req.Voucher); rerr == nil && prev.User == req.User {
			s.logger.Info("Redeem request redelivered", zap.String("voucher", req.Voucher.String()))
			redemption, err = prev, nil
		}
	}
	if err != nil {
		confirm.Error = err.Error()
		return confirm, err
	}
	confirm.Success = true
	confirm.Points = redemption.PointsAmount
	return confirm, nil
}

// Виртуальная сессия по запросу из очереди
func (e *GameEngine) HandleRequest(ctx context.Context, payload []byte) error {
	var req model.VirtualSessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("virtual session request: %v: %w", err, model.ErrInvalidInput)
	}
	err := e.RecordVirtualSession(ctx, req.Payer, req.Plot, req.Revenue)
	if err != nil {
		return err
	}
	e.logger.Debug("Virtual session recorded",
		zap.String("plot", req.Plot.String()),
		zap.Uint64("revenue", req.Revenue),
	)
	return nil
}
