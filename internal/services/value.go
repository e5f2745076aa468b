package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/glkeru/amperequest/internal/checked"
	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"go.uber.org/zap"
)

// Денежные балансы в том же хранилище: перевод входит в транзакцию вызывающей операции
type ValueLedger struct {
	logger *zap.Logger
	db     interf.RecordStore
}

func NewValueLedger(logger *zap.Logger, db interf.RecordStore) *ValueLedger {
	return &ValueLedger{logger, db}
}

func (v *ValueLedger) Transfer(ctx context.Context, tx interf.Tx, from, to identity.Identity, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if from == to {
		return fmt.Errorf("transfer to self %s: %w", from, model.ErrInvalidInput)
	}

	var src model.ValueBalance
	if err := tx.Get(ctx, identity.Balance(from), &src); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return fmt.Errorf("%s has no funds: %w", from, model.ErrInsufficientFunds)
		}
		return err
	}
	left, err := checked.Sub(src.Amount, amount)
	if err != nil {
		return fmt.Errorf("%s has %d, requested %d: %w", from, src.Amount, amount, model.ErrInsufficientFunds)
	}
	src.Amount = left
	if err := tx.Put(ctx, identity.Balance(from), &src); err != nil {
		return err
	}
	return v.credit(ctx, tx, to, amount)
}

func (v *ValueLedger) credit(ctx context.Context, tx interf.Tx, owner identity.Identity, amount uint64) error {
	var dst model.ValueBalance
	err := tx.Get(ctx, identity.Balance(owner), &dst)
	switch {
	case errors.Is(err, model.ErrNotFound):
		return tx.Create(ctx, identity.Balance(owner), &model.ValueBalance{Owner: owner, Amount: amount})
	case err != nil:
		return err
	}
	if dst.Amount, err = checked.Add(dst.Amount, amount); err != nil {
		return fmt.Errorf("balance of %s: %w", owner, err)
	}
	return tx.Put(ctx, identity.Balance(owner), &dst)
}

// Пополнение баланса, только от кассы
func (v *ValueLedger) Deposit(ctx context.Context, owner identity.Identity, amount uint64, caller identity.Identity) (balance uint64, err error) {
	if err := identity.Depositors.Verify(caller); err != nil {
		unauthorizedCallsTotal.WithLabelValues(identity.Depositors.Name()).Inc()
		v.logger.Warn("Unauthorized caller",
			zap.String("operation", "deposit"),
			zap.String("caller", caller.String()),
		)
		return 0, err
	}
	if owner.IsNil() {
		return 0, fmt.Errorf("owner is empty: %w", model.ErrInvalidInput)
	}
	err = v.db.Atomic(ctx, func(tx interf.Tx) error {
		if err := v.credit(ctx, tx, owner, amount); err != nil {
			return err
		}
		var b model.ValueBalance
		if err := tx.Get(ctx, identity.Balance(owner), &b); err != nil {
			return err
		}
		balance = b.Amount
		return nil
	})
	if err != nil {
		return 0, err
	}
	v.logger.Info("Deposit", zap.String("owner", owner.String()), zap.Uint64("amount", amount))
	return balance, nil
}

func (v *ValueLedger) Balance(ctx context.Context, owner identity.Identity) (uint64, error) {
	var b model.ValueBalance
	err := v.db.Read(ctx, identity.Balance(owner), &b)
	if errors.Is(err, model.ErrNotFound) {
		return 0, nil
	}
	return b.Amount, err
}
