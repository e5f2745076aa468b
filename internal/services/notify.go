package services

import (
	"context"
	"time"

	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const notifyTimeout = 5 * time.Second

// Побочные эффекты после коммита: события и сброс кэша.
// Ошибки только логируются, операция уже применена.
type notifier struct {
	logger *zap.Logger
	cache  interf.CacheStorage
	events interf.Publisher
}

func (n notifier) publish(tx interf.Tx, events ...model.Event) {
	if n.events == nil || len(events) == 0 {
		return
	}
	tx.OnCommit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := n.events.Publish(ctx, events...); err != nil {
			n.logger.Error("Publish events error",
				zap.Error(err),
				zap.String("event", events[0].Type),
				zap.String("subject", events[0].Subject),
			)
		}
	})
}

func (n notifier) invalidate(tx interf.Tx, user identity.Identity) {
	if n.cache == nil {
		return
	}
	tx.OnCommit(func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := n.cache.InvalidateBalance(ctx, user.String()); err != nil {
			n.logger.Error("Invalidate cache error", zap.Error(err), zap.String("user", user.String()))
		}
	})
}

func newEvent(typ string, subject, actor identity.Identity, amount uint64, at time.Time) model.Event {
	e := model.Event{
		ID:      uuid.NewString(),
		Type:    typ,
		Subject: subject.String(),
		Amount:  amount,
		At:      at.UTC(),
	}
	if !actor.IsNil() {
		e.Actor = actor.String()
	}
	return e
}
