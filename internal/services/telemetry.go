package services

import (
	"context"
	"encoding/binary"
	"errors"
	"sync/atomic"

	"github.com/glkeru/amperequest/internal/identity"
	model "github.com/glkeru/amperequest/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const readingQueueSize = 64

// Показания одной сессии обрабатываются одним воркером в порядке поступления:
// final не обгоняет предыдущие приросты, приросты одной сессии не конкурируют
type ReadingDispatcher struct {
	ledger *SessionLedger
	logger *zap.Logger
	queues []chan model.MeterReading
	g      errgroup.Group
	failed atomic.Uint64
}

// ctx воркеров: принятые показания дорабатываются до Close
func NewReadingDispatcher(ctx context.Context, ledger *SessionLedger, workers int, logger *zap.Logger) *ReadingDispatcher {
	if workers < 1 {
		workers = 1
	}
	d := &ReadingDispatcher{
		ledger: ledger,
		logger: logger,
		queues: make([]chan model.MeterReading, workers),
	}
	for i := range d.queues {
		q := make(chan model.MeterReading, readingQueueSize)
		d.queues[i] = q
		d.g.Go(func() error {
			d.worker(ctx, q)
			return nil
		})
	}
	return d
}

func (d *ReadingDispatcher) worker(ctx context.Context, q <-chan model.MeterReading) {
	for reading := range q {
		err := d.ledger.applyReading(ctx, reading)
		if err == nil {
			continue
		}
		d.failed.Add(1)
		level := d.logger.Error
		if errors.Is(err, model.ErrInvalidState) {
			level = d.logger.Warn
		}
		level("Meter reading rejected",
			zap.Error(err),
			zap.String("session", reading.Session.String()),
			zap.Uint64("energy_wh", reading.EnergyWh),
			zap.Bool("final", reading.Final),
		)
	}
}

// Разбор показания и постановка в очередь его сессии.
// Ждет, пока в очереди воркера не освободится место
func (d *ReadingDispatcher) Dispatch(ctx context.Context, payload []byte) error {
	reading, err := parseReading(payload)
	if err != nil {
		return err
	}
	select {
	case d.queues[d.slot(reading.Session)] <- reading:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// идентификаторы выводятся через SHA-1, младших байт достаточно для распределения
func (d *ReadingDispatcher) slot(session identity.Identity) int {
	return int(binary.BigEndian.Uint32(session[12:]) % uint32(len(d.queues)))
}

// Кол-во отклоненных показаний
func (d *ReadingDispatcher) Failed() uint64 {
	return d.failed.Load()
}

// Закрывает очереди и ждет обработки уже принятых показаний. Dispatch после Close нельзя
func (d *ReadingDispatcher) Close() {
	for _, q := range d.queues {
		close(q)
	}
	_ = d.g.Wait()
}
