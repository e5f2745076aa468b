package services

import (
	"context"
	"testing"

	"github.com/glkeru/amperequest/internal/identity"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestReadingDispatcherKeepsEveryReading(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)

	sessions := make([]identity.Identity, 4)
	for i := range sessions {
		id, _, err := p.Ledger.StartSession(ctx, driver, "CHG", 22, 100, int64(i), 0)
		require.NoError(t, err)
		sessions[i] = id
	}

	d := NewReadingDispatcher(ctx, p.Ledger, 16, zap.NewNop())
	// 500 показаний по 100 Вт*ч на сессию вперемешку, final последним
	for n := 0; n < 500; n++ {
		for _, id := range sessions {
			require.NoError(t, d.Dispatch(ctx, payload(t, model.MeterReading{Owner: driver, Session: id, EnergyWh: 100})))
		}
	}
	for _, id := range sessions {
		require.NoError(t, d.Dispatch(ctx, payload(t, model.MeterReading{Owner: driver, Session: id, Final: true})))
	}
	d.Close()
	require.Zero(t, d.Failed())

	for _, id := range sessions {
		session, err := p.Ledger.GetSession(ctx, id)
		require.NoError(t, err)
		require.Equal(t, uint64(50_000), session.EnergyWh)
		require.Equal(t, uint64(500), session.PointsEarned)
		require.False(t, session.Active)
	}
	acc := account(t, p, driver)
	require.Equal(t, uint64(2_000), acc.AvailablePoints)
	require.Equal(t, uint64(200), acc.TotalEnergyKWh)
	require.Equal(t, uint64(4), acc.TotalSessions)
}

func TestReadingDispatcherRejects(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)
	id, _, err := p.Ledger.StartSession(ctx, driver, "CHG", 7, 100, 1, 0)
	require.NoError(t, err)

	d := NewReadingDispatcher(ctx, p.Ledger, 0, zap.NewNop())
	require.ErrorIs(t, d.Dispatch(ctx, []byte("{")), model.ErrInvalidInput)
	require.ErrorIs(t, d.Dispatch(ctx, payload(t, model.MeterReading{Owner: driver})), model.ErrInvalidInput)

	require.NoError(t, d.Dispatch(ctx, payload(t, model.MeterReading{Owner: driver, Session: id, Final: true})))
	// после завершения сессии
	require.NoError(t, d.Dispatch(ctx, payload(t, model.MeterReading{Owner: driver, Session: id, EnergyWh: 100})))
	d.Close()
	require.Equal(t, uint64(1), d.Failed())

	// очередь без воркера: постановка ждет до отмены контекста
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	blocked := &ReadingDispatcher{
		ledger: p.Ledger,
		logger: zap.NewNop(),
		queues: []chan model.MeterReading{make(chan model.MeterReading)},
	}
	require.ErrorIs(t, blocked.Dispatch(cancelled, payload(t, model.MeterReading{Owner: driver, Session: id})), context.Canceled)
}

func TestRetryConflict(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		fails int
		err   error
		calls int
		want  error
	}{
		{name: "recovers", fails: 2, err: model.ErrConflict, calls: 3},
		{name: "gives up", fails: 100, err: model.ErrConflict, calls: conflictRetries, want: model.ErrConflict},
		{name: "other error", fails: 100, err: model.ErrSessionNotActive, calls: 1, want: model.ErrSessionNotActive},
	}
	for _, ts := range tests {
		t.Run(ts.name, func(t *testing.T) {
			var calls int
			err := retryConflict(ctx, func() error {
				calls++
				if calls <= ts.fails {
					return ts.err
				}
				return nil
			})
			require.Equal(t, ts.calls, calls)
			if ts.want == nil {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ts.want)
			}
		})
	}
}
