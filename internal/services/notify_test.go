package services

import (
	"context"
	"errors"
	"testing"

	db "github.com/glkeru/amperequest/internal/db"
	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
)

func TestBalanceCache(t *testing.T) {
	cont := gomock.NewController(t)
	cache := interf.NewMockCacheStorage(cont)
	ledger := NewSessionLedger(zap.NewNop(), db.NewMemoryDB(zap.NewNop()), cache, nil)
	ctx := context.Background()
	driver := wallet("driver")

	_, err := ledger.InitUser(ctx, driver)
	require.NoError(t, err)

	cache.EXPECT().InvalidateBalance(gomock.Any(), driver.String()).Return(nil)
	require.NoError(t, ledger.CreditPoints(ctx, driver, 5, identity.ServiceMarketplace))

	cache.EXPECT().GetBalance(gomock.Any(), driver.String()).Return(model.Balance{}, model.ErrNotFound)
	cache.EXPECT().SetBalance(gomock.Any(), driver.String(), model.Balance{Total: 5, Available: 5}).Return(nil)
	b, err := ledger.Balance(ctx, driver)
	require.NoError(t, err)
	require.Equal(t, uint64(5), b.Available)

	cache.EXPECT().GetBalance(gomock.Any(), driver.String()).Return(model.Balance{Total: 5, Available: 5}, nil)
	b, err = ledger.Balance(ctx, driver)
	require.NoError(t, err)
	require.Equal(t, uint64(5), b.Total)

	// отклоненная операция кэш не трогает
	err = ledger.DebitPoints(ctx, driver, 6, identity.ServiceMarketplace)
	require.ErrorIs(t, err, model.ErrInsufficientPoints)

	// ошибка кэша не ломает операцию
	cache.EXPECT().InvalidateBalance(gomock.Any(), driver.String()).Return(errors.New("redis is down"))
	require.NoError(t, ledger.DebitPoints(ctx, driver, 5, identity.ServiceMarketplace))
}

func TestEventsPublishedAfterCommit(t *testing.T) {
	cont := gomock.NewController(t)
	events := interf.NewMockPublisher(cont)
	ledger := NewSessionLedger(zap.NewNop(), db.NewMemoryDB(zap.NewNop()), nil, events)
	ctx := context.Background()
	driver := wallet("driver")

	events.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, evs ...model.Event) error {
			require.Len(t, evs, 1)
			require.Equal(t, model.EventUserInitialized, evs[0].Type)
			require.Equal(t, driver.String(), evs[0].Subject)
			require.NotEmpty(t, evs[0].ID)
			return nil
		})
	_, err := ledger.InitUser(ctx, driver)
	require.NoError(t, err)

	// повтор не коммитится, события нет
	_, err = ledger.InitUser(ctx, driver)
	require.ErrorIs(t, err, model.ErrAlreadyExists)

	// и при отказе в доступе тоже
	err = ledger.CreditPoints(ctx, driver, 1, identity.ServiceGameEngine)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("kafka is down"))
	require.NoError(t, ledger.CreditPoints(ctx, driver, 1, identity.ServiceVirtualPlot))
}
