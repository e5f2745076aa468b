package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/glkeru/amperequest/internal/identity"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/stretchr/testify/require"
)

func payload(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestApplyReading(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)
	id, _, err := p.Ledger.StartSession(ctx, driver, "CHG", 11, 100, 10, 0)
	require.NoError(t, err)

	require.NoError(t, p.Ledger.ApplyReading(ctx, payload(t, model.MeterReading{Owner: driver, Session: id, EnergyWh: 700})))
	require.NoError(t, p.Ledger.ApplyReading(ctx, payload(t, model.MeterReading{Owner: driver, Session: id, EnergyWh: 300, Final: true})))
	require.Equal(t, uint64(10), account(t, p, driver).AvailablePoints)

	err = p.Ledger.ApplyReading(ctx, payload(t, model.MeterReading{Owner: driver, Session: id, EnergyWh: 100}))
	require.ErrorIs(t, err, model.ErrSessionNotActive)

	err = p.Ledger.ApplyReading(ctx, []byte("{"))
	require.ErrorIs(t, err, model.ErrInvalidInput)
	err = p.Ledger.ApplyReading(ctx, payload(t, model.MeterReading{Owner: driver}))
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestRedeemFromQueue(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	buyer := wallet("buyer")
	initUser(t, p, buyer)
	_, err := p.Market.InitMarketplace(ctx, wallet("operator"))
	require.NoError(t, err)
	fund(t, p, buyer, 500_000)
	voucher, _, err := p.Market.BuyFromMarketplace(ctx, buyer, 1, 1)
	require.NoError(t, err)

	confirm, err := p.Ledger.RedeemFromQueue(ctx, payload(t, model.RedeemRequest{User: buyer, Voucher: voucher}))
	require.NoError(t, err)
	require.True(t, confirm.Success)
	require.Equal(t, uint64(1), confirm.Points)

	// повторная доставка после потерянного подтверждения
	confirm, err = p.Ledger.RedeemFromQueue(ctx, payload(t, model.RedeemRequest{User: buyer, Voucher: voucher}))
	require.NoError(t, err)
	require.True(t, confirm.Success)
	require.Equal(t, uint64(1), confirm.Points)
	require.Empty(t, confirm.Error)
	require.Equal(t, uint64(1), account(t, p, buyer).AvailablePoints)

	// чужой запрос на тот же ваучер остается отказом
	thief := wallet("thief")
	initUser(t, p, thief)
	confirm, err = p.Ledger.RedeemFromQueue(ctx, payload(t, model.RedeemRequest{User: thief, Voucher: voucher}))
	require.Error(t, err)
	require.False(t, confirm.Success)
	require.NotEmpty(t, confirm.Error)

	confirm, err = p.Ledger.RedeemFromQueue(ctx, []byte("not json"))
	require.ErrorIs(t, err, model.ErrInvalidInput)
	require.Nil(t, confirm)
}

func TestGameEngineHandleRequest(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	owner, payer := wallet("owner"), wallet("payer")
	id := operationalPlot(t, p, owner, 21)
	fund(t, p, payer, 100)
	_, err := p.Engine.Initialize(ctx)
	require.NoError(t, err)

	req := model.VirtualSessionRequest{Payer: payer, Plot: id, Revenue: 40}
	require.NoError(t, p.Engine.HandleRequest(ctx, payload(t, req)))
	require.Equal(t, uint64(40), funds(t, p, id))

	req.Plot = identity.Plot(999)
	require.ErrorIs(t, p.Engine.HandleRequest(ctx, payload(t, req)), model.ErrNotFound)
	require.ErrorIs(t, p.Engine.HandleRequest(ctx, []byte("[]")), model.ErrInvalidInput)
}
