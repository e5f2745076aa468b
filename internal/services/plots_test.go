package services

import (
	"context"
	"testing"

	"github.com/glkeru/amperequest/internal/identity"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/stretchr/testify/require"
)

// участок с установленной зарядкой
func operationalPlot(t *testing.T, p *Platform, owner identity.Identity, plotID uint32) identity.Identity {
	t.Helper()
	ctx := context.Background()
	fund(t, p, owner, 3_000)
	id, _, err := p.Plots.PurchasePlot(ctx, owner, plotID, 52_520_000, 13_405_000, 2_000)
	require.NoError(t, err)
	_, err = p.Plots.InstallCharger(ctx, owner, id, 7, 1_000)
	require.NoError(t, err)
	return id
}

func TestPurchasePlot(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	owner, rival := wallet("owner"), wallet("rival")
	fund(t, p, owner, 10_000)
	fund(t, p, rival, 10_000)

	id, plot, err := p.Plots.PurchasePlot(ctx, owner, 42, -33_868_800, 151_209_300, 4_000)
	require.NoError(t, err)
	require.Equal(t, identity.Plot(42), id)
	require.Equal(t, owner, plot.Owner)
	require.False(t, plot.Operational)
	require.Zero(t, plot.ChargerPowerKW)

	_, _, err = p.Plots.PurchasePlot(ctx, rival, 42, 0, 0, 4_000)
	require.ErrorIs(t, err, model.ErrAlreadyExists)

	require.Equal(t, uint64(6_000), funds(t, p, owner))
	require.Equal(t, uint64(10_000), funds(t, p, rival))
	require.Equal(t, uint64(4_000), funds(t, p, identity.Treasury()))
}

func TestPurchasePlotValidation(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	owner := wallet("owner")
	fund(t, p, owner, 10_000)

	tests := []struct {
		lat, lon int32
	}{
		{MaxLatitude + 1, 0},
		{-MaxLatitude - 1, 0},
		{0, MaxLongitude + 1},
		{0, -MaxLongitude - 1},
	}
	for _, ts := range tests {
		_, _, err := p.Plots.PurchasePlot(ctx, owner, 1, ts.lat, ts.lon, 10)
		require.ErrorIs(t, err, model.ErrInvalidInput, "lat=%d lon=%d", ts.lat, ts.lon)
	}

	_, _, err := p.Plots.PurchasePlot(ctx, owner, 2, 0, 0, 20_000)
	require.ErrorIs(t, err, model.ErrInsufficientFunds)
	_, err = p.Plots.GetPlot(ctx, identity.Plot(2))
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestInstallCharger(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	owner := wallet("owner")
	fund(t, p, owner, 10_000)
	id, _, err := p.Plots.PurchasePlot(ctx, owner, 7, 0, 0, 1_000)
	require.NoError(t, err)

	for _, power := range []uint32{0, 1, 15, 50} {
		_, err = p.Plots.InstallCharger(ctx, owner, id, power, 100)
		require.ErrorIs(t, err, model.ErrInvalidChargerPower, "power=%d", power)
	}
	plot, err := p.Plots.GetPlot(ctx, id)
	require.NoError(t, err)
	require.Zero(t, plot.ChargerPowerKW)
	require.False(t, plot.Operational)
	require.Equal(t, uint64(9_000), funds(t, p, owner))

	_, err = p.Plots.InstallCharger(ctx, wallet("stranger"), id, 7, 100)
	require.ErrorIs(t, err, model.ErrNotOwner)

	plot, err = p.Plots.InstallCharger(ctx, owner, id, 11, 500)
	require.NoError(t, err)
	require.True(t, plot.Operational)
	require.Equal(t, uint32(11), plot.ChargerPowerKW)
	require.Equal(t, uint64(8_500), funds(t, p, owner))
}

func TestUpgradeCharger(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	owner := wallet("owner")
	fund(t, p, owner, 10_000)
	id, _, err := p.Plots.PurchasePlot(ctx, owner, 3, 0, 0, 0)
	require.NoError(t, err)

	_, err = p.Plots.UpgradeCharger(ctx, owner, id, 22, 100)
	require.ErrorIs(t, err, model.ErrNoChargerInstalled)

	_, err = p.Plots.InstallCharger(ctx, owner, id, 11, 100)
	require.NoError(t, err)

	_, err = p.Plots.UpgradeCharger(ctx, owner, id, 11, 100)
	require.ErrorIs(t, err, model.ErrInvalidUpgrade)
	_, err = p.Plots.UpgradeCharger(ctx, owner, id, 7, 100)
	require.ErrorIs(t, err, model.ErrInvalidUpgrade)
	_, err = p.Plots.UpgradeCharger(ctx, owner, id, 25, 100)
	require.ErrorIs(t, err, model.ErrInvalidChargerPower)

	plot, err := p.Plots.UpgradeCharger(ctx, owner, id, 22, 400)
	require.NoError(t, err)
	require.Equal(t, uint32(22), plot.ChargerPowerKW)
	require.Equal(t, uint64(9_500), funds(t, p, owner))
}

func TestRecordSessionAuthorization(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	owner, payer := wallet("owner"), wallet("payer")
	id := operationalPlot(t, p, owner, 1)
	fund(t, p, payer, 1_000)

	for _, caller := range []identity.Identity{owner, payer, identity.ServiceMarketplace, identity.ServiceVirtualPlot, identity.ServiceSessionLedger, identity.Nil} {
		err := p.Plots.RecordSession(ctx, id, payer, 100, caller)
		require.ErrorIs(t, err, model.ErrUnauthorizedCaller)
	}
	plot, err := p.Plots.GetPlot(ctx, id)
	require.NoError(t, err)
	require.Zero(t, plot.TotalRevenue)
	require.Zero(t, plot.TotalSessions)
	require.Equal(t, uint64(1_000), funds(t, p, payer))

	require.NoError(t, p.Plots.RecordSession(ctx, id, payer, 100, identity.ServiceGameEngine))
	plot, err = p.Plots.GetPlot(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(100), plot.TotalRevenue)
	require.Equal(t, uint64(1), plot.TotalSessions)
	require.Equal(t, uint64(100), funds(t, p, id))
}

func TestRecordSessionNotOperational(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	owner, payer := wallet("owner"), wallet("payer")
	fund(t, p, owner, 1_000)
	fund(t, p, payer, 1_000)
	id, _, err := p.Plots.PurchasePlot(ctx, owner, 9, 0, 0, 100)
	require.NoError(t, err)

	err = p.Plots.RecordSession(ctx, id, payer, 100, identity.ServiceGameEngine)
	require.ErrorIs(t, err, model.ErrPlotNotOperational)
	require.Equal(t, uint64(1_000), funds(t, p, payer))
}

func TestWithdrawRevenue(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	owner, payer := wallet("owner"), wallet("payer")
	id := operationalPlot(t, p, owner, 5)
	fund(t, p, payer, 1_000)
	require.NoError(t, p.Plots.RecordSession(ctx, id, payer, 300, identity.ServiceGameEngine))
	before := funds(t, p, owner)

	_, err := p.Plots.WithdrawRevenue(ctx, owner, id, 301)
	require.ErrorIs(t, err, model.ErrInsufficientRevenue)

	_, err = p.Plots.WithdrawRevenue(ctx, payer, id, 100)
	require.ErrorIs(t, err, model.ErrNotOwner)

	plot, err := p.Plots.WithdrawRevenue(ctx, owner, id, 200)
	require.NoError(t, err)
	require.Equal(t, uint64(100), plot.TotalRevenue)
	require.Equal(t, before+200, funds(t, p, owner))
	require.Equal(t, uint64(100), funds(t, p, id))
}
