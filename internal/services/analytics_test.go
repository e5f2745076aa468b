package services

import (
	"context"
	"testing"

	model "github.com/glkeru/amperequest/internal/models"
	"github.com/stretchr/testify/require"
)

func TestLeaderboard(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	a, b, c := wallet("a"), wallet("b"), wallet("c")
	for _, u := range []struct {
		name   string
		points uint64
	}{{"a", 10}, {"b", 30}, {"c", 20}} {
		user := wallet(u.name)
		initUser(t, p, user)
		givePoints(t, p, user, u.points)
	}

	top, err := p.Analytics.Leaderboard(ctx, RankByPoints, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, b, top[0].Authority)
	require.Equal(t, c, top[1].Authority)

	all, err := p.Analytics.Leaderboard(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, a, all[2].Authority)

	_, err = p.Analytics.Leaderboard(ctx, "karma", 10)
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestNetworkStats(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver, other := wallet("driver"), wallet("other")
	initUser(t, p, driver)

	id, _, err := p.Ledger.StartSession(ctx, driver, "CHG", 7, 1000, 1, 0)
	require.NoError(t, err)
	_, err = p.Ledger.UpdateSession(ctx, driver, id, 1500)
	require.NoError(t, err)
	_, _, err = p.Ledger.EndSession(ctx, driver, id)
	require.NoError(t, err)
	_, _, err = p.Ledger.StartSession(ctx, other, "CHG", 7, 1000, 2, 0)
	require.NoError(t, err)

	_, _, err = p.Market.CreateListing(ctx, driver, 5, 10, 1)
	require.NoError(t, err)
	operationalPlot(t, p, driver, 1)

	stats, err := p.Analytics.NetworkStats(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.TotalSessions)
	require.Equal(t, uint64(1), stats.ActiveSessions)
	require.Equal(t, uint64(1), stats.CompletedSessions)
	require.Equal(t, uint64(1500), stats.TotalEnergyWh)
	require.Equal(t, uint64(15), stats.TotalPoints)
	require.Equal(t, uint64(2), stats.UniqueUsers)
	require.Equal(t, uint64(1), stats.ActiveListings)
	require.Equal(t, uint64(1), stats.TotalPlots)
	require.Equal(t, uint64(1), stats.PlotsWithChargers)
	// (2*2 + 2*5 + 1*3 + 1*10) / 2
	require.Equal(t, uint64(13), stats.HealthScore)
}

func TestHealthScoreCapped(t *testing.T) {
	require.Equal(t, uint64(100), healthScore(model.NetworkStats{TotalSessions: 500}))
	require.Zero(t, healthScore(model.NetworkStats{}))
}
