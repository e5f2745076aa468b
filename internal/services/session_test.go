package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/glkeru/amperequest/internal/identity"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestSessionLifecycle(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)

	id, session, err := p.Ledger.StartSession(ctx, driver, "CHG-001", 7, 1000, 100, 1)
	require.NoError(t, err)
	require.Equal(t, identity.Session(driver, 100, 1), id)
	require.True(t, session.Active)
	require.Zero(t, session.EnergyWh)

	session, err = p.Ledger.UpdateSession(ctx, driver, id, 250)
	require.NoError(t, err)
	require.Equal(t, uint64(2), session.PointsEarned)

	// остаток 50 Вт*ч не переносится
	session, err = p.Ledger.UpdateSession(ctx, driver, id, 150)
	require.NoError(t, err)
	require.Equal(t, uint64(400), session.EnergyWh)
	require.Equal(t, uint64(3), session.PointsEarned)

	session, acc, err := p.Ledger.EndSession(ctx, driver, id)
	require.NoError(t, err)
	require.False(t, session.Active)
	require.Equal(t, fixedNow.Unix(), session.EndTime)
	require.Equal(t, uint64(3), acc.TotalPoints)
	require.Equal(t, uint64(3), acc.AvailablePoints)
	require.Zero(t, acc.TotalEnergyKWh)
	require.Equal(t, uint64(1), acc.TotalSessions)

	require.Equal(t, acc, account(t, p, driver))
}

func TestEndedSessionIsFrozen(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)

	id, _, err := p.Ledger.StartSession(ctx, driver, "CHG-002", 22, 500, 200, 0)
	require.NoError(t, err)
	_, err = p.Ledger.UpdateSession(ctx, driver, id, 2500)
	require.NoError(t, err)
	_, acc, err := p.Ledger.EndSession(ctx, driver, id)
	require.NoError(t, err)
	require.Equal(t, uint64(2), acc.TotalEnergyKWh)

	_, err = p.Ledger.UpdateSession(ctx, driver, id, 1000)
	require.ErrorIs(t, err, model.ErrSessionNotActive)
	require.ErrorIs(t, err, model.ErrInvalidState)

	_, _, err = p.Ledger.EndSession(ctx, driver, id)
	require.ErrorIs(t, err, model.ErrSessionNotActive)

	session, err := p.Ledger.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(25), session.PointsEarned)
	require.Equal(t, uint64(25), account(t, p, driver).TotalPoints)
}

func TestInitUserTwice(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")

	_, err := p.Ledger.InitUser(ctx, driver)
	require.NoError(t, err)
	givePoints(t, p, driver, 12)

	_, err = p.Ledger.InitUser(ctx, driver)
	require.ErrorIs(t, err, model.ErrAlreadyExists)

	acc := account(t, p, driver)
	require.Equal(t, driver, acc.Authority)
	require.Equal(t, uint64(12), acc.TotalPoints)
}

func TestStartSessionValidation(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")

	tests := []struct {
		name  string
		owner identity.Identity
		code  string
		err   error
	}{
		{"empty code", driver, "", model.ErrInvalidInput},
		{"long code", driver, strings.Repeat("x", MaxChargerCodeLen+1), model.ErrInvalidInput},
		{"nil owner", identity.Nil, "CHG", model.ErrInvalidInput},
	}
	for _, ts := range tests {
		t.Run(ts.name, func(t *testing.T) {
			_, _, err := p.Ledger.StartSession(ctx, ts.owner, ts.code, 7, 1000, 1, 1)
			require.ErrorIs(t, err, ts.err)
		})
	}

	_, _, err := p.Ledger.StartSession(ctx, driver, strings.Repeat("x", MaxChargerCodeLen), 7, 1000, 1, 1)
	require.NoError(t, err)

	// тот же момент, другой nonce
	_, _, err = p.Ledger.StartSession(ctx, driver, "CHG", 7, 1000, 1, 2)
	require.NoError(t, err)

	_, _, err = p.Ledger.StartSession(ctx, driver, "CHG", 7, 1000, 1, 1)
	require.ErrorIs(t, err, model.ErrAlreadyExists)
}

func TestSessionOwnerOnly(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver, other := wallet("driver"), wallet("other")
	initUser(t, p, driver)
	initUser(t, p, other)

	id, _, err := p.Ledger.StartSession(ctx, driver, "CHG", 7, 1000, 5, 0)
	require.NoError(t, err)

	_, err = p.Ledger.UpdateSession(ctx, other, id, 1000)
	require.ErrorIs(t, err, model.ErrUnauthorized)
	_, _, err = p.Ledger.EndSession(ctx, other, id)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	session, err := p.Ledger.GetSession(ctx, id)
	require.NoError(t, err)
	require.True(t, session.Active)
	require.Zero(t, session.EnergyWh)
}

func TestUpdateSessionOverflow(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")

	id, _, err := p.Ledger.StartSession(ctx, driver, "CHG", 7, 1000, 5, 0)
	require.NoError(t, err)
	_, err = p.Ledger.UpdateSession(ctx, driver, id, math.MaxUint64)
	require.NoError(t, err)

	_, err = p.Ledger.UpdateSession(ctx, driver, id, 1)
	require.ErrorIs(t, err, model.ErrOverflow)

	session, err := p.Ledger.GetSession(ctx, id)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), session.EnergyWh)
}

func TestEndSessionWithoutAccount(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")

	id, _, err := p.Ledger.StartSession(ctx, driver, "CHG", 7, 1000, 5, 0)
	require.NoError(t, err)
	_, _, err = p.Ledger.EndSession(ctx, driver, id)
	require.ErrorIs(t, err, model.ErrNotFound)

	session, err := p.Ledger.GetSession(ctx, id)
	require.NoError(t, err)
	require.True(t, session.Active)
}

func TestDebitInsufficientPoints(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)
	givePoints(t, p, driver, 30)

	err := p.Ledger.DebitPoints(ctx, driver, 50, identity.ServiceMarketplace)
	require.ErrorIs(t, err, model.ErrInsufficientPoints)
	require.ErrorIs(t, err, model.ErrInsufficientBalance)
	require.Equal(t, uint64(30), account(t, p, driver).AvailablePoints)

	require.NoError(t, p.Ledger.DebitPoints(ctx, driver, 30, identity.ServiceVirtualPlot))
	acc := account(t, p, driver)
	require.Zero(t, acc.AvailablePoints)
	require.Equal(t, uint64(30), acc.TotalPoints)
}

func TestCreditOverflow(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)
	givePoints(t, p, driver, math.MaxUint64)

	err := p.Ledger.CreditPoints(ctx, driver, 1, identity.ServiceMarketplace)
	require.ErrorIs(t, err, model.ErrOverflow)
	require.Equal(t, uint64(math.MaxUint64), account(t, p, driver).TotalPoints)
}

func TestPointsAuthorization(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)
	givePoints(t, p, driver, 100)

	callers := []struct {
		name   string
		caller identity.Identity
	}{
		{"self", driver},
		{"session ledger", identity.ServiceSessionLedger},
		{"game engine", identity.ServiceGameEngine},
		{"nil", identity.Nil},
		{"lookalike", identity.Derive(identity.NamespaceService, identity.SeedString("points_marketplace "))},
	}
	for _, c := range callers {
		t.Run(c.name, func(t *testing.T) {
			err := p.Ledger.CreditPoints(ctx, driver, 10, c.caller)
			require.ErrorIs(t, err, model.ErrUnauthorizedCaller)
			err = p.Ledger.DebitPoints(ctx, driver, 10, c.caller)
			require.ErrorIs(t, err, model.ErrUnauthorized)

			acc := account(t, p, driver)
			require.Equal(t, uint64(100), acc.TotalPoints)
			require.Equal(t, uint64(100), acc.AvailablePoints)
		})
	}
}

func TestLedgerConservation(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)
	givePoints(t, p, driver, 50)

	g := errgroup.Group{}
	for i := 0; i < 40; i++ {
		g.Go(func() error {
			var err error
			switch i % 3 {
			case 0:
				err = p.Ledger.CreditPoints(ctx, driver, 7, identity.ServiceVirtualPlot)
			default:
				err = p.Ledger.DebitPoints(ctx, driver, 11, identity.ServiceMarketplace)
			}
			if err == nil || errors.Is(err, model.ErrInsufficientPoints) || errors.Is(err, model.ErrConflict) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())

	acc := account(t, p, driver)
	require.LessOrEqual(t, acc.AvailablePoints, acc.TotalPoints)
}

func TestBalanceReadsAccount(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	driver := wallet("driver")
	initUser(t, p, driver)
	givePoints(t, p, driver, 40)
	require.NoError(t, p.Ledger.DebitPoints(ctx, driver, 15, identity.ServiceMarketplace))

	b, err := p.Ledger.Balance(ctx, driver)
	require.NoError(t, err)
	require.Equal(t, model.Balance{Total: 40, Available: 25}, b)

	_, err = p.Ledger.Balance(ctx, wallet("nobody"))
	require.ErrorIs(t, err, model.ErrNotFound)
}
