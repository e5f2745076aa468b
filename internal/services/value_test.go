package services

import (
	"context"
	"math"
	"testing"

	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/stretchr/testify/require"
)

func TestValueTransfer(t *testing.T) {
	p, store := newTestPlatform(t, nil)
	ctx := context.Background()
	alice, bob := wallet("alice"), wallet("bob")
	fund(t, p, alice, 100)

	transfer := func(from, to identity.Identity, amount uint64) error {
		return store.Atomic(ctx, func(tx interf.Tx) error {
			return p.Value.Transfer(ctx, tx, from, to, amount)
		})
	}

	require.NoError(t, transfer(bob, alice, 0))
	require.ErrorIs(t, transfer(alice, alice, 10), model.ErrInvalidInput)
	require.ErrorIs(t, transfer(bob, alice, 1), model.ErrInsufficientFunds)
	require.ErrorIs(t, transfer(alice, bob, 101), model.ErrInsufficientFunds)

	require.NoError(t, transfer(alice, bob, 60))
	require.Equal(t, uint64(40), funds(t, p, alice))
	require.Equal(t, uint64(60), funds(t, p, bob))

	require.NoError(t, transfer(alice, bob, 40))
	require.Zero(t, funds(t, p, alice))
	require.Equal(t, uint64(100), funds(t, p, bob))
}

func TestValueDepositOverflow(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	alice := wallet("alice")

	b, err := p.Value.Deposit(ctx, alice, math.MaxUint64, identity.ServiceCashier)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), b)

	_, err = p.Value.Deposit(ctx, alice, 1, identity.ServiceCashier)
	require.ErrorIs(t, err, model.ErrOverflow)
	require.Equal(t, uint64(math.MaxUint64), funds(t, p, alice))
}

func TestValueDepositOnlyCashier(t *testing.T) {
	p, _ := newTestPlatform(t, nil)
	ctx := context.Background()
	alice := wallet("alice")

	for _, caller := range []identity.Identity{alice, identity.ServiceMarketplace, identity.ServiceSessionLedger, identity.Nil} {
		_, err := p.Value.Deposit(ctx, alice, 1_000, caller)
		require.ErrorIs(t, err, model.ErrUnauthorizedCaller)
	}
	require.Zero(t, funds(t, p, alice))

	b, err := p.Value.Deposit(ctx, alice, 1_000, identity.ServiceCashier)
	require.NoError(t, err)
	require.Equal(t, uint64(1_000), b)
}
