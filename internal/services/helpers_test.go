package services

import (
	"context"
	"testing"
	"time"

	db "github.com/glkeru/amperequest/internal/db"
	"github.com/glkeru/amperequest/internal/identity"
	interf "github.com/glkeru/amperequest/internal/interfaces"
	model "github.com/glkeru/amperequest/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestPlatform(t *testing.T, transfer interf.Transferer) (*Platform, interf.RecordStore) {
	t.Helper()
	store := db.NewMemoryDB(zap.NewNop())
	p := NewPlatform(zap.NewNop(), store, transfer, nil, nil)
	clock := func() time.Time { return fixedNow }
	p.Ledger.now = clock
	p.Market.now = clock
	p.Plots.now = clock
	p.Engine.now = clock
	return p, store
}

func wallet(name string) identity.Identity {
	return identity.Derive("wallet", identity.SeedString(name))
}

func initUser(t *testing.T, p *Platform, user identity.Identity) {
	t.Helper()
	_, err := p.Ledger.InitUser(context.Background(), user)
	require.NoError(t, err)
}

func givePoints(t *testing.T, p *Platform, user identity.Identity, amount uint64) {
	t.Helper()
	require.NoError(t, p.Ledger.CreditPoints(context.Background(), user, amount, identity.ServiceMarketplace))
}

func fund(t *testing.T, p *Platform, owner identity.Identity, amount uint64) {
	t.Helper()
	_, err := p.Value.Deposit(context.Background(), owner, amount, identity.ServiceCashier)
	require.NoError(t, err)
}

func account(t *testing.T, p *Platform, user identity.Identity) model.UserAccount {
	t.Helper()
	acc, err := p.Ledger.GetUser(context.Background(), user)
	require.NoError(t, err)
	return acc
}

func funds(t *testing.T, p *Platform, owner identity.Identity) uint64 {
	t.Helper()
	b, err := p.Value.Balance(context.Background(), owner)
	require.NoError(t, err)
	return b
}
