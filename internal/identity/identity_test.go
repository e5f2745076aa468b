package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveDeterministic(t *testing.T) {
	owner := Derive("wallet", SeedString("driver-1"))
	a := Session(owner, 100, 1)
	b := Session(owner, 100, 1)
	require.Equal(t, a, b)
	require.False(t, a.IsNil())

	// same time unit, different nonce
	require.NotEqual(t, a, Session(owner, 100, 2))
	require.NotEqual(t, a, Session(owner, 101, 1))
}

func TestDeriveNamespaces(t *testing.T) {
	seed := SeedString("x")
	require.NotEqual(t, Derive("listing", seed), Derive("voucher", seed))
	require.NotEqual(t, Derive("listing"), Derive("listing", Seed{}))
}

func TestDeriveSeedBoundaries(t *testing.T) {
	require.NotEqual(t,
		Derive("n", SeedString("ab"), SeedString("c")),
		Derive("n", SeedString("a"), SeedString("bc")),
	)
}

func TestServiceIdentitiesDistinct(t *testing.T) {
	ids := []Identity{ServiceSessionLedger, ServiceMarketplace, ServiceVirtualPlot, ServiceGameEngine, ServiceCashier, Treasury(), Marketplace(), GameEngine()}
	seen := map[Identity]bool{}
	for _, id := range ids {
		require.False(t, seen[id], "duplicate identity %s", id)
		seen[id] = true
	}
}

func TestParseRoundTrip(t *testing.T) {
	id := Plot(42)
	parsed, err := Parse(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = Parse("not-an-identity")
	require.Error(t, err)
}

func TestAllowLists(t *testing.T) {
	tests := []struct {
		name     string
		list     AllowList
		caller   Identity
		expected bool
	}{
		{"marketplace writes points", PointsWriters, ServiceMarketplace, true},
		{"plots write points", PointsWriters, ServiceVirtualPlot, true},
		{"game engine cannot write points", PointsWriters, ServiceGameEngine, false},
		{"ledger cannot write points", PointsWriters, ServiceSessionLedger, false},
		{"ledger redeems vouchers", VoucherRedeemers, ServiceSessionLedger, true},
		{"marketplace cannot redeem", VoucherRedeemers, ServiceMarketplace, false},
		{"game engine records sessions", SessionRecorders, ServiceGameEngine, true},
		{"plot owner cannot record", SessionRecorders, Derive("wallet", SeedString("owner")), false},
		{"nil caller", SessionRecorders, Nil, false},
		{"cashier deposits", Depositors, ServiceCashier, true},
		{"user cannot deposit", Depositors, Derive("wallet", SeedString("owner")), false},
		{"marketplace cannot deposit", Depositors, ServiceMarketplace, false},
	}
	for _, ts := range tests {
		t.Run(ts.name, func(t *testing.T) {
			require.Equal(t, ts.expected, VerifyCaller(ts.caller, ts.list))
			err := ts.list.Verify(ts.caller)
			if ts.expected {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, ErrUnauthorizedCaller)
				require.ErrorIs(t, err, ErrUnauthorized)
			}
		})
	}
}
