package auth

import (
	"testing"
	"time"

	"github.com/glkeru/amperequest/internal/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestTokens(t *testing.T) {
	tokens, err := NewTokens("secret", time.Hour)
	require.NoError(t, err)

	token, err := tokens.Issue(identity.ServiceMarketplace)
	require.NoError(t, err)
	caller, err := tokens.Verify(token)
	require.NoError(t, err)
	require.Equal(t, identity.ServiceMarketplace, caller)

	_, err = tokens.Issue(identity.Nil)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokens("", time.Hour)
	require.Error(t, err)
}

func TestTokensRejected(t *testing.T) {
	tokens, err := NewTokens("secret", time.Minute)
	require.NoError(t, err)
	other, err := NewTokens("other", time.Minute)
	require.NoError(t, err)
	user := identity.Derive("wallet", identity.SeedString("alice"))

	forged, err := other.Issue(user)
	require.NoError(t, err)

	expired, err := tokens.Issue(user)
	require.NoError(t, err)
	late := *tokens
	late.now = func() time.Time { return time.Now().Add(time.Hour) }

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:  issuer,
		Subject: user.String(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  issuer,
		Subject: "alice",
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		t     *Tokens
		token string
	}{
		{"forged", tokens, forged},
		{"expired", &late, expired},
		{"alg none", tokens, none},
		{"bad subject", tokens, badSubject},
		{"garbage", tokens, "abc.def.ghi"},
	}
	for _, ts := range tests {
		_, err := ts.t.Verify(ts.token)
		require.ErrorIs(t, err, ErrInvalidToken, ts.name)
	}
}
