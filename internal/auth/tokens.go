package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/glkeru/amperequest/internal/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid caller token")

const issuer = "amperequest"

// Claims: sub - удостоверение вызывающего
type Claims struct {
	jwt.RegisteredClaims
}

// Подписанные токены вызывающих (HS256)
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, fmt.Errorf("env AMPERE_TOKEN_SECRET is not set")
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Выпуск токена. ttl 0 - бессрочный
func (t *Tokens) Issue(caller identity.Identity) (string, error) {
	if caller.IsNil() {
		return "", fmt.Errorf("caller is empty: %w", ErrInvalidToken)
	}
	now := t.now()
	claims := Claims{jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  caller.String(),
		IssuedAt: jwt.NewNumericDate(now),
		ID:       uuid.NewString(),
	}}
	if t.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(t.ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Проверка подписи и срока, возвращает удостоверение вызывающего
func (t *Tokens) Verify(token string) (identity.Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tk.Header["alg"])
		}
		return t.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return identity.Nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return identity.Nil, ErrInvalidToken
	}
	caller, err := identity.Parse(claims.Subject)
	if err != nil || caller.IsNil() {
		return identity.Nil, fmt.Errorf("subject %q: %w", claims.Subject, ErrInvalidToken)
	}
	return caller, nil
}
