package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v4"

	"endpointwatch/internal/domain"
)

// ErrUnauthorized covers both a credential that does not verify and an
// authenticated caller reaching for another owner's data.
var ErrUnauthorized = errors.New("unauthorized")

// Verifier turns a bearer credential into a stable owner identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.OwnerID, error)
}

// StaticVerifier maps pre-shared API keys to owners. Useful for local
// deployments and tests.
type StaticVerifier struct {
	keys map[string]domain.OwnerID
}

func NewStaticVerifier(keys map[string]domain.OwnerID) *StaticVerifier {
	m := make(map[string]domain.OwnerID, len(keys))
	for k, v := range keys {
		m[k] = v
	}
	return &StaticVerifier{keys: m}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (domain.OwnerID, error) {
	owner, ok := v.keys[token]
	if !ok || token == "" {
		return "", ErrUnauthorized
	}
	return owner, nil
}

// JWTVerifier accepts HS256-signed bearer tokens and uses the subject claim
// as the owner identity.
type JWTVerifier struct {
	Secret []byte
	Issuer string
}

func NewJWTVerifier(secret []byte, issuer string) *JWTVerifier {
	return &JWTVerifier{Secret: secret, Issuer: issuer}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (domain.OwnerID, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if v.Issuer != "" && claims.Issuer != v.Issuer {
		return "", fmt.Errorf("%w: issuer mismatch", ErrUnauthorized)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", ErrUnauthorized)
	}
	return domain.OwnerID(claims.Subject), nil
}

// Multi tries each verifier in order and returns the first success.
type Multi []Verifier

func (m Multi) Verify(ctx context.Context, token string) (domain.OwnerID, error) {
	for _, v := range m {
		if owner, err := v.Verify(ctx, token); err == nil {
			return owner, nil
		}
	}
	return "", ErrUnauthorized
}
