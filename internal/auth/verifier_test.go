package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"endpointwatch/internal/domain"
)

func TestStaticVerifier(t *testing.T) {
	v := NewStaticVerifier(map[string]domain.OwnerID{
		"key-a": "user-a",
		"key-b": "user-b",
	})

	owner, err := v.Verify(context.Background(), "key-a")
	if err != nil || owner != "user-a" {
		t.Fatalf("want user-a, got %q %v", owner, err)
	}
	if _, err := v.Verify(context.Background(), "key-x"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
	if _, err := v.Verify(context.Background(), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token must not verify")
	}
}

func signToken(t *testing.T, secret []byte, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func TestJWTVerifier(t *testing.T) {
	secret := []byte("test-secret")
	v := NewJWTVerifier(secret, "endpointwatch")

	good := signToken(t, secret, jwt.RegisteredClaims{
		Subject:   "user-42",
		Issuer:    "endpointwatch",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	owner, err := v.Verify(context.Background(), good)
	if err != nil || owner != "user-42" {
		t.Fatalf("want user-42, got %q %v", owner, err)
	}

	cases := map[string]string{
		"wrong secret": signToken(t, []byte("other"), jwt.RegisteredClaims{Subject: "u", Issuer: "endpointwatch"}),
		"wrong issuer": signToken(t, secret, jwt.RegisteredClaims{Subject: "u", Issuer: "someone"}),
		"no subject":   signToken(t, secret, jwt.RegisteredClaims{Issuer: "endpointwatch"}),
		"expired": signToken(t, secret, jwt.RegisteredClaims{
			Subject: "u", Issuer: "endpointwatch",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}),
		"garbage": "not.a.jwt",
	}
	for name, token := range cases {
		if _, err := v.Verify(context.Background(), token); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: want ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestMulti(t *testing.T) {
	secret := []byte("s")
	m := Multi{
		NewStaticVerifier(map[string]domain.OwnerID{"k": "static-user"}),
		NewJWTVerifier(secret, ""),
	}

	if owner, err := m.Verify(context.Background(), "k"); err != nil || owner != "static-user" {
		t.Fatalf("static path failed: %q %v", owner, err)
	}
	token := signToken(t, secret, jwt.RegisteredClaims{Subject: "jwt-user"})
	if owner, err := m.Verify(context.Background(), token); err != nil || owner != "jwt-user" {
		t.Fatalf("jwt path failed: %q %v", owner, err)
	}
	if _, err := m.Verify(context.Background(), "nope"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized, got %v", err)
	}
}
