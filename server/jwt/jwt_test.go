package jwt

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-0123456789"

func TestGenerate(t *testing.T) {
	tokenString, expiresAt, err := Generate(testSecret, "ops@example.com", ScopeAdmin, 10*time.Minute)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if tokenString == "" {
		t.Error("expected non-empty token string")
	}

	diff := expiresAt.Sub(time.Now().Add(10 * time.Minute)).Abs()
	if diff > 2*time.Second {
		t.Errorf("expiration time differs by %v", diff)
	}

	claims, err := Verify(tokenString, testSecret)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if claims.Subject != "ops@example.com" {
		t.Errorf("expected subject ops@example.com, got %s", claims.Subject)
	}
	if claims.Scope != ScopeAdmin {
		t.Errorf("expected scope %s, got %s", ScopeAdmin, claims.Scope)
	}
	if claims.Issuer != Issuer {
		t.Errorf("expected issuer %s, got %s", Issuer, claims.Issuer)
	}
	if claims.ID == "" {
		t.Error("expected a token ID")
	}
}

func TestVerifyInvalidSignature(t *testing.T) {
	tokenString, _, err := Generate(testSecret, "ops", ScopeAdmin, time.Minute)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if _, err := Verify(tokenString, "another-secret-0123456"); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestVerifyExpired(t *testing.T) {
	tokenString, _, err := Generate(testSecret, "ops", ScopeAdmin, -time.Minute)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	_, err = Verify(tokenString, testSecret)
	if !errors.Is(err, jwt.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{
		Scope: ScopeAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Verify(signed, testSecret); err == nil {
		t.Error("expected HS512 token to be rejected")
	}
}

func TestVerifyRequiresExpiryAndIssuer(t *testing.T) {
	tests := map[string]Claims{
		"no expiry":    {Scope: ScopeAdmin, RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer}},
		"wrong issuer": {Scope: ScopeAdmin, RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}},
	}

	for name, claims := range tests {
		t.Run(name, func(t *testing.T) {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
			if err != nil {
				t.Fatal(err)
			}
			if _, err := Verify(signed, testSecret); err == nil {
				t.Error("expected token to be rejected")
			}
		})
	}
}

func TestVerifyScope(t *testing.T) {
	readOnly, _, err := Generate(testSecret, "ops", "credentials:read", time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := VerifyScope(readOnly, testSecret, ScopeAdmin); !errors.Is(err, ErrInsufficientScope) {
		t.Errorf("expected ErrInsufficientScope, got %v", err)
	}

	admin, _, err := Generate(testSecret, "ops", ScopeAdmin, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := VerifyScope(admin, testSecret, ScopeAdmin); err != nil {
		t.Errorf("expected admin token to pass, got %v", err)
	}
}

func TestVerifyMalformed(t *testing.T) {
	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := Verify(token, testSecret); err == nil {
			t.Errorf("expected error for %q", token)
		}
	}
}
