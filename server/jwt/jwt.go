// Package jwt issues and checks the HS256 bearer tokens of the admin API.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Issuer is set on every token this package generates
const Issuer = "credhost"

// ScopeAdmin grants access to the whole admin API
const ScopeAdmin = "credentials:admin"

// ErrInsufficientScope is returned for valid tokens that lack the required scope
var ErrInsufficientScope = errors.New("token scope does not allow this operation")

type Claims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Generate signs a token for subject with scope, valid for expiry
func Generate(secret, subject, scope string, expiry time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(expiry)
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	return signed, exp, err
}

// Verify checks signature, issuer and expiry and returns the claims
func Verify(tokenString string, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrInvalidKey
}

// VerifyScope is Verify that also requires scope
func VerifyScope(tokenString, secret, scope string) (*Claims, error) {
	claims, err := Verify(tokenString, secret)
	if err != nil {
		return nil, err
	}
	if claims.Scope != scope {
		return nil, ErrInsufficientScope
	}
	return claims, nil
}
