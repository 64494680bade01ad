// Package tokens issues and verifies the HS256 bearer tokens of the admin API.
package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the role claim required by the admin API.
const RoleAdmin = "ADMIN"

var ErrNoSecret = errors.New("jwt secret is not configured")

// Issue creates a signed token for sub carrying role, valid for ttl.
func Issue(secret, sub, role string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrNoSecret
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Verify checks signature and expiry and returns the claims.
func Verify(secret, raw string) (jwt.MapClaims, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	return claims, nil
}

// Role returns the role claim, or "" when absent.
func Role(claims jwt.MapClaims) string {
	role, _ := claims["role"].(string)
	return role
}
