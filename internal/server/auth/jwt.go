// Package auth signs and validates the HS256 bearer tokens that protect the
// admin surface. There is a single admin principal, so the token carries only
// the fixed subject and its expiry.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goldflix/goldflix/internal/common"
)

const adminSubject = "admin"

// GenerateAdminToken signs a token valid for validityDuration from now.
func GenerateAdminToken(secretKey []byte, validityDuration time.Duration, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   adminSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateAdminToken checks the signature, the expiry against nowFunc and the
// subject. Every failure comes back as common.ErrInvalidToken.
func ValidateAdminToken(tokenString string, secretKey []byte, nowFunc func() time.Time) error {
	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secretKey, nil
	}, jwt.WithTimeFunc(nowFunc))
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.Subject != adminSubject {
		return common.ErrInvalidToken
	}

	return nil
}
