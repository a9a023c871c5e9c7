// Package jwttoken validates admin bearer tokens. Token issuance lives in the
// identity service that fronts the admin UI; this core only verifies.
package jwttoken

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the verified claims the middleware needs.
type Claims struct {
	AdminID string
	Role    string
}

// Validator verifies HS256-signed admin tokens.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken parses and verifies a token string, returning its claims.
func (v *Validator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("token missing subject")
	}

	role, _ := claims["role"].(string)
	return &Claims{AdminID: sub, Role: role}, nil
}
