// Package auth mints and parses the HS256 session tokens handed to clients.
package auth

import (
	"errors"
	"time"

	"github.com/avelancourt/passguard/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims binds a token to a session row, so revoking the row kills the token
// even before it expires.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
}

func GenerateToken(userID, sessionID string, secretKey []byte, validityDuration time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validityDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID:    userID,
		SessionID: sessionID,
	})

	return token.SignedString(secretKey)
}

func (c *Claims) valid() bool {
	return c.UserID != "" && c.SessionID != ""
}

// ParseToken verifies the signature and expiry and returns the claims.
// All failures map to common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secretKey, nil
	})
	if err != nil || !token.Valid || !claims.valid() {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
