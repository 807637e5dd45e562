// Package auth issues and verifies the bearer tokens that identify calling
// users to the proxy forwarders and the toolbox API.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/serpdesk/serpdesk/internal/apperr"
)

// Claims carries the standard registered claims plus the user identity.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// GenerateToken signs an HS256 token for userID valid for validity.
func GenerateToken(userID string, secret []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
		UserID: userID,
	})

	signed, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// UserIDFromToken verifies tokenString and returns the embedded user ID.
// Any verification failure maps to apperr.ErrAuthInvalid.
func UserIDFromToken(tokenString string, secret []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return "", apperr.ErrAuthInvalid
	}

	if claims.UserID == "" {
		return "", apperr.ErrAuthInvalid
	}
	return claims.UserID, nil
}
