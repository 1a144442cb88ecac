package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type jwtCustomClaims struct {
	CreatorID string `json:"creator_id"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the provided creator ID. Token
// issuance normally happens in the external identity provider; this mirrors
// its format so the guard middleware can validate what it mints.
func GenerateToken(secret string, creatorID uuid.UUID, ttl time.Duration) (string, error) {
	claims := &jwtCustomClaims{
		CreatorID: creatorID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   creatorID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns the embedded creator ID.
func ParseToken(secret, tokenString string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return uuid.Nil, err
	}

	if claims, ok := token.Claims.(*jwtCustomClaims); ok && token.Valid {
		return uuid.Parse(claims.CreatorID)
	}

	return uuid.Nil, jwt.ErrTokenInvalidClaims
}
