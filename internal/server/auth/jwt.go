package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/dmitrijs2005/tmssession/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the caller identity and role on top of the registered claims.
type Claims struct {
	jwt.RegisteredClaims
	UserID string      `json:"uid"`
	Role   models.Role `json:"role"`
}

func GenerateToken(userID string, role models.Role, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		UserID: userID,
		Role:   role,
	})

	return token.SignedString(secretKey)
}

// ParseToken validates tokenString and returns the actor it names. Expired
// tokens yield common.ErrTokenExpired; anything else unusable yields
// common.ErrInvalidToken.
func ParseToken(tokenString string, secretKey []byte) (models.Actor, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Actor{}, common.ErrTokenExpired
		}
		return models.Actor{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.UserID == "" {
		return models.Actor{}, common.ErrInvalidToken
	}
	if _, ok := models.ParseRole(string(claims.Role)); !ok {
		return models.Actor{}, fmt.Errorf("%w: unknown role %q", common.ErrInvalidToken, claims.Role)
	}

	return models.Actor{ID: claims.UserID, Role: claims.Role}, nil
}

// FromHeader extracts the bearer token from an Authorization header value.
func FromHeader(value string) (string, bool) {
	if !strings.HasPrefix(value, common.BearerPrefix) {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(value, common.BearerPrefix))
	return tok, tok != ""
}
