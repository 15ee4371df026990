package authUtils

import (
	"errors"
	"time"

	"github.com/dgrijalva/jwt-go"
)

// GenerateToken mints a signed JWT carrying the user ID and role.
func GenerateToken(secret, userID, role string) (string, error) {
	if secret == "" {
		return "", errors.New("JWT secret is not configured")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(72 * time.Hour).Unix(),
	})

	return token.SignedString([]byte(secret))
}
