package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// verifyHMAC validates a shared-secret signed token and extracts the identity
// claims. The user id is taken from "user_id", falling back to the standard
// "sub" claim.
func (a *Authenticator) verifyHMAC(tokenString string) (*Claims, time.Time, error) {
	if a.cfg.AuthSecret == "" {
		return nil, time.Time{}, ErrTokenInvalid
	}
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(a.cfg.AuthSecret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, time.Time{}, ErrTokenExpired
		}
		return nil, time.Time{}, ErrTokenInvalid
	}
	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, time.Time{}, ErrTokenInvalid
	}
	claims := &Claims{}
	if v, ok := mapClaims["user_id"].(string); ok {
		claims.UserId = v
	} else if v, err := mapClaims.GetSubject(); err == nil {
		claims.UserId = v
	}
	if claims.UserId == "" {
		return nil, time.Time{}, ErrTokenInvalid
	}
	if v, ok := mapClaims["email"].(string); ok {
		claims.Email = v
	}
	if v, ok := mapClaims["role"].(string); ok {
		claims.Role = v
	}
	var expiresAt time.Time
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return claims, expiresAt, nil
}
