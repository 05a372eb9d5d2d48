// Package auth handles the session JWT: issuing (stub server), verifying
// (stub server middleware) and claim extraction (client side).
package auth

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const issuer = "gigchat-service"

// ErrNoUserID is returned when a token carries no user_id claim.
var ErrNoUserID = errors.New("auth: token has no user_id claim")

// Issue signs a session token for userID, valid for ttl.
func Issue(secret []byte, userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(ttl).Unix(),
		"iss":     issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Verify validates the signature and expiry and returns the user id.
func Verify(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("auth: verify token: %w", err)
	}
	return userIDClaim(token.Claims)
}

// UserID extracts the user id without verifying the signature. The client
// holds no signing secret; it trusts the token it was handed and only needs
// the identity baked into it.
func UserID(tokenString string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("auth: parse token: %w", err)
	}
	return userIDClaim(token.Claims)
}

// ExpiresWithin reports whether the token expires within d (or already has).
// Tokens without an exp claim never expire.
func ExpiresWithin(tokenString string, d time.Duration) (bool, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return false, fmt.Errorf("auth: parse token: %w", err)
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil {
		return false, fmt.Errorf("auth: read exp claim: %w", err)
	}
	if exp == nil {
		return false, nil
	}
	return time.Until(exp.Time) < d, nil
}

func userIDClaim(claims jwt.Claims) (string, error) {
	mapClaims, ok := claims.(jwt.MapClaims)
	if !ok {
		return "", ErrNoUserID
	}
	userID, ok := mapClaims["user_id"].(string)
	if !ok || userID == "" {
		return "", ErrNoUserID
	}
	return userID, nil
}
