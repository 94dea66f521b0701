// Package auth loads the access token presented in the socket handshake.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenExpired is returned when the stored token is past its expiry.
var ErrTokenExpired = errors.New("access token expired")

// ExpiresAt returns the exp claim of a JWT without verifying its signature.
// The host verifies tokens; the client only needs to know when to give up.
//
// ok is false when the token has no exp claim or is not a JWT.
func ExpiresAt(token string) (exp time.Time, ok bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// IsExpired reports whether token expires within window of now.
func IsExpired(token string, now time.Time, window time.Duration) bool {
	exp, ok := ExpiresAt(token)
	if !ok {
		return false
	}
	return !now.Add(window).Before(exp)
}

// LoadToken reads the token file at path. A missing file yields an empty
// token; hosts that run without auth accept that.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	token := strings.TrimSpace(string(data))
	if token != "" && IsExpired(token, time.Now(), 0) {
		return "", fmt.Errorf("%s: %w", path, ErrTokenExpired)
	}
	return token, nil
}
