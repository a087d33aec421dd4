package pagews

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// tokenSubject marks a bridge token as minted for the page host.
const tokenSubject = "page-host"

// Authenticator mints and verifies the short-lived HS256 tokens the page
// host presents when attaching.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthenticator(secret []byte, ttl time.Duration) *Authenticator {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: secret, ttl: ttl}
}

// Mint issues a connection token.
func (a *Authenticator) Mint() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   tokenSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("signing bridge token: %w", err)
	}
	return signed, nil
}

// Verify checks a presented token.
func (a *Authenticator) Verify(tokenString string) error {
	if tokenString == "" {
		return fmt.Errorf("missing bridge token")
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return fmt.Errorf("parsing bridge token: %w", err)
	}
	if !token.Valid {
		return fmt.Errorf("invalid bridge token")
	}
	if claims.Subject != tokenSubject {
		return fmt.Errorf("bridge token minted for %q", claims.Subject)
	}
	return nil
}
