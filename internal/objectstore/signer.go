package objectstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidLink = errors.New("invalid or expired object link")

// LinkSigner issues and verifies the short lived tokens embedded in disk store display URLs.
type LinkSigner struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewLinkSigner(secret string, ttl time.Duration) (*LinkSigner, error) {
	if secret == "" {
		return nil, errors.New("link secret cannot be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("link ttl must be positive")
	}
	return &LinkSigner{
		secret:  []byte(secret),
		ttl:     ttl,
		nowFunc: time.Now,
	}, nil
}

func (s *LinkSigner) Sign(key string) (string, error) {
	now := s.nowFunc()
	claims := jwt.RegisteredClaims{
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign object link: %w", err)
	}
	return signed, nil
}

// Verify returns the object key of a valid, unexpired token.
func (s *LinkSigner) Verify(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.nowFunc),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidLink, err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", ErrInvalidLink
	}

	return claims.Subject, nil
}
