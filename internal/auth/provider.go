package auth

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -source=provider.go -destination=provider_mock.go -package=auth

var (
	ErrWrongCredentials = errors.New("wrong credentials")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionExpired   = errors.New("session expired")
)

type Credentials struct {
	Handle   string
	Password string
}

// Checker resolves a session token to the signed in identity.
type Checker interface {
	CurrentUser(ctx context.Context, token string) (*Session, error)
}

// Provider is the identity provider consumed by the web layer.
type Provider interface {
	Checker
	SignIn(ctx context.Context, credentials Credentials, now time.Time) (*Session, error)
	SignOut(ctx context.Context, token string) error
}
