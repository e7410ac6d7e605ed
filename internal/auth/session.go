package auth

import (
	"context"
	"time"
)

// Profile holds the optional user attributes exposed by the identity provider.
type Profile struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Handle string `json:"handle"`
}

// DisplayName resolves the name shown to the user: name, then email, then the login handle.
func (p Profile) DisplayName() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.Email != "":
		return p.Email
	default:
		return p.Handle
	}
}

// Session is an authenticated identity. It is passed explicitly to every
// note store and object store call, Owner scopes the caller's data.
type Session struct {
	Token     string
	Owner     string
	Profile   Profile
	CreatedAt time.Time
}

type sessionCtxKey struct{}

func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(*Session)
	return s, ok && s != nil
}
