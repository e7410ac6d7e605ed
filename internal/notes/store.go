package notes

import (
	"context"

	"github.com/2beens/notesapp/internal/auth"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=notes

// NoteStore is the remote note record store. Every call is scoped to the given session's owner.
type NoteStore interface {
	List(ctx context.Context, session *auth.Session) ([]Note, error)
	Create(ctx context.Context, session *auth.Session, note NewNote) (*Note, error)
	Delete(ctx context.Context, session *auth.Session, id string) error
}

// ObjectStore keeps note attachments.
type ObjectStore interface {
	// Upload stores the data and returns the key it was stored under.
	Upload(ctx context.Context, session *auth.Session, name, contentType string, data []byte) (string, error)
	// ResolveURL returns a time limited URL the object can be fetched from.
	ResolveURL(ctx context.Context, session *auth.Session, key string) (string, error)
	Remove(ctx context.Context, session *auth.Session, key string) error
}
